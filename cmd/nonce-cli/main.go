package main

import "nonce-core/cmd/nonce-cli/cmd"

func main() {
	cmd.Execute()
}
