// Package fee attaches priority fees to instruction lists.
package fee

import (
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
)

// WithComputeUnitPrice prepends a SetComputeUnitPrice instruction when
// microLamports is set and non-zero. The input slice is not modified.
func WithComputeUnitPrice(instructions []solana.Instruction, microLamports *uint64) []solana.Instruction {
	if microLamports == nil || *microLamports == 0 {
		return append([]solana.Instruction(nil), instructions...)
	}

	out := make([]solana.Instruction, 0, len(instructions)+1)
	out = append(out, computebudget.NewSetComputeUnitPriceInstruction(*microLamports).Build())
	return append(out, instructions...)
}

// Price is a convenience for turning a configured value into the optional
// argument of WithComputeUnitPrice; zero means no priority fee.
func Price(microLamports uint64) *uint64 {
	if microLamports == 0 {
		return nil
	}
	return &microLamports
}
