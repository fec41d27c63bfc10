// Package amount converts between human SOL amounts and lamports.
package amount

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

var lamportsPerSOL = decimal.NewFromInt(int64(solana.LAMPORTS_PER_SOL))

// ParseSOL parses a decimal SOL amount such as "0.25" into lamports.
// Amounts that are negative or finer than one lamport are rejected.
func ParseSOL(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid amount %q: negative", s)
	}

	lamports := d.Mul(lamportsPerSOL)
	if !lamports.Equal(lamports.Truncate(0)) {
		return 0, fmt.Errorf("invalid amount %q: more precise than one lamport", s)
	}
	if !lamports.BigInt().IsUint64() {
		return 0, fmt.Errorf("invalid amount %q: too large", s)
	}
	return lamports.BigInt().Uint64(), nil
}

// FormatSOL renders lamports as a SOL amount without trailing zeros.
func FormatSOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9).String()
}
