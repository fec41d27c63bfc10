package fee

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var computeBudgetProgram = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

func transfer() solana.Instruction {
	return system.NewTransferInstruction(1, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()).Build()
}

func TestWithComputeUnitPrice(t *testing.T) {
	in := []solana.Instruction{transfer(), transfer()}

	out := WithComputeUnitPrice(in, Price(500_000))
	require.Len(t, out, 3)
	assert.Len(t, in, 2, "input must not be modified")

	assert.True(t, out[0].ProgramID().Equals(computeBudgetProgram))
	data, err := out[0].Data()
	require.NoError(t, err)
	// discriminator 3 = SetComputeUnitPrice, followed by u64 micro-lamports
	require.Len(t, data, 9)
	assert.Equal(t, byte(3), data[0])
	assert.Equal(t, uint64(500_000), binary.LittleEndian.Uint64(data[1:]))

	assert.Equal(t, in[0], out[1])
	assert.Equal(t, in[1], out[2])
}

func TestWithComputeUnitPriceDisabled(t *testing.T) {
	in := []solana.Instruction{transfer()}

	assert.Equal(t, in, WithComputeUnitPrice(in, nil))
	assert.Equal(t, in, WithComputeUnitPrice(in, Price(0)))

	zero := uint64(0)
	assert.Equal(t, in, WithComputeUnitPrice(in, &zero))
}

func TestWithComputeUnitPriceEmpty(t *testing.T) {
	out := WithComputeUnitPrice(nil, Price(1))
	require.Len(t, out, 1)
	assert.True(t, out[0].ProgramID().Equals(computeBudgetProgram))
}
