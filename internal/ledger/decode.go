package ledger

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	nonceVersionLegacy  = 0
	nonceVersionCurrent = 1

	nonceStateInitialized = 1
)

// DecodeNonceAccount decodes system-program nonce account state.
//
// Layout: u32 version | u32 state | [32]authority | [32]durable nonce |
// u64 lamports per signature, all little endian.
func DecodeNonceAccount(account *Account) (NonceData, error) {
	if !account.Owner.Equals(solana.SystemProgramID) {
		return NonceData{}, fmt.Errorf("owner is %s, not the system program", account.Owner)
	}
	if len(account.Data) != NonceAccountSize {
		return NonceData{}, fmt.Errorf("data length %d, want %d", len(account.Data), NonceAccountSize)
	}

	dec := bin.NewBinDecoder(account.Data)

	version, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return NonceData{}, err
	}
	if version != nonceVersionLegacy && version != nonceVersionCurrent {
		return NonceData{}, fmt.Errorf("unknown nonce version %d", version)
	}

	state, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return NonceData{}, err
	}
	if state != nonceStateInitialized {
		return NonceData{}, fmt.Errorf("nonce account is not initialized (state %d)", state)
	}

	authority, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return NonceData{}, err
	}
	blockhash, err := dec.ReadNBytes(32)
	if err != nil {
		return NonceData{}, err
	}
	lamportsPerSignature, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return NonceData{}, err
	}

	data := NonceData{
		Version:              version,
		Authority:            solana.PublicKeyFromBytes(authority),
		LamportsPerSignature: lamportsPerSignature,
	}
	copy(data.BlockhashSubstitute[:], blockhash)
	return data, nil
}
