package crypto

import (
	"github.com/bosagora/agora/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash512 computes a 512-bit digest of data by concatenating two chained
// BLAKE3-256 outputs: the first half is BLAKE3-256(data), the second half is
// BLAKE3-256 of the first half. This keeps the same hash primitive the rest
// of the codebase uses (pkg/crypto.Hash) while giving the enrollment engine
// the wider digest its pre-image hash chain and utxo_key commitments need.
func Hash512(data []byte) types.Hash512 {
	first := blake3.Sum256(data)
	second := blake3.Sum256(first[:])

	var out types.Hash512
	copy(out[:types.HashSize], first[:])
	copy(out[types.HashSize:], second[:])
	return out
}
