package enrollment

import (
	"github.com/bosagora/agora/pkg/crypto"
	"github.com/bosagora/agora/pkg/types"
)

// Derive computes the head of a pre-image hash chain for a validator
// enrolling at enrolledHeight. The caller supplies a secret seed (kept
// off-chain, never persisted); Derive hashes it forward cycleLength times
// to obtain P[0], the commitment published in the Enrollment message, and
// reports the height at which the chain runs out and re-enrollment becomes
// mandatory.
func Derive(utxoKey, seed types.Hash512, enrolledHeight uint64, cycleLength uint32) (head PreImage, chainExpiryHeight uint64) {
	h := seed
	for i := uint32(0); i < cycleLength; i++ {
		h = crypto.Hash512(h[:])
	}
	return PreImage{UTXO: utxoKey, Hash: h, Height: enrolledHeight}, enrolledHeight + uint64(cycleLength)
}

// PreimageAt recomputes the chain value a validator must reveal `offset`
// reveals after enrollment. It requires the original seed, so it is only
// ever invoked off-chain by the validator producing reveals, never by the
// engine (which only ever sees already-revealed values and verifies them
// against the previous reveal via Verify).
func PreimageAt(seed types.Hash512, cycleLength, offset uint32) types.Hash512 {
	remaining := cycleLength - offset
	h := seed
	for i := uint32(0); i < remaining; i++ {
		h = crypto.Hash512(h[:])
	}
	return h
}

// Verify reports whether new is a legitimate successor reveal to current:
// hashing new.Hash forward (new.Height - current.Height) times must land
// exactly on current.Hash, and that distance must not exceed validatorCycle.
// The delta bound is enforced here, not left to the caller: a chain
// continuation computed past the committed cycle length still satisfies
// the repeated-hash relation, so without it a reveal could walk the chain
// arbitrarily far past ValidatorCycle and still "verify". This is the only
// check the engine ever performs on a reveal; it never needs the seed.
func Verify(current, new PreImage, validatorCycle uint64) bool {
	if new.Height <= current.Height {
		return false
	}
	delta := new.Height - current.Height
	if delta > validatorCycle {
		return false
	}
	h := new.Hash
	for i := uint64(0); i < delta; i++ {
		h = crypto.Hash512(h[:])
	}
	return h == current.Hash
}
