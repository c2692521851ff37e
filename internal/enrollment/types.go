// Package enrollment implements the validator-set enrollment and pre-image
// state engine: the consensus-critical subsystem that decides, for any
// block height, exactly which public keys may sign that block, what their
// stake is, what their currently-revealed pre-image is, and when their
// authority expires or is forfeited.
package enrollment

import (
	"math"

	"github.com/bosagora/agora/pkg/crypto"
	"github.com/bosagora/agora/pkg/types"
)

// MaxHeight is the sentinel returned by queries that mean "no such height",
// e.g. GetEnrolledHeight when no enrollment is found.
const MaxHeight uint64 = math.MaxUint64

// PreImage is a claim that revealing Hash at Height is the pre-image valid
// for the enrollment identified by UTXO.
type PreImage struct {
	UTXO   types.Hash512
	Hash   types.Hash512
	Height uint64
}

// IsZero returns true if the pre-image is the sentinel empty value.
func (p PreImage) IsZero() bool {
	return p == PreImage{}
}

// Enrollment is the message binding a frozen UTXO stake to a public key for
// one validator cycle.
type Enrollment struct {
	UTXOKey     types.Hash512 // the frozen UTXO's commitment
	Commitment  types.Hash512 // head of the revealed pre-image hash chain (P[0])
	CycleLength uint32
	EnrollSig   crypto.EnrollmentSig
}

// ValidatorInfo is the public, per-validator projection returned by
// GetValidators: who may sign, how much stake they carry, and what their
// currently revealed pre-image is.
type ValidatorInfo struct {
	Enrolled uint64
	Address  types.PublicKey
	Stake    uint64
	Preimage PreImage
}

// EnrollmentState is a snapshot row returned by FindRecentEnrollment.
// SlashedHeight == 0 means "not slashed".
type EnrollmentState struct {
	EnrolledHeight uint64
	Preimage       PreImage
	SlashedHeight  uint64
}

// ValidatorRecord is the primary durable record, keyed by (UTXOKey,
// EnrolledHeight). It authorizes PublicKey to sign blocks
// (EnrolledHeight, EnrolledHeight+CycleLength] unless slashed.
type ValidatorRecord struct {
	UTXOKey        types.Hash512
	EnrolledHeight uint64
	PublicKey      types.PublicKey
	Nonce          types.Hash // the R component of the enroll signature
	Stake          uint64
	CycleLength    uint32
	SlashedHeight  uint64 // 0 means not slashed
}

// IsSlashed reports whether the record has ever been slashed.
func (r *ValidatorRecord) IsSlashed() bool {
	return r.SlashedHeight != 0
}

// ActiveAt implements the §4.3 active-at-height predicate:
//
//	minEnrollmentHeight(H) <= enrolled_height < H
//	AND (slashed_height unset OR slashed_height > H)
//
// excludeSlashedAtOrBefore controls which of the two slash comparisons
// §9's second open question calls for: GetValidators (true) excludes a
// record once H >= SlashedHeight (it must stop signing starting the slash
// block itself), while GetEnrolledUTXOs (false) only excludes it once
// H > SlashedHeight (slot indices must not renumber mid-block).
func (r *ValidatorRecord) ActiveAt(h, validatorCycle uint64, excludeSlashedAtOrBefore bool) bool {
	minHeight := minEnrollmentHeight(h, validatorCycle)
	if r.EnrolledHeight < minHeight || r.EnrolledHeight >= h {
		return false
	}
	if !r.IsSlashed() {
		return true
	}
	if excludeSlashedAtOrBefore {
		return r.SlashedHeight > h
	}
	return r.SlashedHeight >= h
}

// minEnrollmentHeight returns max(0, h - validatorCycle).
func minEnrollmentHeight(h, validatorCycle uint64) uint64 {
	if h <= validatorCycle {
		return 0
	}
	return h - validatorCycle
}

// PreImageRecord is the secondary durable record, keyed by UTXOKey: the
// most recently accepted pre-image reveal for that validator identity.
type PreImageRecord struct {
	UTXOKey               types.Hash512
	CurrentPreimageHash   types.Hash512
	CurrentPreimageHeight uint64
}
