package enrollment

import (
	"encoding/binary"

	"github.com/bosagora/agora/internal/utxo"
	"github.com/bosagora/agora/pkg/crypto"
	"github.com/bosagora/agora/pkg/types"
)

// UTXOView is the minimal read-only view of the UTXO set the validator
// needs to check that an enrollment's committed stake is real and
// spendable. It is deliberately narrower than utxo.Set: EnrollmentValidator
// never writes to the UTXO set itself.
type UTXOView interface {
	Get(outpoint types.Outpoint) (*utxo.UTXO, error)
}

// PenaltyDepositProvider reports the outstanding penalty deposit escrowed
// against a utxo_key's most recent enrollment. A non-zero amount means the
// deposit forfeited by a slash has not yet been paid out, and the utxo_key
// may not re-enroll. Implementations typically consult a separate
// deposit-escrow subsystem that this package has no other dependency on.
type PenaltyDepositProvider interface {
	GetPenaltyDeposit(utxoKey types.Hash512) (uint64, error)
}

// Rejection is a stable, user-facing reason an Enrollment failed
// validation. Values are compared by string equality, not wrapped as Go
// errors: a rejection is an expected outcome of validating untrusted
// input, not a failure of the validator itself.
type Rejection string

// RejectionNone means the enrollment passed every check.
const RejectionNone Rejection = ""

const (
	RejectionUTXONotFound        Rejection = "enrollment utxo not found"
	RejectionNotStakeUTXO        Rejection = "utxo is not a stake output"
	RejectionInsufficientStake   Rejection = "stake below minimum validator stake"
	RejectionWrongCycleLength    Rejection = "cycle length does not match the configured validator cycle"
	RejectionBadSignature        Rejection = "enrollment signature does not verify"
	RejectionInsufficientDeposit Rejection = "insufficient penalty deposit"
)

// Validator runs the ordered checks an Enrollment message must pass before
// ValidatorSetEngine.Add will persist it. Each check short-circuits on the
// first failure, in the order below, matching how an enrolling validator
// would want feedback: cheapest and most informative checks first.
type Validator struct {
	utxos          UTXOView
	deposits       PenaltyDepositProvider
	validatorCycle uint64
	minStake       uint64
}

// NewValidator builds an EnrollmentValidator bound to the given capability
// views and consensus parameters.
func NewValidator(utxos UTXOView, deposits PenaltyDepositProvider, validatorCycle, minStake uint64) *Validator {
	return &Validator{
		utxos:          utxos,
		deposits:       deposits,
		validatorCycle: validatorCycle,
		minStake:       minStake,
	}
}

// Validate runs the ordered checks and returns the first rejection
// encountered, or RejectionNone if the enrollment is acceptable. outpoint
// is the UTXO outpoint that e.UTXOKey commits to; the caller (the engine)
// owns the mapping from UTXOKey back to a concrete outpoint.
//
// priorRecord is the most recent ValidatorRecord previously enrolled under
// e.UTXOKey, or nil if utxo_key has never enrolled before. The engine must
// already have confirmed priorRecord is not currently active - Validate only
// ever sees an expired prior record, and its sole concern is whether that
// expired record still owes a penalty deposit.
func (v *Validator) Validate(e Enrollment, outpoint types.Outpoint, priorRecord *ValidatorRecord) Rejection {
	// 1. the committed UTXO must exist.
	u, err := v.utxos.Get(outpoint)
	if err != nil {
		return RejectionUTXONotFound
	}

	// 2. it must be a stake output, carrying the enrolling public key.
	if u.Script.Type != types.ScriptTypeStake || len(u.Script.Data) != types.PublicKeySize {
		return RejectionNotStakeUTXO
	}

	// 3. the stake must meet the configured floor.
	if u.Value < v.minStake {
		return RejectionInsufficientStake
	}

	// 4. the declared cycle length must match the network's configured
	// validator cycle; per-enrollment cycle lengths are not negotiable.
	if uint64(e.CycleLength) != v.validatorCycle {
		return RejectionWrongCycleLength
	}

	// 5. the enrollment signature must verify against the stake UTXO's
	// public key over the canonical challenge.
	challenge := crypto.Hash(EnrollmentChallenge(e.UTXOKey, e.Commitment, e.CycleLength))
	if !e.EnrollSig.Verify(challenge[:], u.Script.Data) {
		return RejectionBadSignature
	}

	// 6. if utxo_key carries a prior, slashed enrollment, it may not
	// re-enroll until the penalty deposit that slash forfeited has been
	// fully paid out. A prior record that expired without ever being
	// slashed imposes no such hold.
	if priorRecord != nil && priorRecord.IsSlashed() {
		deposit, err := v.deposits.GetPenaltyDeposit(priorRecord.UTXOKey)
		if err != nil || deposit != 0 {
			return RejectionInsufficientDeposit
		}
	}

	return RejectionNone
}

// EnrollmentChallenge builds the canonical byte encoding an enrollment
// signature is computed over: utxo_key(64) || commitment(64) ||
// cycle_length(4, big endian). The result is hashed down to 32 bytes
// before being passed to Schnorr verification.
func EnrollmentChallenge(utxoKey, commitment types.Hash512, cycleLength uint32) []byte {
	buf := make([]byte, 0, types.Hash512Size*2+4)
	buf = append(buf, utxoKey[:]...)
	buf = append(buf, commitment[:]...)
	buf = binary.BigEndian.AppendUint32(buf, cycleLength)
	return buf
}
