package enrollment

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/bosagora/agora/internal/log"
	"github.com/bosagora/agora/pkg/types"
)

// RejectionDuplicateEnrollment is returned by Add when the enrolling UTXO
// already backs an active enrollment at the height being processed - a
// stake cannot back two simultaneous validator identities.
const RejectionDuplicateEnrollment Rejection = "utxo already has an active enrollment"

// RejectionPublicKeyAlreadyEnrolled is returned by Add when the enrolling
// public key already backs an active enrollment under a different
// utxo_key - a public key has at most one active ValidatorRecord, no
// matter how many stake utxos it controls.
const RejectionPublicKeyAlreadyEnrolled Rejection = "A validator with the same public key is already enrolled"

const (
	// RejectionUnknownPreimageUTXO is returned by AddPreimage when the
	// reveal names a utxo_key with no enrollment on record.
	RejectionUnknownPreimageUTXO Rejection = "no enrollment found for preimage utxo"
	// RejectionPreimageChainBroken is returned by AddPreimage when the
	// reveal does not hash forward to the previously accepted reveal.
	RejectionPreimageChainBroken Rejection = "preimage does not chain to the previous reveal"
	// RejectionPreimageExceedsCycle is returned by AddPreimage when the
	// reveal's height is more than validatorCycle blocks past the
	// previously accepted reveal - a real hash-chain continuation past
	// that point would still satisfy the hash relation, so the bound is
	// checked independently of it.
	RejectionPreimageExceedsCycle Rejection = "preimage height exceeds validator cycle"
)

// Engine is the ValidatorSetEngine and ActiveSetQuery combined: the sole
// consensus-facing entry point for enrolling and slashing validators,
// recording pre-image reveals, and querying the active set at a height.
// It is the only thing in the codebase allowed to mutate enrollment state.
type Engine struct {
	store          *Store
	validator      *Validator
	utxos          UTXOView
	validatorCycle uint64
}

// NewEngine builds a ValidatorSetEngine over store, bound to validator for
// admission checks and utxos for resolving enrolling UTXOs.
func NewEngine(store *Store, validator *Validator, utxos UTXOView, validatorCycle uint64) *Engine {
	return &Engine{
		store:          store,
		validator:      validator,
		utxos:          utxos,
		validatorCycle: validatorCycle,
	}
}

// MinEnrollmentHeight returns the oldest enrolled_height that can still be
// active at height h: max(0, h - validatorCycle).
func (e *Engine) MinEnrollmentHeight(h uint64) uint64 {
	return minEnrollmentHeight(h, e.validatorCycle)
}

// Add validates and persists a new enrollment at currentHeight. It returns
// a non-empty Rejection for any expected validation failure - the
// enrollment is simply not accepted, and the caller (consensus) moves on -
// and a non-nil error only for unexpected storage failures.
func (e *Engine) Add(enr Enrollment, outpoint types.Outpoint, currentHeight uint64) (Rejection, error) {
	// Scan utxo_key's full re-enrollment history once: find whether it
	// already backs an active record (duplicate), and, if not, the most
	// recent prior record so Validate can check the slashed-deposit hold.
	var priorRecord *ValidatorRecord
	duplicate := false
	scanErr := e.store.ForEachForUTXO(enr.UTXOKey, func(r *ValidatorRecord) error {
		if r.ActiveAt(currentHeight, e.validatorCycle, true) {
			duplicate = true
		}
		if priorRecord == nil || r.EnrolledHeight > priorRecord.EnrolledHeight {
			rCopy := *r
			priorRecord = &rCopy
		}
		return nil
	})
	if scanErr != nil {
		return RejectionNone, fmt.Errorf("add: scan existing enrollments: %w", scanErr)
	}
	if duplicate {
		return RejectionDuplicateEnrollment, nil
	}

	if r := e.validator.Validate(enr, outpoint, priorRecord); r != RejectionNone {
		return r, nil
	}

	u, err := e.utxos.Get(outpoint)
	if err != nil {
		return RejectionNone, fmt.Errorf("add: fetch stake utxo: %w", err)
	}
	var pubKey types.PublicKey
	copy(pubKey[:], u.Script.Data)

	// A public key has at most one active ValidatorRecord at any height,
	// regardless of which utxo_key backs it.
	pubKeyActive := false
	scanErr = e.store.ForEachForPublicKey(pubKey, func(r *ValidatorRecord) error {
		if r.UTXOKey != enr.UTXOKey && r.ActiveAt(currentHeight, e.validatorCycle, true) {
			pubKeyActive = true
			return errStopIteration
		}
		return nil
	})
	if scanErr != nil && scanErr != errStopIteration {
		return RejectionNone, fmt.Errorf("add: scan public key enrollments: %w", scanErr)
	}
	if pubKeyActive {
		return RejectionPublicKeyAlreadyEnrolled, nil
	}

	vr := &ValidatorRecord{
		UTXOKey:        enr.UTXOKey,
		EnrolledHeight: currentHeight,
		PublicKey:      pubKey,
		Nonce:          enr.EnrollSig.R,
		Stake:          u.Value,
		CycleLength:    enr.CycleLength,
	}
	pr := &PreImageRecord{
		UTXOKey:               enr.UTXOKey,
		CurrentPreimageHash:   enr.Commitment,
		CurrentPreimageHeight: currentHeight,
	}

	if err := e.store.PutAtomic(vr, pr); err != nil {
		return RejectionNone, fmt.Errorf("add: persist: %w", err)
	}
	return RejectionNone, nil
}

// SlashValidator marks the validator record enrolled at (utxoKey,
// enrolledHeight) as slashed effective slashHeight. Slashing an
// already-slashed record is a no-op: the first slash height always wins.
func (e *Engine) SlashValidator(utxoKey types.Hash512, enrolledHeight, slashHeight uint64) error {
	vr, err := e.store.Get(utxoKey, enrolledHeight)
	if err != nil {
		return fmt.Errorf("slash validator: %w", err)
	}
	if vr.IsSlashed() {
		return nil
	}
	vr.SlashedHeight = slashHeight
	if err := e.store.PutValidator(vr); err != nil {
		return fmt.Errorf("slash validator: persist: %w", err)
	}
	return nil
}

// GetEnrolledHeight returns the height of the most recent enrollment for
// utxoKey (a utxo may be enrolled, expire, and re-enroll more than once),
// or MaxHeight if it was never enrolled.
//
// A storage failure here is unrecoverable: the caller cannot distinguish
// "never enrolled" from "can't tell", and every consensus decision
// downstream of this query must be made on the real answer or not at all.
// The process terminates rather than risk a validator set computed from
// partial data.
func (e *Engine) GetEnrolledHeight(utxoKey types.Hash512) uint64 {
	var best uint64
	found := false
	err := e.store.ForEachForUTXO(utxoKey, func(r *ValidatorRecord) error {
		if !found || r.EnrolledHeight > best {
			best = r.EnrolledHeight
			found = true
		}
		return nil
	})
	if err != nil {
		log.Enrollment.Fatal().Err(err).Msg("storage failure scanning enrollment history")
	}
	if !found {
		return MaxHeight
	}
	return best
}

// HasEnrollment reports whether utxoKey has ever been enrolled. See
// GetEnrolledHeight for why a storage failure is fatal here.
func (e *Engine) HasEnrollment(utxoKey types.Hash512) bool {
	found := false
	err := e.store.ForEachForUTXO(utxoKey, func(r *ValidatorRecord) error {
		found = true
		return errStopIteration
	})
	if err != nil && err != errStopIteration {
		log.Enrollment.Fatal().Err(err).Msg("storage failure checking enrollment existence")
	}
	return found
}

// HasPublicKey reports whether pubKey backs any enrollment, active or not.
// See GetEnrolledHeight for why a storage failure is fatal here.
func (e *Engine) HasPublicKey(pubKey types.PublicKey) bool {
	has, err := e.store.HasPublicKey(pubKey)
	if err != nil {
		log.Enrollment.Fatal().Err(err).Msg("storage failure checking public key enrollment")
	}
	return has
}

// CountActive returns the number of validators active at height.
func (e *Engine) CountActive(height uint64) (int, error) {
	count := 0
	err := e.store.ForEachValidator(func(r *ValidatorRecord) error {
		if r.ActiveAt(height, e.validatorCycle, true) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	return count, nil
}

// GetEnrolledUTXOs returns the utxo_key of every validator active at
// height, in ascending order. It uses the "> H" slash boundary: a slash
// landing exactly at height must not renumber slot indices mid-block.
func (e *Engine) GetEnrolledUTXOs(height uint64) ([]types.Hash512, error) {
	var keys []types.Hash512
	err := e.store.ForEachValidator(func(r *ValidatorRecord) error {
		if r.ActiveAt(height, e.validatorCycle, false) {
			keys = append(keys, r.UTXOKey)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get enrolled utxos: %w", err)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys, nil
}

// GetValidators returns the public projection of every validator active at
// height, sorted by public key for a deterministic order. It uses the
// ">= H" slash boundary: a validator slashed exactly at height must stop
// signing starting with that very block.
func (e *Engine) GetValidators(height uint64) ([]ValidatorInfo, error) {
	var infos []ValidatorInfo
	err := e.store.ForEachValidator(func(r *ValidatorRecord) error {
		if !r.ActiveAt(height, e.validatorCycle, true) {
			return nil
		}
		pr, err := e.store.GetPreimage(r.UTXOKey)
		if err != nil {
			return fmt.Errorf("preimage for %x: %w", r.UTXOKey, err)
		}
		infos = append(infos, ValidatorInfo{
			Enrolled: r.EnrolledHeight,
			Address:  r.PublicKey,
			Stake:    r.Stake,
			Preimage: PreImage{UTXO: r.UTXOKey, Hash: pr.CurrentPreimageHash, Height: pr.CurrentPreimageHeight},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get validators: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool {
		return bytes.Compare(infos[i].Address[:], infos[j].Address[:]) < 0
	})
	return infos, nil
}

// GetPreimage returns the current accepted pre-image reveal for utxoKey.
func (e *Engine) GetPreimage(utxoKey types.Hash512) (PreImage, error) {
	pr, err := e.store.GetPreimage(utxoKey)
	if err != nil {
		return PreImage{}, fmt.Errorf("get preimage: %w", err)
	}
	return PreImage{UTXO: utxoKey, Hash: pr.CurrentPreimageHash, Height: pr.CurrentPreimageHeight}, nil
}

// GetPreimages returns the current pre-image of every validator active at
// height, in the same ascending utxo_key order as GetEnrolledUTXOs.
func (e *Engine) GetPreimages(height uint64) ([]PreImage, error) {
	utxoKeys, err := e.GetEnrolledUTXOs(height)
	if err != nil {
		return nil, err
	}
	out := make([]PreImage, 0, len(utxoKeys))
	for _, k := range utxoKeys {
		p, err := e.GetPreimage(k)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// AddPreimage validates and records a new pre-image reveal. Like Add, it
// returns a Rejection for expected validation failures and a non-nil error
// only for unexpected storage failures.
func (e *Engine) AddPreimage(pi PreImage) (Rejection, error) {
	current, err := e.store.GetPreimage(pi.UTXO)
	if err != nil {
		return RejectionUnknownPreimageUTXO, nil
	}
	currentPI := PreImage{UTXO: pi.UTXO, Hash: current.CurrentPreimageHash, Height: current.CurrentPreimageHeight}
	if pi.Height > currentPI.Height && pi.Height-currentPI.Height > e.validatorCycle {
		return RejectionPreimageExceedsCycle, nil
	}
	if !Verify(currentPI, pi, e.validatorCycle) {
		return RejectionPreimageChainBroken, nil
	}

	updated := &PreImageRecord{
		UTXOKey:               pi.UTXO,
		CurrentPreimageHash:   pi.Hash,
		CurrentPreimageHeight: pi.Height,
	}
	if err := e.store.PutPreimage(updated); err != nil {
		return RejectionNone, fmt.Errorf("add preimage: persist: %w", err)
	}
	return RejectionNone, nil
}

// FindRecentEnrollment returns the most recent enrollment state for
// utxoKey across its full re-enrollment history, or ok=false if it was
// never enrolled.
func (e *Engine) FindRecentEnrollment(utxoKey types.Hash512) (state EnrollmentState, ok bool, err error) {
	var best *ValidatorRecord
	scanErr := e.store.ForEachForUTXO(utxoKey, func(r *ValidatorRecord) error {
		if best == nil || r.EnrolledHeight > best.EnrolledHeight {
			rCopy := *r
			best = &rCopy
		}
		return nil
	})
	if scanErr != nil {
		return EnrollmentState{}, false, fmt.Errorf("find recent enrollment: %w", scanErr)
	}
	if best == nil {
		return EnrollmentState{}, false, nil
	}

	pr, err := e.store.GetPreimage(utxoKey)
	if err != nil {
		return EnrollmentState{}, false, fmt.Errorf("find recent enrollment: preimage: %w", err)
	}
	return EnrollmentState{
		EnrolledHeight: best.EnrolledHeight,
		Preimage:       PreImage{UTXO: utxoKey, Hash: pr.CurrentPreimageHash, Height: pr.CurrentPreimageHeight},
		SlashedHeight:  best.SlashedHeight,
	}, true, nil
}

// RemoveAll wipes every validator and preimage record the engine manages.
func (e *Engine) RemoveAll() error {
	return e.store.RemoveAll()
}
