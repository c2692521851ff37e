package enrollment

import (
	"testing"

	"github.com/bosagora/agora/internal/storage"
	"github.com/bosagora/agora/internal/utxo"
	"github.com/bosagora/agora/pkg/crypto"
	"github.com/bosagora/agora/pkg/types"
)

// testHarness wires an Engine over an in-memory store with a fake UTXO set
// and a deposit provider that reports no outstanding deposit by default,
// matching spec §8's ValidatorCycle=20 scenarios.
type testHarness struct {
	engine *Engine
	utxos  *fakeUTXOView
}

func newTestHarness(validatorCycle, minStake uint64) *testHarness {
	utxos := &fakeUTXOView{utxos: map[types.Outpoint]*utxo.UTXO{}}
	store := NewStore(storage.NewMemory())
	v := NewValidator(utxos, &fakeDeposits{}, validatorCycle, minStake)
	return &testHarness{
		engine: NewEngine(store, v, utxos, validatorCycle),
		utxos:  utxos,
	}
}

// enroll builds a valid Enrollment for a fresh keypair/UTXO pair and
// submits it to the engine at currentHeight, returning the utxoKey used.
func (h *testHarness) enroll(t *testing.T, seedByte byte, currentHeight, cycleLength, stake uint64) (types.Hash512, *crypto.PrivateKey) {
	t.Helper()

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	var utxoKey, commitment types.Hash512
	utxoKey[0] = seedByte
	commitment[0] = seedByte ^ 0xFF

	challenge := crypto.Hash(EnrollmentChallenge(utxoKey, commitment, uint32(cycleLength)))
	sig, err := crypto.SignEnrollment(pk, challenge[:])
	if err != nil {
		t.Fatalf("SignEnrollment: %v", err)
	}

	op := types.Outpoint{Index: uint32(seedByte)}
	h.utxos.utxos[op] = &utxo.UTXO{
		Outpoint: op,
		Value:    stake,
		Script:   types.Script{Type: types.ScriptTypeStake, Data: pk.PublicKey()},
	}

	enr := Enrollment{UTXOKey: utxoKey, Commitment: commitment, CycleLength: uint32(cycleLength), EnrollSig: sig}
	r, err := h.engine.Add(enr, op, currentHeight)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if r != RejectionNone {
		t.Fatalf("Add() rejected: %q", r)
	}
	return utxoKey, pk
}

// TestEngine_S1_EnrollThenActive covers scenario S1: a validator enrolled
// at height H is active for (H, H+cycle].
func TestEngine_S1_EnrollThenActive(t *testing.T) {
	h := newTestHarness(20, 1_000)
	utxoKey, _ := h.enroll(t, 1, 100, 20, 10_000)

	if h.engine.GetEnrolledHeight(utxoKey) != 100 {
		t.Fatalf("GetEnrolledHeight = %d, want 100", h.engine.GetEnrolledHeight(utxoKey))
	}
	if !h.engine.HasEnrollment(utxoKey) {
		t.Fatal("HasEnrollment() = false, want true")
	}

	// Not yet active at the enrollment height itself: authority only
	// begins signing from enrolled_height+1.
	validators, err := h.engine.GetValidators(100)
	if err != nil {
		t.Fatalf("GetValidators: %v", err)
	}
	if len(validators) != 0 {
		t.Fatalf("GetValidators(100) = %d entries, want 0 (not active until H+1)", len(validators))
	}

	// Still active one block before expiry.
	validators, _ = h.engine.GetValidators(119)
	if len(validators) != 1 {
		t.Fatalf("GetValidators(119) = %d entries, want 1", len(validators))
	}

	// enrolled_height + cycle is still the last active block (the active
	// window runs through enrolled_height+cycle inclusive).
	validators, _ = h.engine.GetValidators(120)
	if len(validators) != 1 {
		t.Fatalf("GetValidators(120) = %d entries, want 1 (last active block)", len(validators))
	}

	// Expired the block after enrolled_height + cycle.
	validators, _ = h.engine.GetValidators(121)
	if len(validators) != 0 {
		t.Fatalf("GetValidators(121) = %d entries, want 0 (expired)", len(validators))
	}
}

// TestEngine_S2_DuplicateEnrollmentRejected covers scenario S2: the same
// utxo cannot back two simultaneously-active enrollments.
func TestEngine_S2_DuplicateEnrollmentRejected(t *testing.T) {
	h := newTestHarness(20, 1_000)

	pk, _ := crypto.GenerateKey()
	var utxoKey, commitment types.Hash512
	utxoKey[0] = 1
	commitment[0] = 2

	op := types.Outpoint{Index: 1}
	h.utxos.utxos[op] = &utxo.UTXO{Outpoint: op, Value: 10_000, Script: types.Script{Type: types.ScriptTypeStake, Data: pk.PublicKey()}}

	challenge := crypto.Hash(EnrollmentChallenge(utxoKey, commitment, 20))
	sig, _ := crypto.SignEnrollment(pk, challenge[:])
	enr := Enrollment{UTXOKey: utxoKey, Commitment: commitment, CycleLength: 20, EnrollSig: sig}

	r, err := h.engine.Add(enr, op, 100)
	if err != nil || r != RejectionNone {
		t.Fatalf("first Add: r=%q err=%v", r, err)
	}

	// Re-enroll the same utxo while still active.
	r, err = h.engine.Add(enr, op, 105)
	if err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if r != RejectionDuplicateEnrollment {
		t.Fatalf("second Add() = %q, want %q", r, RejectionDuplicateEnrollment)
	}
}

// TestEngine_DuplicatePublicKeyAcrossUTXOsRejected covers the scenario where
// the same public key backs two different stake utxos: the second
// enrollment must be rejected even though it names a different utxo_key,
// since a public key has at most one active ValidatorRecord.
func TestEngine_DuplicatePublicKeyAcrossUTXOsRejected(t *testing.T) {
	h := newTestHarness(20, 1_000)

	pk, _ := crypto.GenerateKey()

	enrollWithKey := func(seedByte byte, currentHeight uint64) Rejection {
		var utxoKey, commitment types.Hash512
		utxoKey[0] = seedByte
		commitment[0] = seedByte ^ 0xFF

		op := types.Outpoint{Index: uint32(seedByte)}
		h.utxos.utxos[op] = &utxo.UTXO{Outpoint: op, Value: 10_000, Script: types.Script{Type: types.ScriptTypeStake, Data: pk.PublicKey()}}

		challenge := crypto.Hash(EnrollmentChallenge(utxoKey, commitment, 20))
		sig, _ := crypto.SignEnrollment(pk, challenge[:])
		enr := Enrollment{UTXOKey: utxoKey, Commitment: commitment, CycleLength: 20, EnrollSig: sig}

		r, err := h.engine.Add(enr, op, currentHeight)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		return r
	}

	if r := enrollWithKey(1, 1); r != RejectionNone {
		t.Fatalf("first Add() = %q, want RejectionNone", r)
	}
	if r := enrollWithKey(2, 1); r != RejectionPublicKeyAlreadyEnrolled {
		t.Fatalf("second Add() = %q, want %q", r, RejectionPublicKeyAlreadyEnrolled)
	}
}

// TestEngine_S3_ReEnrollAfterExpiry covers scenario S3: once a prior
// enrollment has expired, the same utxo may enroll again.
func TestEngine_S3_ReEnrollAfterExpiry(t *testing.T) {
	h := newTestHarness(20, 1_000)

	pk, _ := crypto.GenerateKey()
	var utxoKey, commitment types.Hash512
	utxoKey[0] = 1
	commitment[0] = 2

	op := types.Outpoint{Index: 1}
	h.utxos.utxos[op] = &utxo.UTXO{Outpoint: op, Value: 10_000, Script: types.Script{Type: types.ScriptTypeStake, Data: pk.PublicKey()}}

	challenge := crypto.Hash(EnrollmentChallenge(utxoKey, commitment, 20))
	sig, _ := crypto.SignEnrollment(pk, challenge[:])
	enr := Enrollment{UTXOKey: utxoKey, Commitment: commitment, CycleLength: 20, EnrollSig: sig}

	if r, err := h.engine.Add(enr, op, 100); err != nil || r != RejectionNone {
		t.Fatalf("first Add: r=%q err=%v", r, err)
	}

	// Past expiry (120): re-enrollment must succeed.
	if r, err := h.engine.Add(enr, op, 125); err != nil || r != RejectionNone {
		t.Fatalf("re-enroll after expiry: r=%q err=%v", r, err)
	}

	if h.engine.GetEnrolledHeight(utxoKey) != 125 {
		t.Fatalf("GetEnrolledHeight = %d, want 125 (most recent)", h.engine.GetEnrolledHeight(utxoKey))
	}
}

// TestEngine_S4_SlashBoundarySemantics covers scenario S4: GetValidators
// excludes a validator slashed exactly at height H, while
// GetEnrolledUTXOs keeps it through height H.
func TestEngine_S4_SlashBoundarySemantics(t *testing.T) {
	h := newTestHarness(20, 1_000)
	utxoKey, _ := h.enroll(t, 1, 100, 20, 10_000)

	if err := h.engine.SlashValidator(utxoKey, 100, 110); err != nil {
		t.Fatalf("SlashValidator: %v", err)
	}

	validators, err := h.engine.GetValidators(110)
	if err != nil {
		t.Fatalf("GetValidators: %v", err)
	}
	if len(validators) != 0 {
		t.Fatalf("GetValidators(110) = %d entries, want 0 (slashed exactly at H)", len(validators))
	}

	utxos, err := h.engine.GetEnrolledUTXOs(110)
	if err != nil {
		t.Fatalf("GetEnrolledUTXOs: %v", err)
	}
	if len(utxos) != 1 {
		t.Fatalf("GetEnrolledUTXOs(110) = %d entries, want 1 (slash boundary is exclusive of H)", len(utxos))
	}

	utxos, err = h.engine.GetEnrolledUTXOs(111)
	if err != nil {
		t.Fatalf("GetEnrolledUTXOs: %v", err)
	}
	if len(utxos) != 0 {
		t.Fatalf("GetEnrolledUTXOs(111) = %d entries, want 0", len(utxos))
	}
}

// enrollWithSeed builds and submits an Enrollment whose commitment is a
// genuine pre-image hash chain head derived from seed, so tests can exercise
// real chained reveals end to end instead of only the rejection paths.
func (h *testHarness) enrollWithSeed(t *testing.T, seedByte byte, seed types.Hash512, enrolledHeight, cycleLength, stake uint64) (types.Hash512, PreImage) {
	t.Helper()

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	var utxoKey types.Hash512
	utxoKey[0] = seedByte
	head, _ := Derive(utxoKey, seed, enrolledHeight, uint32(cycleLength))

	op := types.Outpoint{Index: uint32(seedByte)}
	h.utxos.utxos[op] = &utxo.UTXO{
		Outpoint: op,
		Value:    stake,
		Script:   types.Script{Type: types.ScriptTypeStake, Data: pk.PublicKey()},
	}

	challenge := crypto.Hash(EnrollmentChallenge(utxoKey, head.Hash, uint32(cycleLength)))
	sig, err := crypto.SignEnrollment(pk, challenge[:])
	if err != nil {
		t.Fatalf("SignEnrollment: %v", err)
	}

	enr := Enrollment{UTXOKey: utxoKey, Commitment: head.Hash, CycleLength: uint32(cycleLength), EnrollSig: sig}
	r, err := h.engine.Add(enr, op, enrolledHeight)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if r != RejectionNone {
		t.Fatalf("Add() rejected: %q", r)
	}
	return utxoKey, head
}

// TestEngine_S5_PreimageChainReveal covers scenario S5: a chained reveal
// is accepted, and a reveal that breaks the chain is rejected.
func TestEngine_S5_PreimageChainReveal(t *testing.T) {
	h := newTestHarness(20, 1_000)
	seed := seedFor(0x42)

	utxoKey, head := h.enrollWithSeed(t, 1, seed, 100, 20, 10_000)

	// A genuine chained reveal at offset 5 (height 105) must be accepted.
	reveal := PreImage{UTXO: utxoKey, Hash: PreimageAt(seed, 20, 5), Height: 105}
	if r, err := h.engine.AddPreimage(reveal); err != nil {
		t.Fatalf("AddPreimage: %v", err)
	} else if r != RejectionNone {
		t.Fatalf("AddPreimage(valid reveal) = %q, want RejectionNone", r)
	}

	got, err := h.engine.GetPreimage(utxoKey)
	if err != nil {
		t.Fatalf("GetPreimage: %v", err)
	}
	if got != reveal {
		t.Fatalf("GetPreimage() = %+v, want %+v", got, reveal)
	}

	// A reveal that does not chain from the last accepted value is rejected.
	bogus := PreImage{UTXO: utxoKey, Hash: seedFor(0xEE), Height: 110}
	if r, err := h.engine.AddPreimage(bogus); err != nil {
		t.Fatalf("AddPreimage: %v", err)
	} else if r != RejectionPreimageChainBroken {
		t.Fatalf("AddPreimage(unrelated reveal) = %q, want %q", r, RejectionPreimageChainBroken)
	}

	_ = head
}

// TestEngine_AddPreimage_RejectsCycleOverrun covers scenario S4: a reveal
// more than validatorCycle blocks past the last accepted height is rejected
// with RejectionPreimageExceedsCycle even though its hash is a genuine
// element of the committed chain (the seed itself) - the cycle bound is
// checked before the hash relation.
func TestEngine_AddPreimage_RejectsCycleOverrun(t *testing.T) {
	h := newTestHarness(20, 1_000)
	seed := seedFor(0x7A)

	utxoKey, head := h.enrollWithSeed(t, 1, seed, 100, 20, 10_000)

	farReveal := PreImage{UTXO: utxoKey, Hash: seed, Height: 10_000}
	r, err := h.engine.AddPreimage(farReveal)
	if err != nil {
		t.Fatalf("AddPreimage: %v", err)
	}
	if r != RejectionPreimageExceedsCycle {
		t.Fatalf("AddPreimage(far reveal) = %q, want %q", r, RejectionPreimageExceedsCycle)
	}

	stored, err := h.engine.GetPreimage(utxoKey)
	if err != nil {
		t.Fatalf("GetPreimage: %v", err)
	}
	if stored.Hash != head.Hash || stored.Height != 100 {
		t.Fatalf("GetPreimage() = %+v, want unchanged from enrollment", stored)
	}
}

func TestEngine_AddPreimage_UnknownUTXO(t *testing.T) {
	h := newTestHarness(20, 1_000)
	var unknown types.Hash512
	unknown[0] = 0xEE

	r, err := h.engine.AddPreimage(PreImage{UTXO: unknown, Height: 1})
	if err != nil {
		t.Fatalf("AddPreimage: %v", err)
	}
	if r != RejectionUnknownPreimageUTXO {
		t.Fatalf("AddPreimage(unknown utxo) = %q, want %q", r, RejectionUnknownPreimageUTXO)
	}
}

// TestEngine_S6_FindRecentEnrollment covers scenario S6.
func TestEngine_S6_FindRecentEnrollment(t *testing.T) {
	h := newTestHarness(20, 1_000)
	utxoKey, _ := h.enroll(t, 1, 100, 20, 10_000)

	state, ok, err := h.engine.FindRecentEnrollment(utxoKey)
	if err != nil {
		t.Fatalf("FindRecentEnrollment: %v", err)
	}
	if !ok {
		t.Fatal("FindRecentEnrollment() ok = false, want true")
	}
	if state.EnrolledHeight != 100 {
		t.Fatalf("EnrolledHeight = %d, want 100", state.EnrolledHeight)
	}
	if state.SlashedHeight != 0 {
		t.Fatalf("SlashedHeight = %d, want 0", state.SlashedHeight)
	}

	var neverEnrolled types.Hash512
	neverEnrolled[0] = 0xFE
	_, ok, err = h.engine.FindRecentEnrollment(neverEnrolled)
	if err != nil {
		t.Fatalf("FindRecentEnrollment: %v", err)
	}
	if ok {
		t.Fatal("FindRecentEnrollment() for unenrolled utxo ok = true, want false")
	}
}

func TestEngine_CountActive(t *testing.T) {
	h := newTestHarness(20, 1_000)
	h.enroll(t, 1, 100, 20, 10_000)
	h.enroll(t, 2, 105, 20, 10_000)

	count, err := h.engine.CountActive(110)
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if count != 2 {
		t.Fatalf("CountActive(110) = %d, want 2", count)
	}
}

func TestEngine_Add_PassesThroughValidationRejection(t *testing.T) {
	h := newTestHarness(20, 1_000)

	pk, _ := crypto.GenerateKey()
	var utxoKey, commitment types.Hash512
	utxoKey[0] = 1

	op := types.Outpoint{Index: 1}
	// No UTXO registered for this outpoint.
	challenge := crypto.Hash(EnrollmentChallenge(utxoKey, commitment, 20))
	sig, _ := crypto.SignEnrollment(pk, challenge[:])
	enr := Enrollment{UTXOKey: utxoKey, Commitment: commitment, CycleLength: 20, EnrollSig: sig}

	r, err := h.engine.Add(enr, op, 100)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if r != RejectionUTXONotFound {
		t.Fatalf("Add() = %q, want %q", r, RejectionUTXONotFound)
	}
}

func TestEngine_RemoveAll(t *testing.T) {
	h := newTestHarness(20, 1_000)
	utxoKey, _ := h.enroll(t, 1, 100, 20, 10_000)

	if err := h.engine.RemoveAll(); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if h.engine.HasEnrollment(utxoKey) {
		t.Fatal("HasEnrollment() after RemoveAll = true, want false")
	}
}

func TestEngine_MinEnrollmentHeight(t *testing.T) {
	h := newTestHarness(20, 1_000)
	if got := h.engine.MinEnrollmentHeight(10); got != 0 {
		t.Fatalf("MinEnrollmentHeight(10) = %d, want 0", got)
	}
	if got := h.engine.MinEnrollmentHeight(100); got != 80 {
		t.Fatalf("MinEnrollmentHeight(100) = %d, want 80", got)
	}
}
