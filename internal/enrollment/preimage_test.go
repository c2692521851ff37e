package enrollment

import (
	"testing"

	"github.com/bosagora/agora/pkg/crypto"
	"github.com/bosagora/agora/pkg/types"
)

func seedFor(b byte) types.Hash512 {
	var s types.Hash512
	for i := range s {
		s[i] = b
	}
	return s
}

func TestDerive_MatchesPreimageAtZero(t *testing.T) {
	utxoKey := seedFor(0xAA)
	seed := seedFor(0x01)

	head, expiry := Derive(utxoKey, seed, 100, 20)
	if expiry != 120 {
		t.Fatalf("chainExpiryHeight = %d, want 120", expiry)
	}
	if head.UTXO != utxoKey {
		t.Fatalf("head.UTXO = %x, want %x", head.UTXO, utxoKey)
	}

	atZero := PreimageAt(seed, 20, 0)
	if head.Hash != atZero {
		t.Fatal("Derive's head must equal PreimageAt(seed, cycleLength, 0)")
	}
}

func TestPreimageAt_LastOffsetIsSeed(t *testing.T) {
	seed := seedFor(0x02)
	got := PreimageAt(seed, 20, 20)
	if got != seed {
		t.Fatal("PreimageAt at the final offset must return the seed itself")
	}
}

func TestVerify_ValidChain(t *testing.T) {
	utxoKey := seedFor(0xAA)
	seed := seedFor(0x03)

	head, _ := Derive(utxoKey, seed, 100, 20)

	// Reveal at offset 5, height 105.
	reveal1 := PreImage{UTXO: utxoKey, Hash: PreimageAt(seed, 20, 5), Height: 105}
	if !Verify(head, reveal1, 20) {
		t.Fatal("reveal1 should verify against head")
	}

	// Reveal at offset 12, height 112, must verify against reveal1.
	reveal2 := PreImage{UTXO: utxoKey, Hash: PreimageAt(seed, 20, 12), Height: 112}
	if !Verify(reveal1, reveal2, 20) {
		t.Fatal("reveal2 should verify against reveal1")
	}

	// But reveal2 does not directly verify against head with the wrong
	// intermediate skipped incorrectly - it should still verify directly too,
	// since Verify just checks the hash-chain distance between the two.
	if !Verify(head, reveal2, 20) {
		t.Fatal("reveal2 should also verify directly against head")
	}
}

func TestVerify_RejectsDeltaExceedingCycle(t *testing.T) {
	utxoKey := seedFor(0xAA)

	// A validator who privately retains more hash depth than it committed
	// to can honestly compute a value that satisfies the repeated-hash
	// relation arbitrarily far past the committed cycle length: here
	// trueSeed is one hash deeper than the nominal seed used at
	// enrollment, so trueSeed itself is a legitimate continuation one
	// height past the committed 20-block cycle.
	trueSeed := seedFor(0x05)
	nominalSeed := crypto.Hash512(trueSeed[:])
	head, _ := Derive(utxoKey, nominalSeed, 100, 20)

	tooFar := PreImage{UTXO: utxoKey, Hash: trueSeed, Height: 100 + 21}
	if Verify(head, tooFar, 20) {
		t.Fatal("Verify must reject a delta exceeding validatorCycle even when the hash relation holds")
	}
}

func TestVerify_RejectsNonIncreasingHeight(t *testing.T) {
	p1 := PreImage{Hash: seedFor(1), Height: 100}
	p2 := PreImage{Hash: seedFor(2), Height: 100}
	if Verify(p1, p2, 20) {
		t.Fatal("Verify must reject equal heights")
	}
	p3 := PreImage{Hash: seedFor(3), Height: 90}
	if Verify(p1, p3, 20) {
		t.Fatal("Verify must reject a decreasing height")
	}
}

func TestVerify_RejectsWrongHash(t *testing.T) {
	utxoKey := seedFor(0xAA)
	seed := seedFor(0x04)
	head, _ := Derive(utxoKey, seed, 100, 20)

	bogus := PreImage{UTXO: utxoKey, Hash: seedFor(0xFF), Height: 105}
	if Verify(head, bogus, 20) {
		t.Fatal("Verify must reject an unrelated hash value")
	}
}
