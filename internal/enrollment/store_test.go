package enrollment

import (
	"testing"

	"github.com/bosagora/agora/internal/storage"
	"github.com/bosagora/agora/pkg/types"
)

func testUTXOKey(b byte) types.Hash512 {
	var h types.Hash512
	h[0] = b
	return h
}

func testPubKey(b byte) types.PublicKey {
	var pk types.PublicKey
	pk[0] = b
	return pk
}

func TestStore_PutAtomicAndGet(t *testing.T) {
	s := NewStore(storage.NewMemory())

	utxoKey := testUTXOKey(1)
	pubKey := testPubKey(2)

	vr := &ValidatorRecord{
		UTXOKey:        utxoKey,
		EnrolledHeight: 100,
		PublicKey:      pubKey,
		Stake:          10_000,
		CycleLength:    20,
	}
	pr := &PreImageRecord{
		UTXOKey:               utxoKey,
		CurrentPreimageHash:   testUTXOKey(3),
		CurrentPreimageHeight: 100,
	}

	if err := s.PutAtomic(vr, pr); err != nil {
		t.Fatalf("PutAtomic: %v", err)
	}

	got, err := s.Get(utxoKey, 100)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Stake != 10_000 || got.PublicKey != pubKey {
		t.Fatalf("Get() = %+v, want stake 10000 pubkey %x", got, pubKey)
	}

	gotPR, err := s.GetPreimage(utxoKey)
	if err != nil {
		t.Fatalf("GetPreimage: %v", err)
	}
	if gotPR.CurrentPreimageHeight != 100 {
		t.Fatalf("GetPreimage().CurrentPreimageHeight = %d, want 100", gotPR.CurrentPreimageHeight)
	}

	has, err := s.HasPublicKey(pubKey)
	if err != nil {
		t.Fatalf("HasPublicKey: %v", err)
	}
	if !has {
		t.Fatal("HasPublicKey() = false, want true")
	}

	other := testPubKey(99)
	has, err = s.HasPublicKey(other)
	if err != nil {
		t.Fatalf("HasPublicKey: %v", err)
	}
	if has {
		t.Fatal("HasPublicKey() for unenrolled key = true, want false")
	}
}

func TestStore_PutValidatorUpdatesSlash(t *testing.T) {
	s := NewStore(storage.NewMemory())
	utxoKey := testUTXOKey(1)

	vr := &ValidatorRecord{UTXOKey: utxoKey, EnrolledHeight: 50, PublicKey: testPubKey(1), Stake: 1, CycleLength: 20}
	pr := &PreImageRecord{UTXOKey: utxoKey, CurrentPreimageHash: testUTXOKey(9), CurrentPreimageHeight: 50}
	if err := s.PutAtomic(vr, pr); err != nil {
		t.Fatalf("PutAtomic: %v", err)
	}

	vr.SlashedHeight = 55
	if err := s.PutValidator(vr); err != nil {
		t.Fatalf("PutValidator: %v", err)
	}

	got, err := s.Get(utxoKey, 50)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SlashedHeight != 55 {
		t.Fatalf("SlashedHeight = %d, want 55", got.SlashedHeight)
	}
}

func TestStore_ForEachValidator(t *testing.T) {
	s := NewStore(storage.NewMemory())

	for i := byte(1); i <= 3; i++ {
		utxoKey := testUTXOKey(i)
		vr := &ValidatorRecord{UTXOKey: utxoKey, EnrolledHeight: uint64(i) * 10, PublicKey: testPubKey(i), Stake: 1, CycleLength: 20}
		pr := &PreImageRecord{UTXOKey: utxoKey}
		if err := s.PutAtomic(vr, pr); err != nil {
			t.Fatalf("PutAtomic: %v", err)
		}
	}

	count := 0
	err := s.ForEachValidator(func(r *ValidatorRecord) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachValidator: %v", err)
	}
	if count != 3 {
		t.Fatalf("ForEachValidator visited %d records, want 3", count)
	}
}

func TestStore_RemoveAll(t *testing.T) {
	s := NewStore(storage.NewMemory())

	utxoKey := testUTXOKey(1)
	vr := &ValidatorRecord{UTXOKey: utxoKey, EnrolledHeight: 10, PublicKey: testPubKey(1), Stake: 1, CycleLength: 20}
	pr := &PreImageRecord{UTXOKey: utxoKey}
	if err := s.PutAtomic(vr, pr); err != nil {
		t.Fatalf("PutAtomic: %v", err)
	}

	if err := s.RemoveAll(); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	if _, err := s.Get(utxoKey, 10); err == nil {
		t.Fatal("Get() after RemoveAll should error")
	}
	if _, err := s.GetPreimage(utxoKey); err == nil {
		t.Fatal("GetPreimage() after RemoveAll should error")
	}
	has, err := s.HasPublicKey(testPubKey(1))
	if err != nil {
		t.Fatalf("HasPublicKey: %v", err)
	}
	if has {
		t.Fatal("HasPublicKey() after RemoveAll = true, want false")
	}
}
