package crypto

import "testing"

func TestEnrollmentSig_SignAndVerify(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	challenge := Hash([]byte("enroll challenge"))
	sig, err := SignEnrollment(key, challenge[:])
	if err != nil {
		t.Fatalf("SignEnrollment: %v", err)
	}

	if !sig.Verify(challenge[:], key.PublicKey()) {
		t.Error("Verify should accept a valid signature")
	}

	other, _ := GenerateKey()
	if sig.Verify(challenge[:], other.PublicKey()) {
		t.Error("Verify should reject the wrong public key")
	}
}

func TestEnrollmentSig_SerializeRoundtrip(t *testing.T) {
	key, _ := GenerateKey()
	challenge := Hash([]byte("roundtrip"))
	sig, err := SignEnrollment(key, challenge[:])
	if err != nil {
		t.Fatalf("SignEnrollment: %v", err)
	}

	parsed, err := ParseEnrollmentSig(sig.Serialize())
	if err != nil {
		t.Fatalf("ParseEnrollmentSig: %v", err)
	}
	if parsed != sig {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", parsed, sig)
	}
}

func TestParseEnrollmentSig_WrongLength(t *testing.T) {
	if _, err := ParseEnrollmentSig(make([]byte, 10)); err == nil {
		t.Error("expected error for short signature")
	}
}
