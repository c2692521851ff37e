package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/bosagora/agora/pkg/types"
)

// EnrollmentSig is a decomposed Schnorr (R, s) pair, as used by the
// enrollment-message envelope (the nonce point R doubles as the freeze
// UTXO's commitment binding). schnorr.Signature serializes as 64 bytes,
// R (32 bytes) followed by s (32 bytes); EnrollmentSig splits that
// serialization into its two halves rather than carrying an opaque blob,
// since the enrollment validator needs R on its own as the nonce point.
type EnrollmentSig struct {
	R types.Hash
	S types.Hash
}

// Serialize returns the 64-byte R||s encoding accepted by schnorr.ParseSignature.
func (s EnrollmentSig) Serialize() []byte {
	out := make([]byte, 64)
	copy(out[:32], s.R[:])
	copy(out[32:], s.S[:])
	return out
}

// ParseEnrollmentSig decodes a 64-byte R||s Schnorr signature.
func ParseEnrollmentSig(b []byte) (EnrollmentSig, error) {
	if len(b) != 64 {
		return EnrollmentSig{}, fmt.Errorf("enrollment signature must be 64 bytes, got %d", len(b))
	}
	// Validate it parses as a real schnorr signature before accepting it.
	if _, err := schnorr.ParseSignature(b); err != nil {
		return EnrollmentSig{}, fmt.Errorf("parse schnorr signature: %w", err)
	}
	var sig EnrollmentSig
	copy(sig.R[:], b[:32])
	copy(sig.S[:], b[32:])
	return sig, nil
}

// SignEnrollment produces an EnrollmentSig over a 32-byte challenge hash.
func SignEnrollment(pk *PrivateKey, challenge []byte) (EnrollmentSig, error) {
	raw, err := pk.Sign(challenge)
	if err != nil {
		return EnrollmentSig{}, err
	}
	return ParseEnrollmentSig(raw)
}

// Verify checks the enrollment signature against a challenge hash and a
// compressed public key, using the signature's own R as the nonce point
// (schnorr.ParseSignature already reconstructs R from the 64-byte blob,
// so verification is just delegated to VerifySignature on the reassembled
// serialization).
func (s EnrollmentSig) Verify(challenge, publicKey []byte) bool {
	return VerifySignature(challenge, s.Serialize(), publicKey)
}
