package envelope

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/sign"
)

// Identity is a host's long-term keypair: the CA-signed public envelope that
// travels in HELLO frames, and the box secret key that never does.
type Identity struct {
	// Public is sign(boxPublicKey || caFingerprint) under the CA signing key.
	Public []byte
	Secret *[KeySize]byte
}

// IssueIdentity mints a new box keypair and signs it, with the authority
// fingerprint appended, under the CA signing key.
func IssueIdentity(ca *CA) (*Identity, error) {
	if ca.PrivateKey == nil {
		return nil, fmt.Errorf("issuing requires the CA private key")
	}

	fp, err := Fingerprint(ca.Cert, ca.PublicKey)
	if err != nil {
		return nil, err
	}

	pk, sk, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate box keypair: %w", err)
	}

	payload := make([]byte, 0, KeySize+FingerprintSize)
	payload = append(payload, pk[:]...)
	payload = append(payload, fp[:]...)

	return &Identity{
		Public: sign.Sign(nil, payload, ca.PrivateKey),
		Secret: sk,
	}, nil
}

// VerifyIdentity opens the envelope's outer signature under the CA public
// key and checks the embedded fingerprint against the locally computed one.
// Both checks must pass; either failure yields ErrIdentityMismatch.
func VerifyIdentity(blob []byte, caPublicKey *[SignPublicKeySize]byte, caCert []byte) (*[KeySize]byte, error) {
	if len(blob) != IdentitySize {
		return nil, ErrInvalidIdentity
	}

	payload, ok := sign.Open(nil, blob, caPublicKey)
	if !ok || len(payload) != KeySize+FingerprintSize {
		return nil, ErrIdentityMismatch
	}

	localFp, err := Fingerprint(caCert, caPublicKey)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(payload[KeySize:], localFp[:]) != 1 {
		return nil, ErrIdentityMismatch
	}

	var peer [KeySize]byte
	copy(peer[:], payload[:KeySize])
	return &peer, nil
}
