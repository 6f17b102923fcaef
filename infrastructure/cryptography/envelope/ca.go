package envelope

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/sign"
)

// CA is the certificate-authority material: a signed random secret plus the
// signing keypair. A pure client only carries Cert and PublicKey.
type CA struct {
	// Cert is the signed certificate blob: signature prefix + secret.
	Cert       []byte
	PublicKey  *[SignPublicKeySize]byte
	PrivateKey *[SignSecretKeySize]byte
}

// GenerateCA mints a fresh authority: a random 32-byte secret signed by a
// newly generated signing key.
func GenerateCA() (*CA, error) {
	pk, sk, err := sign.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA signing key: %w", err)
	}

	secret := make([]byte, CertSize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("failed to generate CA secret: %w", err)
	}

	return &CA{
		Cert:       sign.Sign(nil, secret, sk),
		PublicKey:  pk,
		PrivateKey: sk,
	}, nil
}

// Fingerprint computes the authority fingerprint: the certificate blob
// hashed with the CA public key as the hash key.
func Fingerprint(caCert []byte, caPublicKey *[SignPublicKeySize]byte) ([FingerprintSize]byte, error) {
	var fp [FingerprintSize]byte
	if len(caCert) != CACertSize {
		return fp, ErrInvalidCACert
	}

	h, err := blake2b.New256(caPublicKey[:])
	if err != nil {
		return fp, fmt.Errorf("failed to key fingerprint hash: %w", err)
	}
	h.Write(caCert)
	copy(fp[:], h.Sum(nil))

	return fp, nil
}
