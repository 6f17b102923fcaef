package envelope

import "golang.org/x/crypto/nacl/box"

const (
	// CertSize is the random secret inside a CA certificate.
	CertSize = 32
	// SignatureSize is the detached-prefix signature length.
	SignatureSize = 64
	// FingerprintSize is the keyed-hash output length.
	FingerprintSize = 32
	// KeySize covers box public keys, box secret keys and shared keys.
	KeySize = 32
	// SignPublicKeySize and SignSecretKeySize are the CA signing key sizes.
	SignPublicKeySize = 32
	SignSecretKeySize = 64

	NonceSize = 24
	MACSize   = box.Overhead

	// CACertSize is a CA certificate on disk: signature prefix + secret.
	CACertSize = SignatureSize + CertSize
	// IdentitySize is a signed identity envelope:
	// signature prefix + box public key + CA fingerprint.
	IdentitySize = SignatureSize + KeySize + FingerprintSize
	// SealedKeySize is a box-sealed ephemeral public key.
	SealedKeySize = KeySize + MACSize
)
