package envelope

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

// NewNonce draws a fresh random box nonce.
func NewNonce() ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nonce, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// NewKeyPair generates a box keypair, used for ephemeral session keys.
func NewKeyPair() (publicKey, secretKey *[KeySize]byte, err error) {
	publicKey, secretKey, err = box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate box keypair: %w", err)
	}
	return publicKey, secretKey, nil
}

// SealEphemeral seals a fresh ephemeral public key under the peer's
// long-term public key, authenticated by the local long-term secret key.
func SealEphemeral(ephemeralPublic *[KeySize]byte, nonce *[NonceSize]byte, peerPublic, localSecret *[KeySize]byte) []byte {
	return box.Seal(nil, ephemeralPublic[:], nonce, peerPublic, localSecret)
}

// OpenEphemeral recovers the peer's ephemeral public key from a sealed
// INIT_EPHEX/RESP_EPHEX body.
func OpenEphemeral(sealed []byte, nonce *[NonceSize]byte, peerPublic, localSecret *[KeySize]byte) (*[KeySize]byte, error) {
	if len(sealed) != SealedKeySize {
		return nil, ErrDecryptFailed
	}
	opened, ok := box.Open(nil, sealed, nonce, peerPublic, localSecret)
	if !ok {
		return nil, ErrDecryptFailed
	}

	var ephemeral [KeySize]byte
	copy(ephemeral[:], opened)
	return &ephemeral, nil
}

// Precompute derives the per-session shared key from the peer's ephemeral
// public key and the local ephemeral secret key.
func Precompute(peerEphemeralPublic, localEphemeralSecret *[KeySize]byte) *[KeySize]byte {
	var shared [KeySize]byte
	box.Precompute(&shared, peerEphemeralPublic, localEphemeralSecret)
	return &shared
}

// SealStream encrypts one tunnelled datagram with the precomputed shared key.
func SealStream(plaintext []byte, nonce *[NonceSize]byte, shared *[KeySize]byte) []byte {
	return box.SealAfterPrecomputation(nil, plaintext, nonce, shared)
}

// OpenStream authenticates and decrypts a STREAM body. A MAC mismatch is
// reported as ErrDecryptFailed; callers drop the frame silently.
func OpenStream(ciphertext []byte, nonce *[NonceSize]byte, shared *[KeySize]byte) ([]byte, error) {
	if shared == nil || len(ciphertext) < MACSize {
		return nil, ErrDecryptFailed
	}
	plaintext, ok := box.OpenAfterPrecomputation(nil, ciphertext, nonce, shared)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
