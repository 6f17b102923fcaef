package envelope

import "errors"

var (
	// ErrIdentityMismatch covers both a failed CA signature open and an
	// identity whose embedded fingerprint differs from the local one.
	ErrIdentityMismatch = errors.New("identity mismatch")
	// ErrDecryptFailed is an AEAD open failure; callers drop the frame.
	ErrDecryptFailed = errors.New("decrypt failed")

	ErrInvalidCACert   = errors.New("invalid CA certificate")
	ErrInvalidIdentity = errors.New("invalid identity envelope")
)
