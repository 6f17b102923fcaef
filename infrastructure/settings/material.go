package settings

import (
	"encoding/hex"
	"errors"
	"fmt"

	"carbonvpn/infrastructure/cryptography/envelope"
)

// ErrConfig marks configuration failures that are fatal at startup.
var ErrConfig = errors.New("configuration error")

// decodeHex decodes a hex value only when it has exactly the expected
// binary size; malformed values are ignored so later validation reports
// the material as missing, the same way oversized values never load.
func decodeHex(value string, size int) []byte {
	if len(value) != 2*size {
		return nil
	}
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil
	}
	return raw
}

func (s *Settings) setCACert(value string) {
	if raw := decodeHex(value, envelope.CACertSize); raw != nil {
		s.CACert = raw
	}
}

func (s *Settings) setCAPublicKey(value string) {
	if raw := decodeHex(value, envelope.SignPublicKeySize); raw != nil {
		var k [envelope.SignPublicKeySize]byte
		copy(k[:], raw)
		s.CAPublicKey = &k
	}
}

func (s *Settings) setCAPrivateKey(value string) {
	if raw := decodeHex(value, envelope.SignSecretKeySize); raw != nil {
		var k [envelope.SignSecretKeySize]byte
		copy(k[:], raw)
		s.CAPrivateKey = &k
	}
}

func (s *Settings) setIdentity(value string) {
	if raw := decodeHex(value, envelope.IdentitySize); raw != nil {
		s.Identity = raw
	}
}

func (s *Settings) setPrivateKey(value string) {
	if raw := decodeHex(value, envelope.KeySize); raw != nil {
		var k [envelope.KeySize]byte
		copy(k[:], raw)
		s.PrivateKey = &k
	}
}

// ValidateMaterial checks that the certificate bundle needed to run the
// tunnel is present. The CA private key is not required at runtime.
func (s *Settings) ValidateMaterial() error {
	if len(s.CACert) != envelope.CACertSize {
		return fmt.Errorf("%w: no CA certificate in config, see genca", ErrConfig)
	}
	if s.CAPublicKey == nil {
		return fmt.Errorf("%w: no CA public key in config, see genca", ErrConfig)
	}
	if len(s.Identity) != envelope.IdentitySize {
		return fmt.Errorf("%w: no public key in config, see gencert", ErrConfig)
	}
	if s.PrivateKey == nil {
		return fmt.Errorf("%w: no private key in config, see gencert", ErrConfig)
	}
	return nil
}
