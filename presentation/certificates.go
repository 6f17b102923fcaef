package presentation

import (
	"encoding/hex"
	"fmt"
	"io"

	"carbonvpn/infrastructure/cryptography/envelope"
	"carbonvpn/infrastructure/cryptography/mem"
	"carbonvpn/infrastructure/settings"
)

// RunGenCA mints a fresh certificate authority and prints the config lines
// for it.
func RunGenCA(out io.Writer) error {
	ca, err := envelope.GenerateCA()
	if err != nil {
		return err
	}
	defer mem.ZeroBytes(ca.PrivateKey[:])

	fmt.Fprintln(out, "Add the following lines to the config file:")
	fmt.Fprintf(out, "cacert = %s\n", hex.EncodeToString(ca.Cert))
	fmt.Fprintf(out, "capublickey = %s\n", hex.EncodeToString(ca.PublicKey[:]))
	fmt.Fprintf(out, "caprivatekey = %s\n", hex.EncodeToString(ca.PrivateKey[:]))
	return nil
}

// RunGenCert issues a host identity signed by the configured CA and prints
// the config lines for it.
func RunGenCert(conf settings.Settings, out io.Writer) error {
	if len(conf.CACert) != envelope.CACertSize {
		return fmt.Errorf("%w: no CA certificate in config, see genca", settings.ErrConfig)
	}
	if conf.CAPublicKey == nil {
		return fmt.Errorf("%w: no CA public key in config, see genca", settings.ErrConfig)
	}
	if conf.CAPrivateKey == nil {
		return fmt.Errorf("%w: no CA private key in config, see genca", settings.ErrConfig)
	}

	id, err := envelope.IssueIdentity(&envelope.CA{
		Cert:       conf.CACert,
		PublicKey:  conf.CAPublicKey,
		PrivateKey: conf.CAPrivateKey,
	})
	if err != nil {
		return err
	}
	defer mem.ZeroKey(id.Secret)

	fmt.Fprintln(out, "Add the following lines to the config file:")
	fmt.Fprintf(out, "publickey = %s\n", hex.EncodeToString(id.Public))
	fmt.Fprintf(out, "privatekey = %s\n", hex.EncodeToString(id.Secret[:]))
	return nil
}
