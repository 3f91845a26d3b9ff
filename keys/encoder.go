package keys

import (
	"encoding/pem"
	"io"
	"os"

	"github.com/pkg/errors"
)

// PEMTypeSigningPrivate is the PEM block type of an encoded SigningKeyPair.
const PEMTypeSigningPrivate = "NSH ED25519 PRIVATE KEY"

// EncodeSigningKeyToPEM writes a signing (Ed25519) private key to PEM format.
func EncodeSigningKeyToPEM(w io.Writer, key *SigningKeyPair) error {
	p := pem.Block{
		Type:  PEMTypeSigningPrivate,
		Bytes: key.Private[:],
	}
	return pem.Encode(w, &p)
}

// SigningKeyFromPEM decodes the first PEM block in b as a SigningKeyPair.
func SigningKeyFromPEM(b []byte) (*SigningKeyPair, error) {
	p, _ := pem.Decode(b)
	if p == nil {
		return nil, errors.New("not a PEM file")
	}
	if p.Type != PEMTypeSigningPrivate {
		return nil, errors.Errorf("wrong PEM type %q, want %q", p.Type, PEMTypeSigningPrivate)
	}
	out := new(SigningKeyPair)
	if n := copy(out.Private[:], p.Bytes); n != len(out.Private) || len(p.Bytes) != n {
		return nil, errors.Errorf("unexpected key length (got %d, expected %d)", len(p.Bytes), len(out.Private))
	}
	out.PublicFromPrivate()
	return out, nil
}

// ReadSigningKeyFromPEMFile reads the first PEM-encoded signing key at the
// provided path.
func ReadSigningKeyFromPEMFile(path string) (*SigningKeyPair, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	k, err := SigningKeyFromPEM(b)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to decode key in %s", path)
	}
	return k, nil
}
