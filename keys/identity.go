package keys

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrBadCertificate is returned when a certificate signature does not verify.
var ErrBadCertificate = errors.New("certificate is not self-signed by its public key")

// CertLen is the size of an encoded Cert.
const CertLen = len(PublicKey{}) + len(Signature{})

// Cert is a self-signed certificate: the public key together with its own
// signature over itself. It proves possession of the private key.
type Cert struct {
	PublicKey PublicKey
	Signature Signature
}

// SelfSign builds the certificate for k.
func SelfSign(k *SigningKeyPair) Cert {
	return Cert{
		PublicKey: k.Public,
		Signature: k.Sign(k.Public[:]),
	}
}

// Verify checks the self-signature.
func (c *Cert) Verify() error {
	if !c.PublicKey.Verify(c.PublicKey[:], &c.Signature) {
		return ErrBadCertificate
	}
	return nil
}

// Bytes encodes the certificate as PublicKey || Signature.
func (c *Cert) Bytes() []byte {
	out := make([]byte, 0, CertLen)
	out = append(out, c.PublicKey[:]...)
	return append(out, c.Signature[:]...)
}

// ParseCert decodes the output of Cert.Bytes. It does not verify the
// signature.
func ParseCert(b []byte) (Cert, error) {
	var c Cert
	if len(b) != CertLen {
		return c, errors.Errorf("invalid certificate length, got %d, expected %d", len(b), CertLen)
	}
	copy(c.PublicKey[:], b)
	copy(c.Signature[:], b[len(c.PublicKey):])
	return c, nil
}

// NodeKeys is the long-term identity of a process: its signing key pair and
// the matching certificate. It is loaded once at startup and passed
// explicitly to every component that needs it.
type NodeKeys struct {
	SigningKeyPair
	Cert Cert
}

// NewNodeKeys derives the certificate for kp.
func NewNodeKeys(kp *SigningKeyPair) *NodeKeys {
	return &NodeKeys{
		SigningKeyPair: *kp,
		Cert:           SelfSign(kp),
	}
}

// GenerateNodeKeys creates a fresh identity.
func GenerateNodeKeys() *NodeKeys {
	return NewNodeKeys(GenerateNewSigningKeyPair())
}

// ID returns the public identity.
func (n *NodeKeys) ID() PublicKey {
	return n.Public
}

// WriteNodeKeys stores the private key of n at path, creating parent
// directories as needed. The file is only readable by its owner.
func WriteNodeKeys(path string, n *NodeKeys) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrapf(err, "unable to create directory for %s", path)
	}
	var buf bytes.Buffer
	if err := EncodeSigningKeyToPEM(&buf, &n.SigningKeyPair); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// LoadOrGenerate reads the identity at path. If no file exists there, a new
// identity is generated and written to path, and created is true.
func LoadOrGenerate(path string) (n *NodeKeys, created bool, err error) {
	kp, err := ReadSigningKeyFromPEMFile(path)
	if err == nil {
		return NewNodeKeys(kp), false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	logrus.Debugf("keys: no identity at %s, generating", path)
	n = GenerateNodeKeys()
	if err := WriteNodeKeys(path, n); err != nil {
		return nil, false, err
	}
	return n, true, nil
}
