package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"hop.computer/nsh/pkg/must"
)

// PublicKeyPrefix starts the text encoding of every PublicKey.
const PublicKeyPrefix = "nsh-ed25519-"

// PublicKey is an Ed25519 public key. It identifies a node: daemons are
// addressed by it and connections are authenticated against it.
type PublicKey [ed25519.PublicKeySize]byte

// PrivateKey is the 32-byte seed of an Ed25519 private key.
type PrivateKey [ed25519.SeedSize]byte

// Signature is an Ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// SigningKeyPair is an Ed25519 key pair.
type SigningKeyPair struct {
	Public  PublicKey
	Private PrivateKey
}

// GenerateNewSigningKeyPair allocates a new SigningKeyPair and calls Generate.
func GenerateNewSigningKeyPair() *SigningKeyPair {
	out := new(SigningKeyPair)
	out.Generate()
	return out
}

// Generate populates e with a randomly generated Ed25519 key.
func (e *SigningKeyPair) Generate() {
	public, private, err := ed25519.GenerateKey(must.Random)
	if err != nil {
		logrus.Panicf("unable to generate Ed25519 signing key: %s", err)
	}
	copy(e.Private[:], private.Seed())
	copy(e.Public[:], public)
}

// PublicFromPrivate populates e.Public based on e.Private.
func (e *SigningKeyPair) PublicFromPrivate() {
	k := ed25519.NewKeyFromSeed(e.Private[:])
	copy(e.Public[:], k.Public().(ed25519.PublicKey))
}

// Sign signs msg with the private key.
func (e *SigningKeyPair) Sign(msg []byte) Signature {
	var out Signature
	copy(out[:], ed25519.Sign(ed25519.NewKeyFromSeed(e.Private[:]), msg))
	return out
}

// Verify reports whether sig is a valid signature of msg by p.
func (p *PublicKey) Verify(msg []byte, sig *Signature) bool {
	return ed25519.Verify(p[:], msg, sig[:])
}

// IsZero is true for the all-zero key, which is never a valid identity.
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// String encodes a PublicKey as nsh-ed25519-<base64url>.
func (p PublicKey) String() string {
	return PublicKeyPrefix + base64.RawURLEncoding.EncodeToString(p[:])
}

// ParsePublicKey is the inverse of PublicKey.String.
func ParsePublicKey(encoded string) (PublicKey, error) {
	var out PublicKey
	if !strings.HasPrefix(encoded, PublicKeyPrefix) {
		return out, fmt.Errorf("bad prefix in identity %q, expected %s", encoded, PublicKeyPrefix)
	}
	b, err := base64.RawURLEncoding.DecodeString(encoded[len(PublicKeyPrefix):])
	if err != nil {
		return out, fmt.Errorf("invalid identity %q: %w", encoded, err)
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("invalid identity length, got %d, expected %d", len(b), len(out))
	}
	copy(out[:], b)
	return out, nil
}
