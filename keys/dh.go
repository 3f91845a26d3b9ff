package keys

import (
	"golang.org/x/crypto/curve25519"

	"hop.computer/nsh/pkg/must"
)

// DHLen is the length of an X25519 key and shared secret.
const DHLen = curve25519.PointSize

// X25519KeyPair contains a Public and Private X25519 key.
type X25519KeyPair struct {
	Public  [DHLen]byte
	Private [DHLen]byte
}

// Generate overwrites x with a randomly generated new key pair.
func (x *X25519KeyPair) Generate() {
	must.ReadRandom(x.Private[:])
	x.PublicFromPrivate()
}

// PublicFromPrivate recalculates the Public key based on the current Private
// key.
func (x *X25519KeyPair) PublicFromPrivate() {
	curve25519.ScalarBaseMult(&x.Public, &x.Private)
}

// GenerateNewX25519KeyPair allocates a new X25519KeyPair and calls generate.
func GenerateNewX25519KeyPair() *X25519KeyPair {
	x := new(X25519KeyPair)
	x.Generate()
	return x
}

// DH performs Diffie-Hellman key exchange with the provided Public key. It
// fails on low-order points.
func (x *X25519KeyPair) DH(other []byte) ([]byte, error) {
	return curve25519.X25519(x.Private[:], other)
}
