package keys

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/assert"
	"gotest.tools/assert/cmp"

	"hop.computer/nsh/pkg/must"
	"hop.computer/nsh/pkg/readers"
)

func TestPublicKeyString(t *testing.T) {
	k := GenerateNewSigningKeyPair()
	s := k.Public.String()
	assert.Check(t, cmp.Contains(s, PublicKeyPrefix))
	parsed, err := ParsePublicKey(s)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(parsed, k.Public))

	_, err = ParsePublicKey("hop-sign-AAAA")
	assert.Check(t, err != nil)
	_, err = ParsePublicKey(PublicKeyPrefix + "AAAA")
	assert.Check(t, err != nil)
	_, err = ParsePublicKey(PublicKeyPrefix + "!!!")
	assert.Check(t, err != nil)
}

func TestSelfSignedCert(t *testing.T) {
	k := GenerateNewSigningKeyPair()
	c := SelfSign(k)
	assert.NilError(t, c.Verify())

	parsed, err := ParseCert(c.Bytes())
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(parsed, c))

	other := GenerateNewSigningKeyPair()
	forged := Cert{PublicKey: other.Public, Signature: c.Signature}
	assert.Check(t, cmp.ErrorContains(forged.Verify(), "self-signed"))

	_, err = ParseCert(c.Bytes()[1:])
	assert.Check(t, err != nil)
}

func TestPublicFromPrivate(t *testing.T) {
	k := GenerateNewSigningKeyPair()
	var other SigningKeyPair
	other.Private = k.Private
	other.PublicFromPrivate()
	assert.Check(t, cmp.Equal(other.Public, k.Public))
}

func TestLoadOrGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ssi_ed25519")

	first, created, err := LoadOrGenerate(path)
	assert.NilError(t, err)
	assert.Check(t, created)
	info, err := os.Stat(path)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(info.Mode().Perm(), os.FileMode(0o600)))

	second, created, err := LoadOrGenerate(path)
	assert.NilError(t, err)
	assert.Check(t, !created)
	assert.Check(t, cmp.Equal(second.ID(), first.ID()))
	assert.Check(t, cmp.Equal(second.Cert, first.Cert))
	assert.NilError(t, second.Cert.Verify())
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id")
	assert.NilError(t, os.WriteFile(path, []byte("not a key"), 0o600))
	_, _, err := LoadOrGenerate(path)
	assert.Check(t, cmp.ErrorContains(err, "not a PEM file"))
}

func TestX25519Agreement(t *testing.T) {
	a := GenerateNewX25519KeyPair()
	b := GenerateNewX25519KeyPair()
	ab, err := a.DH(b.Public[:])
	assert.NilError(t, err)
	ba, err := b.DH(a.Public[:])
	assert.NilError(t, err)
	assert.Check(t, cmp.DeepEqual(ab, ba))
}

func seeded(t *testing.T, seed uint64) {
	old := must.Random
	must.Random = readers.SeededReader(seed)
	t.Cleanup(func() { must.Random = old })
}

func TestGenerateUsesRandomSource(t *testing.T) {
	seeded(t, 42)
	a := GenerateNodeKeys()
	x := GenerateNewX25519KeyPair()

	seeded(t, 42)
	b := GenerateNodeKeys()
	y := GenerateNewX25519KeyPair()
	assert.Check(t, cmp.Equal(a.ID(), b.ID()))
	assert.Check(t, cmp.Equal(x.Public, y.Public))
	assert.Check(t, a.Cert.Verify())

	seeded(t, 43)
	c := GenerateNodeKeys()
	assert.Check(t, a.ID() != c.ID())
}
