package main

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/assert"
	"gotest.tools/assert/cmp"

	"hop.computer/nsh/keys"
)

func TestKeygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "id")
	var stdout bytes.Buffer
	assert.NilError(t, run([]string{"nsh-keygen", "-i", path}, &stdout, io.Discard))

	id, err := keys.ParsePublicKey(strings.TrimSpace(stdout.String()))
	assert.NilError(t, err)
	kp, err := keys.ReadSigningKeyFromPEMFile(path)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(kp.Public, id))

	err = run([]string{"nsh-keygen", "-i", path}, io.Discard, io.Discard)
	assert.Check(t, cmp.ErrorContains(err, "already exists"))

	stdout.Reset()
	assert.NilError(t, run([]string{"nsh-keygen", "-f", "-i", path}, &stdout, io.Discard))
	assert.Check(t, strings.TrimSpace(stdout.String()) != id.String())
}

func TestKeygenExcessArgs(t *testing.T) {
	err := run([]string{"nsh-keygen", "extra"}, io.Discard, io.Discard)
	assert.Check(t, cmp.ErrorContains(err, "excess arguments"))
}
