// Package readers has io.Readers for tests that need repeatable key
// material.
package readers

import (
	"encoding/binary"
	"io"

	"golang.org/x/crypto/chacha20"

	"hop.computer/nsh/pkg/must"
)

type seeded struct {
	stream *chacha20.Cipher
}

// Read fills p with the next bytes of the key stream. The output depends
// only on the seed and the number of bytes read so far, not on how the reads
// are split. It never fails.
func (s *seeded) Read(p []byte) (int, error) {
	clear(p)
	s.stream.XORKeyStream(p, p)
	return len(p), nil
}

// SeededReader returns a ChaCha20 key stream keyed by seed. It is not
// random and must only be used in tests.
func SeededReader(seed uint64) io.Reader {
	var key [chacha20.KeySize]byte
	var nonce [chacha20.NonceSize]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	return &seeded{stream: must.Do(chacha20.NewUnauthenticatedCipher(key[:], nonce[:]))}
}
