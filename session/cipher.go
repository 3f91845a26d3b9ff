package session

import (
	"crypto/cipher"
	"encoding/binary"
	"io"
	"math"

	"golang.org/x/crypto/chacha20poly1305"
)

// cipherState protects one direction of a session. Nonces are a little-endian
// message counter.
type cipherState struct {
	aead    cipher.AEAD
	counter uint64
	nonce   [NonceLen]byte
}

func newCipherState(key []byte) (*cipherState, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &cipherState{aead: aead}, nil
}

func (cs *cipherState) nextNonce() ([]byte, error) {
	if cs.counter == math.MaxUint64 {
		return nil, ErrCounterExhausted
	}
	binary.LittleEndian.PutUint64(cs.nonce[NonceLen-8:], cs.counter)
	cs.counter++
	return cs.nonce[:], nil
}

// writeFrame seals plaintext into a single frame and writes it to w.
func (cs *cipherState) writeFrame(w io.Writer, plaintext []byte) error {
	if len(plaintext) > MaxPlaintextSize {
		return ErrInvalidMessage
	}
	nonce, err := cs.nextNonce()
	if err != nil {
		return err
	}
	buf := make([]byte, LengthLen, LengthLen+len(plaintext)+TagLen)
	binary.BigEndian.PutUint16(buf, uint16(len(plaintext)+TagLen))
	buf = cs.aead.Seal(buf, nonce, plaintext, buf[:LengthLen])
	_, err = w.Write(buf)
	return err
}

// readFrame reads and opens one frame. A connection closed between frames
// returns io.EOF.
func (cs *cipherState) readFrame(r io.Reader) ([]byte, error) {
	var header [LengthLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(header[:]))
	if n < TagLen {
		return nil, ErrInvalidMessage
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	nonce, err := cs.nextNonce()
	if err != nil {
		return nil, err
	}
	plaintext, err := cs.aead.Open(buf[:0], nonce, buf, header[:])
	if err != nil {
		return nil, ErrInvalidMessage
	}
	return plaintext, nil
}
