package session

import (
	"bytes"
	"crypto/sha256"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"

	"hop.computer/nsh/keys"
)

const (
	transcriptLabel = "nsh-handshake-v1"
	keysLabel       = "nsh-session-keys"
	initiatorLabel  = "nsh initiator auth"
	responderLabel  = "nsh responder auth"
)

// handshakeState tracks one side of a handshake.
//
//	initiator -> responder: Magic || e_i
//	responder -> initiator: Magic || e_r, then [cert_r || sig_r(label || h)]
//	initiator -> responder: [cert_i || sig_i(label || h)]
//
// h = SHA256(transcriptLabel || e_i || e_r) salts the HKDF over DH(e_i, e_r),
// which yields one key per direction. Bracketed messages are the first frame
// of their direction.
type handshakeState struct {
	initiator bool
	static    *keys.NodeKeys
	expected  *keys.PublicKey // initiator only, nil accepts any responder

	ephemeral       keys.X25519KeyPair
	remoteEphemeral [DHLen]byte
	transcript      [sha256.Size]byte

	send, recv *cipherState
	peer       keys.PublicKey
}

func newHandshakeState(static *keys.NodeKeys, initiator bool, expected *keys.PublicKey) *handshakeState {
	hs := &handshakeState{
		initiator: initiator,
		static:    static,
		expected:  expected,
	}
	hs.ephemeral.Generate()
	return hs
}

func writeHello(hs *handshakeState, b []byte) (int, error) {
	if len(b) < HelloLen {
		return 0, io.ErrShortBuffer
	}
	copy(b, Magic[:])
	copy(b[MagicLen:], hs.ephemeral.Public[:])
	return HelloLen, nil
}

func readHello(hs *handshakeState, b []byte) (int, error) {
	if len(b) < HelloLen {
		return 0, io.ErrUnexpectedEOF
	}
	if !bytes.Equal(b[:MagicLen], Magic[:]) {
		return 0, ErrUnsupportedVersion
	}
	copy(hs.remoteEphemeral[:], b[MagicLen:HelloLen])
	return HelloLen, nil
}

// deriveKeys computes the transcript hash and the per-direction ciphers.
func (hs *handshakeState) deriveKeys() error {
	secret, err := hs.ephemeral.DH(hs.remoteEphemeral[:])
	if err != nil {
		return err
	}
	ei, er := hs.ephemeral.Public[:], hs.remoteEphemeral[:]
	if !hs.initiator {
		ei, er = er, ei
	}
	h := sha256.New()
	h.Write([]byte(transcriptLabel))
	h.Write(ei)
	h.Write(er)
	h.Sum(hs.transcript[:0])

	var initiatorToResponder, responderToInitiator [KeyLen]byte
	kdf := hkdf.New(sha256.New, secret, hs.transcript[:], []byte(keysLabel))
	if _, err := io.ReadFull(kdf, initiatorToResponder[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(kdf, responderToInitiator[:]); err != nil {
		return err
	}
	sendKey, recvKey := initiatorToResponder, responderToInitiator
	if !hs.initiator {
		sendKey, recvKey = recvKey, sendKey
	}
	if hs.send, err = newCipherState(sendKey[:]); err != nil {
		return err
	}
	if hs.recv, err = newCipherState(recvKey[:]); err != nil {
		return err
	}
	logrus.Tracef("session: transcript %x", hs.transcript)
	return nil
}

func (hs *handshakeState) authPayload(label string) []byte {
	msg := make([]byte, 0, len(label)+len(hs.transcript))
	msg = append(msg, label...)
	return append(msg, hs.transcript[:]...)
}

func (hs *handshakeState) writeAuth() []byte {
	label := responderLabel
	if hs.initiator {
		label = initiatorLabel
	}
	sig := hs.static.Sign(hs.authPayload(label))
	out := hs.static.Cert.Bytes()
	return append(out, sig[:]...)
}

func (hs *handshakeState) readAuth(b []byte) error {
	if len(b) != AuthLen {
		return ErrInvalidMessage
	}
	cert, err := keys.ParseCert(b[:keys.CertLen])
	if err != nil {
		return err
	}
	if err := cert.Verify(); err != nil {
		return err
	}
	var sig keys.Signature
	copy(sig[:], b[keys.CertLen:])
	label := initiatorLabel
	if hs.initiator {
		label = responderLabel
	}
	if !cert.PublicKey.Verify(hs.authPayload(label), &sig) {
		return ErrInvalidMessage
	}
	if hs.expected != nil && cert.PublicKey != *hs.expected {
		return ErrIdentityMismatch
	}
	hs.peer = cert.PublicKey
	return nil
}

func (hs *handshakeState) sendHello(w io.Writer) error {
	var hello [HelloLen]byte
	if _, err := writeHello(hs, hello[:]); err != nil {
		return err
	}
	_, err := w.Write(hello[:])
	return err
}

func (hs *handshakeState) recvHello(r io.Reader) error {
	var hello [HelloLen]byte
	if _, err := io.ReadFull(r, hello[:]); err != nil {
		return err
	}
	_, err := readHello(hs, hello[:])
	return err
}

func (hs *handshakeState) sendAuth(w io.Writer) error {
	return hs.send.writeFrame(w, hs.writeAuth())
}

func (hs *handshakeState) recvAuth(r io.Reader) error {
	b, err := hs.recv.readFrame(r)
	if err != nil {
		return err
	}
	return hs.readAuth(b)
}

// run performs the whole exchange over rw.
func (hs *handshakeState) run(rw io.ReadWriter) error {
	if hs.initiator {
		if err := hs.sendHello(rw); err != nil {
			return err
		}
		if err := hs.recvHello(rw); err != nil {
			return err
		}
		if err := hs.deriveKeys(); err != nil {
			return err
		}
		if err := hs.recvAuth(rw); err != nil {
			return err
		}
		return hs.sendAuth(rw)
	}
	if err := hs.recvHello(rw); err != nil {
		return err
	}
	if err := hs.sendHello(rw); err != nil {
		return err
	}
	if err := hs.deriveKeys(); err != nil {
		return err
	}
	if err := hs.sendAuth(rw); err != nil {
		return err
	}
	return hs.recvAuth(rw)
}
