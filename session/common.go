// Package session implements the nsh secure channel: an authenticated key
// exchange over any reliable connection followed by AEAD-protected frames.
// It also adapts sessions to the reactor as transports, and provides the TCP
// listener used by the daemon.
package session

import (
	"errors"

	"golang.org/x/crypto/chacha20poly1305"

	"hop.computer/nsh/keys"
	"hop.computer/nsh/reactor"
)

// ProtocolName names the parameters used by this version of the handshake.
const ProtocolName = "nsh_X25519_Ed25519_HKDF_SHA256_ChaChaPoly"

// Magic starts every hello message. It doubles as the version.
var Magic = [MagicLen]byte{'N', 'S', 'H', '1'}

// Protocol size constants
const (
	MagicLen  = 4
	LengthLen = 2
	KeyLen    = chacha20poly1305.KeySize
	NonceLen  = chacha20poly1305.NonceSize
	TagLen    = chacha20poly1305.Overhead
	DHLen     = keys.DHLen
)

// MaxFrameSize is the largest ciphertext a frame may carry.
const MaxFrameSize = 1<<(8*LengthLen) - 1

// MaxPlaintextSize is the largest payload of a single frame. Longer messages
// are split over several frames.
const MaxPlaintextSize = MaxFrameSize - TagLen

// Derived protocol size constants
const (
	HelloLen = MagicLen + DHLen
	AuthLen  = keys.CertLen + len(keys.Signature{})
)

// ErrUnsupportedVersion is returned when a hello does not start with Magic.
var ErrUnsupportedVersion = errors.New("unsupported version")

// ErrInvalidMessage is returned when a handshake message is malformed or
// fails authentication.
var ErrInvalidMessage = errors.New("invalid message")

// ErrIdentityMismatch is returned to an initiator when the responder proves
// an identity other than the one it dialed.
var ErrIdentityMismatch = errors.New("peer identity does not match")

// ErrBadCertificate is returned when the peer certificate is not self-signed.
var ErrBadCertificate = keys.ErrBadCertificate

// ErrCounterExhausted is returned when a direction has used every nonce.
var ErrCounterExhausted = errors.New("nonce counter exhausted")

// ErrNotReady is returned by Transport.Write before the handshake completes.
var ErrNotReady = reactor.ErrNotReady
