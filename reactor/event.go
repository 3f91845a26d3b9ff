package reactor

import (
	"net"

	"hop.computer/nsh/keys"
)

// ListenerEvent is Accepted or Failure.
type ListenerEvent interface {
	isListenerEvent()
}

// Accepted carries a new inbound connection.
type Accepted struct {
	Conn net.Conn
}

// Failure reports a transient accept error. The listener keeps accepting.
type Failure struct {
	Err error
}

func (Accepted) isListenerEvent() {}
func (Failure) isListenerEvent()  {}

// SessionEvent is Established, Data or Terminated.
type SessionEvent interface {
	isSessionEvent()
}

// Established reports a completed handshake and the authenticated peer.
type Established struct {
	Peer keys.PublicKey
}

// Data carries bytes received from the peer.
type Data []byte

// Terminated is the last event of a transport. Err is nil for a clean
// disconnect.
type Terminated struct {
	Err error
}

func (Established) isSessionEvent() {}
func (Data) isSessionEvent()        {}
func (Terminated) isSessionEvent()  {}
