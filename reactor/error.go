package reactor

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrNotReady is returned by Transport.Write while the transport cannot carry
// data, e.g. before its handshake completes. The write may be retried later.
var ErrNotReady = errors.New("transport is not ready for writing")

// IsNotReady reports whether err means the write should be retried later.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

// ErrorKind classifies the errors the reactor reports to its Handler.
type ErrorKind int

// ErrorKind values.
const (
	// ListenerUnknown: an action named a listener that is not registered.
	ListenerUnknown ErrorKind = iota + 1
	// TransportUnknown: an action named a transport that is not registered.
	TransportUnknown
	// Poll: the reactor itself could not apply an action.
	Poll
	// ListenerDisconnect: a registered listener was closed underneath us.
	ListenerDisconnect
	// ListenerPollError: a registered listener failed permanently.
	ListenerPollError
	// TransportDisconnect: a transport stopped after terminating while still
	// registered. The transport is handed over inside the error.
	TransportDisconnect
	// TransportPollError: a transport stopped without terminating.
	TransportPollError
	// WriteLogicError: a write was attempted while the transport was not
	// ready. Data holds the message.
	WriteLogicError
	// WriteFailure: a write failed.
	WriteFailure
)

var kindNames = map[ErrorKind]string{
	ListenerUnknown:     "unknown listener",
	TransportUnknown:    "unknown transport",
	Poll:                "poll error",
	ListenerDisconnect:  "listener disconnected",
	ListenerPollError:   "listener failed",
	TransportDisconnect: "transport disconnected",
	TransportPollError:  "transport failed",
	WriteLogicError:     "transport not ready for writing",
	WriteFailure:        "write failed",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is reported to Handler.HandleError.
type Error struct {
	Kind ErrorKind
	ID   ID

	// Transport is set for TransportDisconnect.
	Transport Transport
	// Data is set for WriteLogicError.
	Data []byte

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s", e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.ID)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PanicError is returned by Join when the loop died from a panic. Payload is
// a description of the value passed to panic.
type PanicError struct {
	Payload string
}

func (e *PanicError) Error() string {
	return "reactor panicked: " + e.Payload
}

func panicPayload(p interface{}) string {
	switch v := p.(type) {
	case *logrus.Entry:
		return v.Message
	case error:
		return v.Error()
	case string:
		return v
	}
	return fmt.Sprint(p)
}
