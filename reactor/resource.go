// Package reactor drives listeners and transports for a single Handler. Every
// resource runs its blocking I/O on its own goroutine, but the Handler only
// ever sees events from the one loop goroutine, so it needs no locking. After
// each event the loop drains the Handler's actions and applies them.
package reactor

import (
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// ID identifies a registered resource. IDs are never reused within a process.
type ID uint64

func (id ID) String() string {
	return "#" + strconv.FormatUint(uint64(id), 10)
}

var nextID atomic.Uint64

// NextID allocates a fresh ID. Resources take their ID when they are created,
// so it is known before they are registered.
func NextID() ID {
	return ID(nextID.Add(1))
}

// Listener produces inbound connections.
type Listener interface {
	ID() ID
	Accept() (net.Conn, error)
	Addr() net.Addr
	Close() error
}

// Transport is an event-producing bidirectional channel.
type Transport interface {
	ID() ID

	// Serve drives the transport until it stops, reporting each event to
	// emit. The last event emitted is Terminated.
	Serve(emit func(SessionEvent))

	// Write queues data for the peer without blocking. It returns an error
	// satisfying IsNotReady while the transport cannot carry data yet.
	Write(data []byte) error

	// Close disconnects. Data queued by Write is flushed first where
	// possible.
	Close() error

	String() string
}

// Handler turns events into actions. All methods are called from the reactor
// loop goroutine.
type Handler interface {
	// Tick is called once per loop iteration.
	Tick(now time.Time)
	// HandleTimer is called when the periodic timer fires.
	HandleTimer()
	HandleListenerEvent(id ID, ev ListenerEvent, now time.Time)
	HandleTransportEvent(id ID, ev SessionEvent, now time.Time)
	HandleError(err *Error)
	// HandoverListener passes ownership of an unregistered listener.
	HandoverListener(l Listener)
	// HandoverTransport passes ownership of an unregistered transport.
	HandoverTransport(t Transport)
	// Next pops the next pending action without blocking.
	Next() (Action, bool)
}
