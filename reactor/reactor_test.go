package reactor

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/sirupsen/logrus"
	"go.uber.org/goleak"
	"golang.org/x/net/nettest"
	"gotest.tools/assert"
	"gotest.tools/assert/cmp"

	"hop.computer/nsh/keys"
)

const waitTimeout = 5 * time.Second

type netListener struct {
	id ID
	net.Listener
}

func (l *netListener) ID() ID { return l.id }

func newListener(t *testing.T) *netListener {
	l, err := nettest.NewLocalListener("tcp")
	assert.NilError(t, err)
	return &netListener{id: NextID(), Listener: l}
}

// connTransport is a plaintext transport. It becomes ready when gate is
// closed (immediately if gate is nil).
type connTransport struct {
	id   ID
	conn net.Conn
	peer keys.PublicKey
	gate chan struct{}

	closeOnce sync.Once
	closed    chan struct{}

	m     sync.Mutex
	ready bool
}

func newConnTransport(conn net.Conn, gate chan struct{}) *connTransport {
	return &connTransport{
		id:     NextID(),
		conn:   conn,
		gate:   gate,
		closed: make(chan struct{}),
	}
}

func (c *connTransport) ID() ID         { return c.id }
func (c *connTransport) String() string { return c.id.String() }

func (c *connTransport) Serve(emit func(SessionEvent)) {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-c.closed:
			emit(Terminated{Err: net.ErrClosed})
			return
		}
	}
	c.m.Lock()
	c.ready = true
	c.m.Unlock()
	emit(Established{Peer: c.peer})
	buf := make([]byte, 1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			emit(Data(append([]byte(nil), buf[:n]...)))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			emit(Terminated{Err: err})
			return
		}
	}
}

func (c *connTransport) Write(data []byte) error {
	c.m.Lock()
	defer c.m.Unlock()
	if !c.ready {
		return ErrNotReady
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *connTransport) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.conn.Close()
}

// testHandler records what the reactor tells it. Callbacks may queue more
// actions with push.
type testHandler struct {
	queue []Action

	onAccepted  func(h *testHandler, conn net.Conn)
	onTransport func(h *testHandler, id ID, ev SessionEvent)
	onError     func(h *testHandler, err *Error)
	onListener  func(h *testHandler, l Listener)

	listenerEvents  chan ListenerEvent
	transportEvents chan SessionEvent
	errs            chan *Error
	transports      chan Transport
	listeners       chan Listener
	timers          chan struct{}
}

func newTestHandler() *testHandler {
	return &testHandler{
		listenerEvents:  make(chan ListenerEvent, 64),
		transportEvents: make(chan SessionEvent, 64),
		errs:            make(chan *Error, 64),
		transports:      make(chan Transport, 64),
		listeners:       make(chan Listener, 64),
		timers:          make(chan struct{}, 64),
	}
}

func (h *testHandler) push(a ...Action) {
	h.queue = append(h.queue, a...)
}

func (h *testHandler) Tick(time.Time) {}

func (h *testHandler) HandleTimer() {
	h.timers <- struct{}{}
}

func (h *testHandler) HandleListenerEvent(id ID, ev ListenerEvent, now time.Time) {
	h.listenerEvents <- ev
	if a, ok := ev.(Accepted); ok && h.onAccepted != nil {
		h.onAccepted(h, a.Conn)
	}
}

func (h *testHandler) HandleTransportEvent(id ID, ev SessionEvent, now time.Time) {
	h.transportEvents <- ev
	if h.onTransport != nil {
		h.onTransport(h, id, ev)
	}
}

func (h *testHandler) HandleError(err *Error) {
	h.errs <- err
	if h.onError != nil {
		h.onError(h, err)
	}
}

func (h *testHandler) HandoverListener(l Listener) {
	h.listeners <- l
	if h.onListener != nil {
		h.onListener(h, l)
	}
}

func (h *testHandler) HandoverTransport(t Transport) {
	t.Close()
	h.transports <- t
}

func (h *testHandler) Next() (Action, bool) {
	if len(h.queue) == 0 {
		return nil, false
	}
	a := h.queue[0]
	h.queue = h.queue[1:]
	return a, true
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for the reactor")
	}
	panic("unreachable")
}

// echoHandler accepts plaintext transports, echoes their data and
// unregisters them on termination.
func echoHandler(gate chan struct{}) *testHandler {
	h := newTestHandler()
	h.onAccepted = func(h *testHandler, conn net.Conn) {
		h.push(RegisterTransport{Transport: newConnTransport(conn, gate)})
	}
	h.onTransport = func(h *testHandler, id ID, ev SessionEvent) {
		switch ev := ev.(type) {
		case Data:
			h.push(Send{ID: id, Data: ev})
		case Terminated:
			h.push(UnregisterTransport{ID: id})
		}
	}
	return h
}

func TestReactorEcho(t *testing.T) {
	defer goleak.VerifyNone(t)
	logrus.SetLevel(logrus.TraceLevel)

	l := newListener(t)
	h := echoHandler(nil)
	h.push(RegisterListener{Listener: l})
	r := New(h, Config{})

	c, err := net.Dial("tcp", l.Addr().String())
	assert.NilError(t, err)
	_, ok := receive(t, h.listenerEvents).(Accepted)
	assert.Check(t, ok)
	_, ok = receive(t, h.transportEvents).(Established)
	assert.Check(t, ok)

	_, err = c.Write([]byte("hello"))
	assert.NilError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(c, buf)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(string(buf), "hello"))

	assert.NilError(t, c.Close())
	tr := receive(t, h.transports)
	assert.Check(t, tr != nil)

	assert.NilError(t, r.Shutdown())
	assert.Check(t, cmp.Len(h.errs, 0))
}

func TestWriteBeforeReady(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := newListener(t)
	gate := make(chan struct{})
	h := newTestHandler()
	h.onAccepted = func(h *testHandler, conn net.Conn) {
		tr := newConnTransport(conn, gate)
		h.push(RegisterTransport{Transport: tr}, Send{ID: tr.ID(), Data: []byte("early")})
	}
	h.onError = func(h *testHandler, err *Error) {
		if err.Kind == WriteLogicError {
			// Retry once the transport is up.
			close(gate)
		}
	}
	h.onTransport = func(h *testHandler, id ID, ev SessionEvent) {
		if _, ok := ev.(Established); ok {
			h.push(Send{ID: id, Data: []byte("late")})
		}
	}
	h.push(RegisterListener{Listener: l})
	r := New(h, Config{})

	c, err := net.Dial("tcp", l.Addr().String())
	assert.NilError(t, err)
	defer c.Close()

	e := receive(t, h.errs)
	assert.Check(t, cmp.Equal(e.Kind, WriteLogicError))
	assert.Check(t, cmp.Equal(string(e.Data), "early"))
	assert.Check(t, IsNotReady(e))

	buf := make([]byte, 4)
	_, err = io.ReadFull(c, buf)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(string(buf), "late"))

	assert.NilError(t, r.Shutdown())
}

func TestUnregisterTwice(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := newListener(t)
	h := newTestHandler()
	h.onTransport = func(h *testHandler, id ID, ev SessionEvent) {
		if _, ok := ev.(Established); ok {
			h.push(UnregisterTransport{ID: id}, UnregisterTransport{ID: id}, Send{ID: id, Data: []byte("x")})
		}
	}
	h.onAccepted = func(h *testHandler, conn net.Conn) {
		h.push(RegisterTransport{Transport: newConnTransport(conn, nil)})
	}
	h.push(RegisterListener{Listener: l})
	r := New(h, Config{})

	c, err := net.Dial("tcp", l.Addr().String())
	assert.NilError(t, err)
	defer c.Close()

	receive(t, h.transports)
	e := receive(t, h.errs)
	assert.Check(t, cmp.Equal(e.Kind, TransportUnknown))
	e = receive(t, h.errs)
	assert.Check(t, cmp.Equal(e.Kind, TransportUnknown))

	assert.NilError(t, r.Shutdown())
	assert.Check(t, cmp.Len(h.transports, 0))
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "accept timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// flakyListener fails its first accept with a timeout.
type flakyListener struct {
	*netListener
	once sync.Once
}

func (f *flakyListener) Accept() (net.Conn, error) {
	var failed bool
	f.once.Do(func() { failed = true })
	if failed {
		return nil, timeoutError{}
	}
	return f.netListener.Accept()
}

func TestListenerSurvivesFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := &flakyListener{netListener: newListener(t)}
	h := echoHandler(nil)
	h.push(RegisterListener{Listener: l})
	r := New(h, Config{AcceptBackoffMin: time.Millisecond, AcceptBackoffMax: 10 * time.Millisecond})

	f, ok := receive(t, h.listenerEvents).(Failure)
	assert.Assert(t, ok)
	assert.Check(t, cmp.ErrorContains(f.Err, "accept timeout"))

	c, err := net.Dial("tcp", l.Addr().String())
	assert.NilError(t, err)
	defer c.Close()
	_, ok = receive(t, h.listenerEvents).(Accepted)
	assert.Check(t, ok)

	assert.NilError(t, r.Shutdown())
	assert.Check(t, cmp.Len(h.errs, 0))
}

func TestListenerDisconnectPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := newListener(t)
	h := newTestHandler()
	h.onError = func(h *testHandler, err *Error) {
		if err.Kind == ListenerDisconnect {
			h.push(UnregisterListener{ID: err.ID})
		}
	}
	h.onListener = func(h *testHandler, l Listener) {
		logrus.Panicf("listener %s lost", l.ID())
	}
	h.push(RegisterListener{Listener: l})
	r := New(h, Config{})

	// Closing the socket underneath the reactor.
	assert.NilError(t, l.Listener.Close())

	e := receive(t, h.errs)
	assert.Check(t, cmp.Equal(e.Kind, ListenerDisconnect))
	assert.Check(t, errors.Is(e, net.ErrClosed))
	receive(t, h.listeners)

	err := r.Join()
	var perr *PanicError
	assert.Assert(t, errors.As(err, &perr))
	assert.Check(t, cmp.Contains(perr.Payload, "lost"))
}

func TestUnknownListener(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestHandler()
	h.push(UnregisterListener{ID: NextID()})
	r := New(h, Config{})
	e := receive(t, h.errs)
	assert.Check(t, cmp.Equal(e.Kind, ListenerUnknown))
	assert.NilError(t, r.Shutdown())
}

func TestTimer(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(time.Now())
	h := newTestHandler()
	r := New(h, Config{Clock: clk, TimerInterval: time.Minute})

	assert.NilError(t, clk.WaitAdvance(time.Minute, waitTimeout, 1))
	receive(t, h.timers)
	assert.NilError(t, clk.WaitAdvance(time.Minute, waitTimeout, 1))
	receive(t, h.timers)

	assert.NilError(t, r.Shutdown())
}

func TestErrorString(t *testing.T) {
	e := &Error{Kind: WriteFailure, ID: 7, Err: io.ErrClosedPipe}
	assert.Check(t, cmp.Equal(e.Error(), "write failed #7: io: read/write on closed pipe"))
	assert.Check(t, errors.Is(e, io.ErrClosedPipe))
	assert.Check(t, cmp.Equal((&Error{Kind: TransportUnknown, ID: 3}).Error(), "unknown transport #3"))
	assert.Check(t, cmp.Equal(ErrorKind(99).String(), "ErrorKind(99)"))
}
