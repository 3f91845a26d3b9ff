package reactor

import (
	"errors"
	"net"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jpillora/backoff"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/tomb.v2"
)

// Config parameterizes a Reactor. The zero value is usable.
type Config struct {
	// Clock defaults to clock.WallClock.
	Clock clock.Clock

	// TimerInterval is the period of Handler.HandleTimer. Zero disables the
	// timer.
	TimerInterval time.Duration

	// AcceptBackoffMin and AcceptBackoffMax pace accept retries after
	// transient failures. They default to 5ms and 1s.
	AcceptBackoffMin time.Duration
	AcceptBackoffMax time.Duration

	Log *logrus.Entry
}

// Reactor owns the loop goroutine of one Handler.
type Reactor struct {
	handler Handler
	cfg     Config
	clock   clock.Clock
	log     *logrus.Entry

	t      tomb.Tomb
	events chan event

	// Only touched by the loop goroutine.
	listeners  map[ID]Listener
	transports map[ID]Transport
}

type event interface{}

type listenerEvent struct {
	id ID
	ev ListenerEvent
}

type listenerStopped struct {
	id  ID
	err error
}

type transportEvent struct {
	id ID
	ev SessionEvent
}

type transportStopped struct {
	id         ID
	terminated bool
}

// New starts a reactor for h. The loop first drains any actions h already
// holds, e.g. the RegisterListener queued by its constructor.
func New(h Handler, cfg Config) *Reactor {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.AcceptBackoffMin == 0 {
		cfg.AcceptBackoffMin = 5 * time.Millisecond
	}
	if cfg.AcceptBackoffMax == 0 {
		cfg.AcceptBackoffMax = time.Second
	}
	if cfg.Log == nil {
		cfg.Log = logrus.WithField("reactor", "main")
	}
	r := &Reactor{
		handler:    h,
		cfg:        cfg,
		clock:      cfg.Clock,
		log:        cfg.Log,
		events:     make(chan event),
		listeners:  make(map[ID]Listener),
		transports: make(map[ID]Transport),
	}
	r.t.Go(r.loop)
	return r
}

// Join blocks until the reactor stops and returns the reason. A panic in the
// Handler is returned as *PanicError.
func (r *Reactor) Join() error {
	return r.t.Wait()
}

// Shutdown stops the loop, closes every registered resource and waits for all
// goroutines.
func (r *Reactor) Shutdown() error {
	r.t.Kill(nil)
	return r.t.Wait()
}

// Dead is closed once the reactor and all its goroutines have stopped.
func (r *Reactor) Dead() <-chan struct{} {
	return r.t.Dead()
}

func (r *Reactor) loop() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Payload: panicPayload(p)}
			r.log.Errorf("handler panicked, stopping: %s", err)
		}
		r.closeAll()
	}()

	var timer clock.Timer
	var timerC <-chan time.Time
	if r.cfg.TimerInterval > 0 {
		timer = r.clock.NewTimer(r.cfg.TimerInterval)
		defer timer.Stop()
		timerC = timer.Chan()
	}

	r.apply()
	for {
		select {
		case <-r.t.Dying():
			return nil
		case ev := <-r.events:
			r.dispatch(ev)
		case <-timerC:
			r.handler.HandleTimer()
			timer.Reset(r.cfg.TimerInterval)
		}
		r.handler.Tick(r.clock.Now())
		r.apply()
	}
}

// post hands an event to the loop. It returns false once the reactor is
// dying.
func (r *Reactor) post(ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.t.Dying():
		return false
	}
}

func (r *Reactor) dispatch(ev event) {
	now := r.clock.Now()
	switch ev := ev.(type) {
	case listenerEvent:
		if _, ok := r.listeners[ev.id]; !ok {
			if a, ok := ev.ev.(Accepted); ok {
				a.Conn.Close()
			}
			r.log.Debugf("dropping event for unregistered listener %s", ev.id)
			return
		}
		r.handler.HandleListenerEvent(ev.id, ev.ev, now)
	case listenerStopped:
		if _, ok := r.listeners[ev.id]; !ok {
			return
		}
		kind := ListenerPollError
		if errors.Is(ev.err, net.ErrClosed) {
			kind = ListenerDisconnect
		}
		r.handler.HandleError(&Error{Kind: kind, ID: ev.id, Err: ev.err})
	case transportEvent:
		if _, ok := r.transports[ev.id]; !ok {
			r.log.Debugf("dropping event for unregistered transport %s", ev.id)
			return
		}
		r.handler.HandleTransportEvent(ev.id, ev.ev, now)
	case transportStopped:
		t, ok := r.transports[ev.id]
		if !ok {
			return
		}
		if ev.terminated {
			delete(r.transports, ev.id)
			r.handler.HandleError(&Error{Kind: TransportDisconnect, ID: ev.id, Transport: t})
			return
		}
		r.handler.HandleError(&Error{
			Kind: TransportPollError,
			ID:   ev.id,
			Err:  errors.New("transport stopped without terminating"),
		})
	}
}

func (r *Reactor) apply() {
	for {
		a, ok := r.handler.Next()
		if !ok {
			return
		}
		r.log.Tracef("applying %s", a)
		r.applyAction(a)
	}
}

func (r *Reactor) applyAction(a Action) {
	switch a := a.(type) {
	case RegisterListener:
		l := a.Listener
		if _, ok := r.listeners[l.ID()]; ok {
			r.handler.HandleError(&Error{Kind: Poll, ID: l.ID(), Err: errors.New("listener already registered")})
			return
		}
		r.listeners[l.ID()] = l
		r.t.Go(func() error {
			r.accept(l)
			return nil
		})
	case RegisterTransport:
		t := a.Transport
		if _, ok := r.transports[t.ID()]; ok {
			r.handler.HandleError(&Error{Kind: Poll, ID: t.ID(), Err: errors.New("transport already registered")})
			return
		}
		r.transports[t.ID()] = t
		r.t.Go(func() error {
			r.serve(t)
			return nil
		})
	case Send:
		t, ok := r.transports[a.ID]
		if !ok {
			r.handler.HandleError(&Error{Kind: TransportUnknown, ID: a.ID})
			return
		}
		if err := t.Write(a.Data); err != nil {
			if IsNotReady(err) {
				r.handler.HandleError(&Error{Kind: WriteLogicError, ID: a.ID, Data: a.Data, Err: err})
			} else {
				r.handler.HandleError(&Error{Kind: WriteFailure, ID: a.ID, Err: err})
			}
		}
	case UnregisterListener:
		l, ok := r.listeners[a.ID]
		if !ok {
			r.handler.HandleError(&Error{Kind: ListenerUnknown, ID: a.ID})
			return
		}
		delete(r.listeners, a.ID)
		// The accept goroutine only stops once the listener is closed.
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			r.log.Warnf("closing listener %s: %s", a.ID, err)
		}
		r.handler.HandoverListener(l)
	case UnregisterTransport:
		t, ok := r.transports[a.ID]
		if !ok {
			r.handler.HandleError(&Error{Kind: TransportUnknown, ID: a.ID})
			return
		}
		delete(r.transports, a.ID)
		r.handler.HandoverTransport(t)
	default:
		r.handler.HandleError(&Error{Kind: Poll, Err: errors.New("unknown action")})
	}
}

func (r *Reactor) accept(l Listener) {
	id := l.ID()
	b := &backoff.Backoff{Min: r.cfg.AcceptBackoffMin, Max: r.cfg.AcceptBackoffMax}
	for {
		conn, err := l.Accept()
		if err == nil {
			b.Reset()
			if !r.post(listenerEvent{id: id, ev: Accepted{Conn: conn}}) {
				conn.Close()
				return
			}
			continue
		}
		if !isTemporary(err) {
			r.post(listenerStopped{id: id, err: err})
			return
		}
		if !r.post(listenerEvent{id: id, ev: Failure{Err: err}}) {
			return
		}
		select {
		case <-r.clock.After(b.Duration()):
		case <-r.t.Dying():
			return
		}
	}
}

func (r *Reactor) serve(t Transport) {
	id := t.ID()
	terminated := false
	t.Serve(func(ev SessionEvent) {
		if _, ok := ev.(Terminated); ok {
			terminated = true
		}
		r.post(transportEvent{id: id, ev: ev})
	})
	r.post(transportStopped{id: id, terminated: terminated})
}

func (r *Reactor) closeAll() {
	var result error
	lids := maps.Keys(r.listeners)
	slices.Sort(lids)
	for _, id := range lids {
		if err := r.listeners[id].Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
		delete(r.listeners, id)
	}
	tids := maps.Keys(r.transports)
	slices.Sort(tids)
	for _, id := range tids {
		if err := r.transports[id].Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
		delete(r.transports, id)
	}
	if result != nil {
		r.log.Warnf("errors closing resources: %s", result)
	}
	r.log.Debugf("closed %d listeners and %d transports", len(lids), len(tids))
}
