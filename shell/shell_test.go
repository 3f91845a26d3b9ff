package shell

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
	"gotest.tools/assert"
	"gotest.tools/assert/cmp"

	"hop.computer/nsh/command"
	"hop.computer/nsh/keys"
	"hop.computer/nsh/reactor"
)

func run(t *testing.T, p *Process) (established bool, output string, term reactor.Terminated) {
	t.Helper()
	events := make(chan reactor.SessionEvent, 64)
	go func() {
		p.Serve(func(ev reactor.SessionEvent) { events <- ev })
		close(events)
	}()
	var sb strings.Builder
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return established, sb.String(), term
			}
			switch ev := ev.(type) {
			case reactor.Established:
				established = true
			case reactor.Data:
				sb.Write(ev)
			case reactor.Terminated:
				term = ev
			}
		case <-timeout:
			t.Fatal("process did not finish")
		}
	}
}

func TestEcho(t *testing.T) {
	defer goleak.VerifyNone(t)
	self := keys.GenerateNodeKeys().ID()
	p := New(command.Echo, self)

	established, out, term := run(t, p)
	assert.Check(t, established)
	assert.Check(t, cmp.Equal(out, "\n"))
	assert.NilError(t, term.Err)
	assert.NilError(t, p.Close())
}

func TestDate(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := New(command.Date, keys.PublicKey{})

	_, out, term := run(t, p)
	assert.NilError(t, term.Err)
	assert.Check(t, strings.HasSuffix(out, "\n"))
	assert.Check(t, cmp.Contains(out, time.Now().Format("2006")))
}

func TestWriteDiscards(t *testing.T) {
	p := New(command.Echo, keys.PublicKey{})
	assert.NilError(t, p.Write([]byte("ignored")))
}

func TestCloseBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := New(command.Date, keys.PublicKey{})
	assert.NilError(t, p.Close())

	established, out, term := run(t, p)
	assert.Check(t, !established)
	assert.Check(t, cmp.Equal(out, ""))
	assert.Check(t, term.Err != nil)
}

func TestStartFailure(t *testing.T) {
	old := Shell
	Shell = "/nonexistent/sh"
	defer func() { Shell = old }()

	_, _, term := run(t, New(command.Echo, keys.PublicKey{}))
	assert.Check(t, term.Err != nil)
}
