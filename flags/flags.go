// Package flags provides support for nsh CLI args
package flags

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
)

// ErrExcessArgs is returned when unparsed arguments remain
var ErrExcessArgs = errors.New("excess arguments provided")

// ErrMissingRemoteHost is returned when a client or tunnel has no target.
var ErrMissingRemoteHost = errors.New("missing REMOTE_HOST")

// ConflictError is returned when two options cannot be used together.
type ConflictError struct {
	Option, With string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s cannot be used with %s", e.Option, e.With)
}

// Flags holds CLI arguments for nsh.
type Flags struct {
	ConfigPath   string
	IdentityPath string

	Listen bool
	Tunnel bool
	Addr   string // local socket for -l and -t

	// -proxy alone forces the default proxy, -proxy=host[:port] a specific one.
	ForceProxy bool
	Proxy      string

	Timeout    uint
	TimeoutSet bool

	Verbosity int

	RemoteHost string
	Command    string
}

// countFlag is a boolean flag that counts its occurrences.
type countFlag int

func (c *countFlag) String() string   { return strconv.Itoa(int(*c)) }
func (c *countFlag) IsBoolFlag() bool { return true }

func (c *countFlag) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if v {
		*c++
	}
	return nil
}

// proxyFlag is a boolean flag with an optional value.
type proxyFlag struct {
	f *Flags
}

func (p proxyFlag) String() string {
	if p.f == nil {
		return ""
	}
	return p.f.Proxy
}

func (p proxyFlag) IsBoolFlag() bool { return true }

func (p proxyFlag) Set(s string) error {
	if v, err := strconv.ParseBool(s); err == nil {
		p.f.ForceProxy = v
		return nil
	}
	if s == "" {
		return errors.New("empty proxy address")
	}
	p.f.ForceProxy = true
	p.f.Proxy = s
	return nil
}

// defineFlags calls fs.*Var for every nsh option.
func defineFlags(fs *flag.FlagSet, f *Flags) {
	fs.StringVar(&f.ConfigPath, "C", "", "path to config file (uses ~/.nsh/config.toml when unspecified)")
	fs.StringVar(&f.IdentityPath, "i", "", "path to identity file (uses ~/.nsh/ssi_ed25519 when unspecified)")

	fs.BoolVar(&f.Listen, "l", false, "start as a daemon listening on -addr")
	fs.BoolVar(&f.Tunnel, "t", false, "listen on -addr and tunnel one connection to REMOTE_HOST")
	fs.StringVar(&f.Addr, "addr", "", "local socket for -l and -t (default 127.0.0.1:3232)")

	fs.Var(proxyFlag{f}, "proxy", "connect through SOCKS5; -proxy=host[:port] (default port 9050)")

	fs.Func("T", "connection timeout, in seconds (default 10)", func(s string) error {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return err
		}
		f.Timeout = uint(v)
		f.TimeoutSet = true
		return nil
	})

	fs.Var((*countFlag)(&f.Verbosity), "v", "verbosity; repeat for more")
}

const usage = `usage:
  nsh [-v ...] [-C config] [-i identity] -l [-addr host:port]
  nsh [-v ...] [-i identity] [-proxy[=host[:port]]] [-T secs] -t [-addr host:port] REMOTE_HOST
  nsh [-v ...] [-i identity] [-proxy[=host[:port]]] [-T secs] REMOTE_HOST [COMMAND]

REMOTE_HOST is <identity>@<host>[:port]; COMMAND is [<remote host>@]echo|date
(default date).
`

// ParseArgs defines and parses the flags from the command line. args[0] is
// the program name. Usage is written to out on error.
func ParseArgs(args []string, out io.Writer) (*Flags, error) {
	f := new(Flags)
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprint(out, usage)
		fs.PrintDefaults()
	}
	defineFlags(fs, f)

	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	if err := f.check(fs.Args()); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Flags) check(rest []string) error {
	if f.Listen {
		switch {
		case f.Tunnel:
			return &ConflictError{"-l", "-t"}
		case f.ForceProxy:
			return &ConflictError{"-l", "-proxy"}
		case len(rest) > 0:
			return &ConflictError{"-l", "REMOTE_HOST"}
		}
		return nil
	}
	if len(rest) == 0 {
		return ErrMissingRemoteHost
	}
	f.RemoteHost = rest[0]
	if len(rest) > 1 {
		if f.Tunnel {
			return &ConflictError{"-t", "COMMAND"}
		}
		f.Command = rest[1]
	}
	if len(rest) > 2 {
		return ErrExcessArgs
	}
	return nil
}
