// Package app runs the nsh modes: the daemon, the one-shot client and the
// tunnel.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"hop.computer/nsh/config"
	"hop.computer/nsh/reactor"
)

// App holds the process streams. Banners are written to Stderr when Banners
// is set, which New does for terminals.
type App struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Banners bool

	// Reactor overrides the daemon's reactor settings in tests.
	Reactor reactor.Config

	// ready, if set, receives the daemon's address once it is listening.
	ready chan<- string
}

// New returns an App writing to the given streams.
func New(stdout, stderr io.Writer) *App {
	return &App{
		Stdout:  stdout,
		Stderr:  stderr,
		Banners: isTerminal(stderr),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (a *App) banner(format string, args ...interface{}) {
	if !a.Banners {
		return
	}
	fmt.Fprintf(a.Stderr, format, args...)
}

// Run executes the mode in cfg until it is done or ctx is cancelled.
func (a *App) Run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.IdentityCreated {
		fmt.Fprintf(a.Stderr, "Identity file not found; created new identity in '%s'\n", cfg.IdentityPath)
	}
	a.banner("Using identity %s\n", cfg.Keys.ID())
	logrus.Debugf("app: running in %s mode", cfg.Mode)

	switch cfg.Mode {
	case config.ModeListen:
		return a.Listen(ctx, cfg)
	case config.ModeTunnel:
		return a.Tunnel(ctx, cfg)
	default:
		return a.Connect(ctx, cfg)
	}
}
