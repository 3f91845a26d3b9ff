package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"hop.computer/nsh/config"
	"hop.computer/nsh/processor"
	"hop.computer/nsh/reactor"
	"hop.computer/nsh/server"
)

// statsInterval paces the daemon's periodic trace log.
const statsInterval = time.Minute

// Listen runs the daemon until ctx is cancelled or the reactor fails.
func (a *App) Listen(ctx context.Context, cfg *config.Config) error {
	s, err := server.New(cfg.Local.String(), processor.New(cfg.Session))
	if err != nil {
		return err
	}
	a.banner("Listening on %s ...\n", s.Addr())

	rc := a.Reactor
	if rc.TimerInterval == 0 {
		rc.TimerInterval = statsInterval
	}
	r := reactor.New(s, rc)
	if a.ready != nil {
		a.ready <- s.Addr().String()
	}

	select {
	case <-ctx.Done():
		logrus.Infof("app: shutting down")
		return r.Shutdown()
	case <-r.Dead():
		return r.Join()
	}
}
