package app

import (
	"context"
	"fmt"

	"hop.computer/nsh/common"
	"hop.computer/nsh/config"
	"hop.computer/nsh/session"
	"hop.computer/nsh/tunnel"
)

// Tunnel connects to the remote host, then pipes the first local connection
// through the session.
func (a *App) Tunnel(ctx context.Context, cfg *config.Config) error {
	a.banner("Tunneling to %s from %s...\n", cfg.Remote, cfg.Local)

	conn, err := session.Connect(ctx, cfg.Remote, cfg.Session)
	if err != nil {
		return err
	}
	t, err := tunnel.New(conn, cfg.Local)
	if err != nil {
		conn.Close()
		return fmt.Errorf("unable to construct tunnel with %s: %w", cfg.Remote, err)
	}
	if a.ready != nil {
		a.ready <- t.Addr().String()
	}
	_, _, err = t.Once(ctx, common.TunnelAcceptTimeout)
	t.Session().Close()
	return err
}
