package app

import (
	"context"

	"hop.computer/nsh/client"
	"hop.computer/nsh/config"
)

// Connect runs one command on the remote host and copies its output to
// Stdout.
func (a *App) Connect(ctx context.Context, cfg *config.Config) error {
	a.banner("Connecting to %s ...\n", cfg.Session.Describe(cfg.Remote.Addr))

	c, err := client.Connect(ctx, cfg.Remote, cfg.Session)
	if err != nil {
		return err
	}
	p, err := c.Exec(cfg.Command)
	if err != nil {
		c.Disconnect()
		return err
	}
	a.banner("Remote output >>>\n")
	if _, err := p.WriteTo(a.Stdout); err != nil {
		c.Disconnect()
		return err
	}
	if err := p.Complete().Disconnect(); err != nil {
		return err
	}
	a.banner("<<< done\n")
	return nil
}
