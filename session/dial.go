package session

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"

	"hop.computer/nsh/core"
)

func dial(ctx context.Context, addr core.NetAddr, cfg *Config) (net.Conn, error) {
	d := &net.Dialer{Timeout: cfg.HandshakeTimeout()}
	if !cfg.UsesProxy(addr) {
		logrus.Debugf("session: dialing %s", addr)
		return d.DialContext(ctx, "tcp", addr.String())
	}
	p := cfg.ProxyAddr()
	logrus.Debugf("session: dialing %s through SOCKS5 proxy %s", addr, p)
	socks, err := proxy.SOCKS5("tcp", p.String(), nil, d)
	if err != nil {
		return nil, err
	}
	if cd, ok := socks.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", addr.String())
	}
	return socks.Dial("tcp", addr.String())
}
