package flags

import (
	"fmt"
	"time"

	"hop.computer/nsh/command"
	"hop.computer/nsh/common"
	"hop.computer/nsh/config"
	"hop.computer/nsh/core"
)

// LoadConfigFromFlags merges f over the config file (f.ConfigPath or the
// default one) and loads the identity. Flags win over the file. Addresses and
// the command are checked before the identity is touched.
func LoadConfigFromFlags(f *Flags) (*config.Config, error) {
	fc, err := config.LoadFileOrDefault(f.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	c := new(config.Config)
	switch {
	case f.Listen:
		c.Mode = config.ModeListen
	case f.Tunnel:
		c.Mode = config.ModeTunnel
	default:
		c.Mode = config.ModeConnect
	}

	c.Local = config.DefaultLocal()
	local := f.Addr
	if local == "" && c.Mode == config.ModeListen {
		local = fc.Listen
	}
	if local != "" {
		if c.Local, err = core.ParseNetAddr(local, common.DefaultPort); err != nil {
			return nil, err
		}
	}

	proxy := f.Proxy
	if proxy == "" {
		proxy = fc.Proxy
	}
	if proxy != "" {
		if c.Session.Proxy, err = core.ParseNetAddr(proxy, common.DefaultSOCKS5Port); err != nil {
			return nil, err
		}
	}
	c.Session.ForceProxy = f.ForceProxy

	switch {
	case f.TimeoutSet:
		c.Session.Timeout = time.Duration(f.Timeout) * time.Second
	case fc.Timeout > 0:
		c.Session.Timeout = time.Duration(fc.Timeout) * time.Second
	default:
		c.Session.Timeout = common.DefaultTimeout
	}

	if c.Mode != config.ModeListen {
		if c.Remote, err = core.ParseRemoteHost(f.RemoteHost); err != nil {
			return nil, err
		}
		c.Command = command.Execute(command.Date)
		if f.Command != "" {
			if c.Command, err = command.Parse(f.Command); err != nil {
				return nil, err
			}
		}
	}

	identity := f.IdentityPath
	if identity == "" {
		identity = fc.Identity
	}
	if identity == "" {
		identity = config.DefaultIdentityPath()
	}
	if err := c.LoadIdentity(identity); err != nil {
		return nil, err
	}
	return c, nil
}
