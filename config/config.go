// Package config contains the process configuration of nsh: the mode to run
// in, the identity, and the settings every session shares. Settings come from
// flags and an optional TOML file.
package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/nsh/command"
	"hop.computer/nsh/common"
	"hop.computer/nsh/core"
	"hop.computer/nsh/keys"
	"hop.computer/nsh/pkg/thunks"
	"hop.computer/nsh/session"
)

// Mode selects what the process does.
type Mode int

// Mode values.
const (
	ModeConnect Mode = iota
	ModeListen
	ModeTunnel
)

func (m Mode) String() string {
	switch m {
	case ModeConnect:
		return "connect"
	case ModeListen:
		return "listen"
	case ModeTunnel:
		return "tunnel"
	}
	return "unknown"
}

// Config is everything a mode needs. The identity is loaded once and passed
// to each component through Session.
type Config struct {
	Mode Mode

	IdentityPath    string
	IdentityCreated bool
	Keys            *keys.NodeKeys

	// Local is the daemon socket for ModeListen and the tunnel entrance for
	// ModeTunnel.
	Local core.NetAddr

	Remote  core.RemoteHost
	Command command.Command

	Session session.Config
}

// FileConfig is the optional TOML configuration file.
//
//	identity = "~/.nsh/ssi_ed25519"
//	listen = "0.0.0.0:3232"
//	proxy = "127.0.0.1:9050"
//	timeout = 10
type FileConfig struct {
	Identity string `toml:"identity"`
	Listen   string `toml:"listen"`
	Proxy    string `toml:"proxy"`
	Timeout  uint   `toml:"timeout"`
}

// openFile reads config files. Tests swap it for an in-memory fs.FS.
var openFile = func(name string) (fs.File, error) { return os.Open(name) }

// LoadFile parses the config file at path. Unknown settings are an error.
func LoadFile(path string) (*FileConfig, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var fc FileConfig
	md, err := toml.NewDecoder(f).Decode(&fc)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("%s: unknown setting %q", path, undecoded[0].String())
	}
	return &fc, nil
}

// LoadFileOrDefault loads path. An empty path means the default location,
// where a missing file is not an error.
func LoadFileOrDefault(path string) (*FileConfig, error) {
	if path != "" {
		p, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		return LoadFile(p)
	}
	fc, err := LoadFile(DefaultConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		logrus.Debugf("config: no config file at %s", DefaultConfigPath())
		return &FileConfig{}, nil
	}
	return fc, err
}

// UserDirectory returns the path to the nsh directory of the current user.
func UserDirectory() string {
	home, err := thunks.UserHomeDir()
	if err != nil {
		return common.UserConfigDirectory
	}
	return filepath.Join(home, common.UserConfigDirectory)
}

// DefaultIdentityPath returns UserDirectory()/ssi_ed25519.
func DefaultIdentityPath() string {
	return filepath.Join(UserDirectory(), common.DefaultIDFile)
}

// DefaultConfigPath returns UserDirectory()/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(UserDirectory(), common.DefaultConfigFile)
}

// ExpandPath replaces a leading ~ with the home directory.
func ExpandPath(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := thunks.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "unable to expand ~")
	}
	return filepath.Join(home, p[1:]), nil
}

// LoadIdentity reads the identity at path, generating it if it does not
// exist.
func (c *Config) LoadIdentity(path string) error {
	p, err := ExpandPath(path)
	if err != nil {
		return err
	}
	k, created, err := keys.LoadOrGenerate(p)
	if err != nil {
		return errors.Wrapf(err, "unable to load identity from %s", p)
	}
	c.IdentityPath = p
	c.IdentityCreated = created
	c.Keys = k
	c.Session.Keys = k
	return nil
}

// Timeout returns the session timeout.
func (c *Config) Timeout() time.Duration {
	return c.Session.HandshakeTimeout()
}

// LogLevel maps the number of -v flags to a log level.
func LogLevel(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.WarnLevel
	case verbosity == 1:
		return logrus.InfoLevel
	case verbosity == 2:
		return logrus.DebugLevel
	}
	return logrus.TraceLevel
}

// DefaultLocal is the default daemon and tunnel socket.
func DefaultLocal() core.NetAddr {
	return core.NetAddr{Host: "127.0.0.1", Port: common.DefaultPort}
}

// ErrNoIdentity is returned when a Config is used before LoadIdentity.
var ErrNoIdentity = errors.New("no identity loaded")

// Validate checks that c can be run.
func (c *Config) Validate() error {
	if c.Keys == nil {
		return ErrNoIdentity
	}
	if c.Mode != ModeListen && c.Remote.ID.IsZero() {
		return errors.New("missing remote host")
	}
	return nil
}
