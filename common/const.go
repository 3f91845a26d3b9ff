// Package common holds constants shared by the nsh tools.
package common

import "time"

const (
	// DefaultPort is the port a daemon listens on, and the port assumed for
	// remote hosts given without one.
	DefaultPort uint16 = 3232

	// DefaultSOCKS5Port is the port assumed for a proxy given without one.
	// It is the Tor SOCKS port.
	DefaultSOCKS5Port uint16 = 9050

	// UserConfigDirectory is the dirname of the directory holding the user
	// configuration and identity.
	UserConfigDirectory = ".nsh"

	// DefaultIDFile is the name of the identity file inside
	// UserConfigDirectory.
	DefaultIDFile = "ssi_ed25519"

	// DefaultConfigFile is the name of the optional TOML configuration file
	// inside UserConfigDirectory.
	DefaultConfigFile = "config.toml"

	// DefaultTimeout bounds connect, handshake and tunnel operations.
	DefaultTimeout = 10 * time.Second

	// TunnelAcceptTimeout bounds how long a tunnel waits for its single local
	// connection.
	TunnelAcceptTimeout = 10 * time.Second
)
