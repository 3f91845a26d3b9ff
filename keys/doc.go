// Package keys contains wrappers for Ed25519 and X25519 as used by nsh. It can
// read and write private keys from PEM files, and public keys from text.
//
// Ed25519 signing keys are long-term node identities: the public half is the
// PeerIdentity that addresses a host and authenticates a connection. X25519
// keys are only used as ephemeral keys during the session handshake.
package keys
