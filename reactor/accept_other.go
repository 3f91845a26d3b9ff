//go:build !unix

package reactor

import (
	"errors"
	"net"
)

// isTemporary reports whether an accept error leaves the listener usable.
func isTemporary(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
