//go:build unix

package reactor

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

var temporaryErrnos = []error{
	unix.ECONNABORTED,
	unix.ECONNRESET,
	unix.EINTR,
	unix.EMFILE,
	unix.ENFILE,
	unix.ENOBUFS,
	unix.ENOMEM,
}

// isTemporary reports whether an accept error leaves the listener usable.
func isTemporary(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	for _, errno := range temporaryErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
