//go:build unix

package session

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// control lets a restarted daemon rebind while old connections linger.
func control(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
