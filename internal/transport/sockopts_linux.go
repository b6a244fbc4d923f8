//go:build linux

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// setFabricSockOpts configures the fabric's listening socket. SO_REUSEADDR
// lets the daemon rebind its fabric port across a fast restart without
// waiting out TIME_WAIT, the one socket option that carries over from a
// plain connection listener to a shared unicast UDP socket.
func setFabricSockOpts(_, _ string, c syscall.RawConn) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}

	return sockErr
}
