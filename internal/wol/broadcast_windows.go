//go:build windows

package wol

import (
	"net"

	"golang.org/x/sys/windows"
)

// setBroadcast enables SO_BROADCAST via the Windows sockets API.
func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}
