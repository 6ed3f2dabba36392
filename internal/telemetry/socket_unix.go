//go:build unix

package telemetry

import "syscall"

// enableBroadcast sets SO_BROADCAST on the socket before bind.
func enableBroadcast(network, address string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
