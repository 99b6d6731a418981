//go:build windows

package remote

import "syscall"

// reuseAddrControl sets SO_REUSEADDR before bind so the discovery socket
// can share the multicast port with an editor on the same host. Windows
// has no SO_REUSEPORT; SO_REUSEADDR alone covers shared multicast binds.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
