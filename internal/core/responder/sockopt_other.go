//go:build !linux && !darwin && !freebsd

package responder

import "syscall"

// controlReuseAddr is a no-op on platforms where the listener keeps its
// default socket options.
func controlReuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}
