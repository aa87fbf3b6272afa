// FILE: internal/shared/counted_conn.go
package shared

import (
	"net"
	"sync/atomic"
)

// CountedConn wraps a net.Conn and atomically accounts the bytes read
// from and written to a client.
type CountedConn struct {
	net.Conn
	bytesIn  *atomic.Uint64
	bytesOut *atomic.Uint64
}

// NewCountedConn creates a new CountedConn instance. Both counters are
// owned by the caller and shared across connections.
func NewCountedConn(conn net.Conn, bytesIn, bytesOut *atomic.Uint64) *CountedConn {
	return &CountedConn{
		Conn:     conn,
		bytesIn:  bytesIn,
		bytesOut: bytesOut,
	}
}

// Read reads from the underlying connection and adds to the inbound counter.
func (c *CountedConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.bytesIn.Add(uint64(n))
	}
	return n, err
}

// Write writes to the underlying connection and adds to the outbound counter.
func (c *CountedConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		c.bytesOut.Add(uint64(n))
	}
	return n, err
}
