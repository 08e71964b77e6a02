// Package transport is the datagram collaborator used by stream and
// socket: something that can send/receive UDP datagrams, bind a listening
// address, and close. Stream and Socket depend only on the Transport
// interface below; UDPTransport is the concrete implementation this module
// ships.
package transport

import (
	"net"
	"time"
)

// BroadcastAddr is the limited broadcast address used by Socket.Broadcast.
const BroadcastAddr = "255.255.255.255"

// Transport is the datagram substrate the rest of this module is built on
// top of. It intentionally mirrors net.PacketConn's shape rather than
// exposing it directly, so that a Socket never needs to know it's UDP in
// particular (a test double can implement Transport without touching a
// real network interface).
type Transport interface {
	// ReadFrom reads one datagram into p, returning the number of bytes
	// read and the address it came from.
	ReadFrom(p []byte) (n int, addr net.Addr, err error)

	// WriteTo sends one datagram to addr.
	WriteTo(p []byte, addr net.Addr) (n int, err error)

	// LocalAddr returns the address this transport is bound to.
	LocalAddr() net.Addr

	// SetReadDeadline bounds the next ReadFrom call, the way
	// net.PacketConn.SetReadDeadline does. The socket's read loop does not
	// set one; it exits when Close makes ReadFrom fail.
	SetReadDeadline(t time.Time) error

	// Close releases the underlying socket. Safe to call more than once.
	Close() error
}

// ResolveEndpoint parses "host:port" (or ":port" meaning "any interface")
// into a *net.UDPAddr, the concrete net.Addr implementation
// returned by UDPTransport.
func ResolveEndpoint(addr string) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", addr)
}
