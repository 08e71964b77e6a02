//go:build windows

package transport

import (
	"net"

	"github.com/NebulousLabs/errors"
)

var errUnsupportedBroadcast = errors.New("transport: broadcast is not supported on this platform")

// enableBroadcast is not implemented on windows; broadcast-enabled sockets
// are a unix-focused convenience in this module (the datagram layer still
// works for ordinary point-to-point traffic without it).
func enableBroadcast(conn *net.UDPConn) error {
	return errUnsupportedBroadcast
}
