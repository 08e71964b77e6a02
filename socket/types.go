package socket

import (
	"net"

	"github.com/pSapien/udp/oracle"
	"github.com/pSapien/udp/transport"
)

// GeneralHandler handles one connectionless (tag GENERAL) message.
type GeneralHandler func(msg oracle.Message, from net.Addr)

// ConnectHandler inspects the first message of a new inbound stream and
// decides whether to accept it. Returning ok == false rejects the
// connection. It may block; the socket runs it on its own goroutine and the
// remote's other datagrams are buffered until it resolves.
type ConnectHandler func(first oracle.Message, from net.Addr) (userData interface{}, ok bool)

// StreamHandler handles one message arriving on an accepted stream (inbound
// or the single outbound). userData is nil for the outbound client stream,
// since a socket does not hand itself user-data when it is the one
// connecting out.
type StreamHandler func(userData interface{}, msg oracle.Message, from net.Addr)

// OpenHandler fires once, when an inbound stream has been accepted.
type OpenHandler func(userData interface{}, from net.Addr)

// CloseHandler fires once per stream (inbound or outbound) that reaches
// ENDED and was actually registered with this socket.
type CloseHandler func(userData interface{}, from net.Addr, err error)

// Config configures a Socket's behavior beyond the wire protocol itself.
type Config struct {
	// Version is stamped on outbound streams this socket originates (the
	// client stream created by Connect).
	Version string

	// MaxServerStreams bounds how many concurrent inbound streams a
	// listening socket will accept; 0 means unbounded. Once it is reached,
	// datagrams from new remotes are dropped and ErrTooManyStreams is logged.
	MaxServerStreams int

	// Broadcast enables SO_BROADCAST on the bound transport so Broadcast
	// can be used.
	Broadcast bool

	// ForwardPort, if true, attempts a UPnP port forward for the duration
	// the socket is listening.
	ForwardPort bool

	// Transport, if non-nil, is used as-is instead of having Listen/Connect
	// create one, e.g. an in-process or loopback transport.
	Transport transport.Transport
}
