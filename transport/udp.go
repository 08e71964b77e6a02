package transport

import (
	"net"
	"time"

	"github.com/NebulousLabs/errors"
)

// Config configures a UDPTransport at bind time.
type Config struct {
	// Broadcast enables sending to the limited broadcast address
	// (255.255.255.255). It must be opted into explicitly, since enabling
	// it is a privileged operation on some platforms and is rarely what a
	// point-to-point client wants.
	Broadcast bool
}

// UDPTransport is the default Transport implementation, a thin wrapper
// around *net.UDPConn.
type UDPTransport struct {
	conn *net.UDPConn
}

// Listen binds a UDP socket at addr ("host:port", or ":port" for any
// interface) and returns a ready-to-use UDPTransport.
func Listen(addr string, cfg Config) (*UDPTransport, error) {
	laddr, err := ResolveEndpoint(addr)
	if err != nil {
		return nil, errors.Extend(err, errors.New("transport: could not resolve bind address"))
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, errors.Extend(err, errors.New("transport: could not bind UDP socket"))
	}
	t := &UDPTransport{conn: conn}
	if cfg.Broadcast {
		if err := enableBroadcast(conn); err != nil {
			conn.Close()
			return nil, errors.Extend(err, errors.New("transport: could not enable broadcast"))
		}
	}
	return t, nil
}

// Dial is a convenience constructor for a client-only transport: it binds
// an ephemeral local port without a fixed destination, matching how
// Socket.Connect is expected to obtain a transport before a remote is
// known (the remote is carried per-datagram via WriteTo, not via
// net.DialUDP's implicit peer).
func Dial(cfg Config) (*UDPTransport, error) {
	return Listen(":0", cfg)
}

// ReadFrom implements Transport.
func (t *UDPTransport) ReadFrom(p []byte) (int, net.Addr, error) {
	return t.conn.ReadFromUDP(p)
}

// WriteTo implements Transport.
func (t *UDPTransport) WriteTo(p []byte, addr net.Addr) (int, error) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		var err error
		udpAddr, err = ResolveEndpoint(addr.String())
		if err != nil {
			return 0, err
		}
	}
	return t.conn.WriteToUDP(p, udpAddr)
}

// LocalAddr implements Transport.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// SetReadDeadline implements Transport.
func (t *UDPTransport) SetReadDeadline(tm time.Time) error {
	return t.conn.SetReadDeadline(tm)
}

// Close implements Transport.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
