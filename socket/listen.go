package socket

import (
	"context"
	"net"
	"strconv"

	"github.com/NebulousLabs/errors"
	upnp "github.com/NebulousLabs/go-upnp"
	"github.com/pSapien/udp/build"
	"github.com/pSapien/udp/transport"
)

var errAlreadyListening = errors.New("socket: already listening")

// splitPort extracts the numeric port Listen bound to, for UPnP forwarding.
func splitPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0, err
	}
	return host, port, nil
}

// Listen binds the socket's transport to addr and enables server-side
// acceptance of inbound streams. It is unavailable once the socket has an
// outbound stream (Connect), and may only be called once.
func (s *Socket) Listen(addr string) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.clientStream != nil {
		s.mu.Unlock()
		return ErrClientMode
	}
	if s.serverMode {
		s.mu.Unlock()
		return errAlreadyListening
	}
	s.serverMode = true
	s.serverStreams = make(map[string]*serverEntry)
	s.pendingAccepts = make(map[string]*pendingAccept)
	s.mu.Unlock()

	if err := s.bindListenTransport(addr); err != nil {
		return err
	}
	if err := s.ensureReadLoop(); err != nil {
		return err
	}

	if s.config.ForwardPort {
		go s.threadedForwardPort(addr)
	}
	return nil
}

func (s *Socket) bindListenTransport(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != nil {
		return nil
	}
	tr, err := transport.Listen(addr, transport.Config{Broadcast: s.config.Broadcast})
	if err != nil {
		return err
	}
	s.transport = tr
	return nil
}

// threadedForwardPort adds a UPnP port mapping for the socket's listening
// port and clears it again once the socket's thread group stops.
func (s *Socket) threadedForwardPort(addr string) {
	if err := s.tg.Add(); err != nil {
		return
	}
	defer s.tg.Done()

	if build.Release == "testing" {
		return
	}

	_, port, err := splitPort(addr)
	if err != nil {
		if s.log != nil {
			s.log.Printf("socket: could not determine port to forward for %q: %v", addr, err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.tg.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()

	d, err := upnp.DiscoverCtx(ctx)
	if err != nil {
		if s.log != nil {
			s.log.Printf("socket: no UPnP-enabled devices found to forward port %d: %v", port, err)
		}
		return
	}
	if err := d.Forward(uint16(port), "udp transport"); err != nil {
		if s.log != nil {
			s.log.Printf("socket: could not forward port %d: %v", port, err)
		}
		return
	}
	if s.log != nil {
		s.log.Printf("socket: forwarded port %d via UPnP", port)
	}

	s.tg.AfterStop(func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		d, err := upnp.DiscoverCtx(ctx)
		if err != nil {
			return
		}
		if err := d.Clear(uint16(port)); err != nil && s.log != nil {
			s.log.Printf("socket: could not clear forwarded port %d: %v", port, err)
		}
	})
}
