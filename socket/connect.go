package socket

import (
	"net"

	"github.com/pSapien/udp/oracle"
	"github.com/pSapien/udp/stream"
	"github.com/pSapien/udp/transport"
)

// Connect creates the socket's single outbound stream to endpoint, enqueues
// msg as its first item (which the peer's connect handler will inspect),
// and returns the Stream. A socket may have at most one outbound stream,
// and Connect is unavailable once the socket is in server mode (Listen has
// been called) — the canonical design keeps client and server roles
// disjoint per socket.
func (s *Socket) Connect(endpoint string, msg oracle.Message) (*stream.Stream, error) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.serverMode {
		s.mu.Unlock()
		return nil, ErrServerMode
	}
	if s.clientStream != nil {
		s.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	s.mu.Unlock()

	remote, err := transport.ResolveEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	if err := s.bindTransport(); err != nil {
		return nil, err
	}
	if err := s.ensureReadLoop(); err != nil {
		return nil, err
	}

	st := stream.New(remote, s.config.Version, s.oracle, s.streamSender(remote), nil, s.clientCloseHandler(), s.log)
	st.SetSendObserver(s.streamSendObserver())
	st.SetItemHandler(func(seq uint16, msg oracle.Message) {
		s.metrics.streamReceived.Inc(1)
		s.dispatchToStreamHandler(nil, msg, remote)
	})

	s.mu.Lock()
	if s.clientStream != nil {
		s.mu.Unlock()
		st.End(nil)
		return nil, ErrAlreadyConnected
	}
	s.clientStream = st
	s.liveStreams++
	s.mu.Unlock()

	st.Enqueue(msg)
	return st, nil
}

// clientCloseHandler returns the onClose callback bound to the single
// outbound stream: it clears clientStream and fires the user close_handler
// with nil user-data, since user-data only exists on the accept path.
func (s *Socket) clientCloseHandler() stream.CloseHandler {
	return func(err error) {
		s.mu.Lock()
		remote := s.clientStream
		var from net.Addr
		if remote != nil {
			from = remote.Remote
		}
		s.clientStream = nil
		s.liveStreams--
		s.streamsEnded++
		noLiveStreams := s.closing && s.liveStreams == 0
		closeHandler := s.closeHandler
		s.mu.Unlock()

		if closeHandler != nil {
			closeHandler(nil, from, err)
		}
		if noLiveStreams {
			s.releaseTransport()
		}
	}
}

// Bind gives the socket an ephemeral transport for Send/Broadcast-only use
// (no stream traffic), without entering client or server mode. Listen and
// Connect bind their own transport, so calling Bind first is unnecessary
// before either.
func (s *Socket) Bind() error {
	return s.bindTransport()
}

// bindTransport lazily dials an ephemeral UDP transport for client-mode use
// if Listen/Config.Transport has not already supplied one.
func (s *Socket) bindTransport() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != nil {
		return nil
	}
	tr, err := transport.Dial(transport.Config{Broadcast: s.config.Broadcast})
	if err != nil {
		return err
	}
	s.transport = tr
	return nil
}
