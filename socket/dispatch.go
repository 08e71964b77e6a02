package socket

import (
	"bytes"
	"net"
	"time"

	"github.com/pSapien/udp/oracle"
	"github.com/pSapien/udp/stream"
)

// ensureReadLoop starts the socket's single inbound dispatch loop exactly
// once, regardless of whether the caller arrived via Listen or Connect.
func (s *Socket) ensureReadLoop() error {
	s.mu.Lock()
	if s.readLoopStarted {
		s.mu.Unlock()
		return nil
	}
	s.readLoopStarted = true
	s.mu.Unlock()

	if err := s.tg.Add(); err != nil {
		return err
	}
	go func() {
		defer s.tg.Done()
		s.readLoop()
	}()
	return nil
}

// readLoop is the socket's only reader of the transport: every inbound
// datagram is classified and dispatched serially here, mirroring the
// teacher's own accept-loop-that-returns-on-error idiom.
func (s *Socket) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := s.transport.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.tg.StopChan():
			default:
				if s.log != nil {
					s.log.Printf("socket: read loop exiting: %v", err)
				}
			}
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		s.dispatch(payload, from)
	}
}

func (s *Socket) dispatch(payload []byte, from net.Addr) {
	if len(payload) < 1 {
		return
	}
	s.mu.Lock()
	s.datagramsReceived++
	s.bytesReceived += uint64(len(payload))
	s.mu.Unlock()

	switch payload[0] {
	case tagGeneral:
		s.dispatchGeneral(payload[1:], from)
	case tagStream:
		s.dispatchStream(payload[1:], from)
	default:
		if s.log != nil {
			s.log.Printf("socket: dropping datagram from %v with unknown tag %d", from, payload[0])
		}
	}
}

func (s *Socket) dispatchGeneral(body []byte, from net.Addr) {
	id, msg, err := s.oracle.Decode(bytes.NewReader(body))
	if err != nil {
		if s.log != nil {
			s.log.Printf("socket: dropping unparseable general datagram from %v: %v", from, err)
		}
		return
	}

	s.mu.RLock()
	h, ok := s.generalHandlers[id]
	s.mu.RUnlock()
	if !ok {
		if s.log != nil {
			s.log.Printf("socket: no general handler for type %d from %v", id, from)
		}
		return
	}
	s.metrics.generalReceived.Inc(1)
	h(msg, from)
}

func (s *Socket) dispatchStream(body []byte, from net.Addr) {
	s.mu.RLock()
	client := s.clientStream
	s.mu.RUnlock()
	if client != nil {
		client.Receive(body)
		return
	}

	key := from.String()

	s.mu.RLock()
	entry, ok := s.serverStreams[key]
	s.mu.RUnlock()
	if ok {
		entry.stream.Receive(body)
		return
	}

	s.mu.Lock()
	if pa, ok := s.pendingAccepts[key]; ok {
		s.mu.Unlock()
		pa.stream.Receive(body)
		return
	}

	if s.config.MaxServerStreams > 0 && len(s.serverStreams) >= s.config.MaxServerStreams {
		s.mu.Unlock()
		if s.log != nil {
			s.log.Printf("socket: rejecting new stream from %v: %v", from, ErrTooManyStreams)
		}
		return
	}

	pa := &pendingAccept{}
	sender := s.streamSender(from)
	st := stream.New(from, "", s.oracle, sender, nil, s.makeEvictionHandler(key, from, pa), s.log)
	st.SetSendObserver(s.streamSendObserver())
	pa.stream = st
	pa.timer = time.AfterFunc(acceptTimeout, func() {
		s.timeoutAccept(pa, key)
	})
	if s.pendingAccepts == nil {
		s.pendingAccepts = make(map[string]*pendingAccept)
	}
	s.pendingAccepts[key] = pa
	s.mu.Unlock()

	st.SetItemHandler(s.provisionalItemHandler(pa, key, from))
	st.Receive(body)
}

// streamSender returns the Sender a Stream should use to reach the given
// remote: tag STREAM followed by the raw frame body.
func (s *Socket) streamSender(to net.Addr) stream.Sender {
	return func(payload []byte) error {
		framed := make([]byte, 1+len(payload))
		framed[0] = tagStream
		copy(framed[1:], payload)
		n, err := s.transport.WriteTo(framed, to)
		if err == nil {
			s.metrics.streamSent.Inc(1)
			s.mu.Lock()
			s.datagramsSent++
			s.bytesSent += uint64(n)
			s.mu.Unlock()
		}
		return err
	}
}

// streamSendObserver returns the Stream.SetSendObserver callback a Socket
// installs on every stream it owns, so Stats().RetransmitCount reflects
// frames emitted after the first attempt.
func (s *Socket) streamSendObserver() func(attempt int) {
	return func(attempt int) {
		if attempt <= 1 {
			return
		}
		s.mu.Lock()
		s.retransmits++
		s.mu.Unlock()
	}
}

// provisionalItemHandler returns the ItemHandler a fresh inbound
// provisional stream uses before its connection has been accepted or
// rejected: the first item triggers the connect handler; any items
// decoded while that decision is still pending are buffered and replayed
// once it resolves.
func (s *Socket) provisionalItemHandler(pa *pendingAccept, key string, from net.Addr) stream.ItemHandler {
	return func(seq uint16, msg oracle.Message) {
		pa.mu.Lock()
		if pa.resolved {
			accepted, ud := pa.accepted, s.acceptedUserData(key)
			pa.mu.Unlock()
			if accepted {
				s.metrics.streamReceived.Inc(1)
				s.dispatchToStreamHandler(ud, msg, from)
			}
			return
		}
		if !pa.triggered {
			pa.triggered = true
			pa.mu.Unlock()
			go s.resolveAccept(pa, key, from, msg)
			return
		}
		pa.buffered = append(pa.buffered, msg)
		pa.mu.Unlock()
	}
}

func (s *Socket) acceptedUserData(key string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.serverStreams[key]; ok {
		return e.userData
	}
	return nil
}

// resolveAccept runs the registered connect handler for first's type and
// commits or discards the provisional stream based on its verdict. The
// registered-entry check happens after the handler resolves, per the
// accept race rule: the first stream committed for a remote wins, and any
// other provisional stream for that same remote is ended silently.
func (s *Socket) resolveAccept(pa *pendingAccept, key string, from net.Addr, first oracle.Message) {
	id, err := s.oracle.TypeOf(first)
	if err != nil {
		s.abandonAccept(pa, key)
		pa.stream.Close()
		return
	}

	s.mu.RLock()
	handler, ok := s.connectHandlers[id]
	s.mu.RUnlock()
	if !ok {
		if s.log != nil {
			s.log.Printf("socket: %v from %v: %v", ErrNoConnectHandler, from, id)
		}
		s.abandonAccept(pa, key)
		pa.stream.Close()
		return
	}

	userData, accept := handler(first, from)

	s.mu.Lock()
	if _, exists := s.serverStreams[key]; exists {
		delete(s.pendingAccepts, key)
		s.mu.Unlock()
		pa.timer.Stop()
		pa.stream.End(nil)
		return
	}
	if !accept {
		delete(s.pendingAccepts, key)
		s.mu.Unlock()
		pa.timer.Stop()
		pa.stream.Close()
		return
	}

	if s.serverStreams == nil {
		s.serverStreams = make(map[string]*serverEntry)
	}
	s.serverStreams[key] = &serverEntry{stream: pa.stream, userData: userData}
	delete(s.pendingAccepts, key)
	s.liveStreams++
	openHandler := s.openHandler
	s.mu.Unlock()

	pa.timer.Stop()
	if openHandler != nil {
		openHandler(userData, from)
	}

	// Drain everything buffered while the connect handler ran, re-checking
	// for items that arrived mid-drain, before marking pa resolved. The
	// provisional item handler installed on pa.stream keeps buffering (under
	// pa.mu) rather than dispatching anything the read loop decodes until
	// resolved flips, so this loop is the only place that ever dispatches a
	// buffered item, in order, and resolved only flips once nothing is left
	// to drain. pa.stream keeps using the provisional handler afterwards —
	// its "resolved" fast path looks userData up from s.serverStreams and
	// dispatches inline from the read loop goroutine, so no handler swap
	// (and no second dispatching path) is ever introduced.
	for {
		pa.mu.Lock()
		buffered := pa.buffered
		pa.buffered = nil
		if len(buffered) == 0 {
			pa.accepted = true
			pa.resolved = true
			pa.mu.Unlock()
			break
		}
		pa.mu.Unlock()

		for _, msg := range buffered {
			s.metrics.streamReceived.Inc(1)
			s.dispatchToStreamHandler(userData, msg, from)
		}
	}
}

// abandonAccept marks pa resolved-but-rejected and removes its pending
// entry, so items pa.stream still decodes are dropped rather than spawning a
// second connect-handler call. A later datagram from the same remote finds
// no entry for key and starts a fresh provisional stream.
func (s *Socket) abandonAccept(pa *pendingAccept, key string) {
	s.mu.Lock()
	delete(s.pendingAccepts, key)
	s.mu.Unlock()

	pa.timer.Stop()
	pa.mu.Lock()
	pa.resolved = true
	pa.accepted = false
	pa.buffered = nil
	pa.mu.Unlock()
}

// timeoutAccept fires acceptTimeout after a provisional stream was created,
// if its accept has not resolved by then, abandoning the accept and tearing
// the provisional stream down so its pendingAccepts entry doesn't leak. The
// goroutine running a stuck connect handler is not stopped.
func (s *Socket) timeoutAccept(pa *pendingAccept, key string) {
	pa.mu.Lock()
	if pa.resolved {
		pa.mu.Unlock()
		return
	}
	pa.resolved = true
	pa.accepted = false
	pa.buffered = nil
	pa.mu.Unlock()

	s.mu.Lock()
	delete(s.pendingAccepts, key)
	s.mu.Unlock()

	if s.log != nil {
		s.log.Printf("socket: connect handler for %v did not resolve within %v, abandoning", key, acceptTimeout)
	}
	pa.stream.Close()
}

func (s *Socket) dispatchToStreamHandler(userData interface{}, msg oracle.Message, from net.Addr) {
	id, err := s.oracle.TypeOf(msg)
	if err != nil {
		return
	}
	s.mu.RLock()
	h, ok := s.streamHandlers[id]
	s.mu.RUnlock()
	if !ok {
		if s.log != nil {
			s.log.Printf("socket: no stream handler for type %d from %v", id, from)
		}
		return
	}
	h(userData, msg, from)
}

// makeEvictionHandler returns the onClose callback bound to a server-side
// stream at construction. It fires the user close_handler, with the
// stream's stored user-data, only if this exact stream is still the one
// registered for key — a losing provisional stream from the accept race is
// evicted silently.
func (s *Socket) makeEvictionHandler(key string, from net.Addr, pa *pendingAccept) stream.CloseHandler {
	return func(err error) {
		s.mu.Lock()
		entry, ok := s.serverStreams[key]
		var userData interface{}
		wasRegistered := ok && entry.stream == pa.stream
		if wasRegistered {
			delete(s.serverStreams, key)
			userData = entry.userData
			s.liveStreams--
			s.streamsEnded++
		}
		delete(s.pendingAccepts, key)
		noLiveStreams := s.closing && s.liveStreams == 0
		closeHandler := s.closeHandler
		s.mu.Unlock()

		if wasRegistered && closeHandler != nil {
			closeHandler(userData, from, err)
		}
		if noLiveStreams {
			s.releaseTransport()
		}
	}
}
