// Package socket implements the multiplexing endpoint that owns one UDP
// transport: it classifies inbound datagrams by tag into connectionless
// messages or stream traffic, accepts or rejects new inbound streams via a
// user-supplied connect handler, and life-cycles the resulting Streams.
package socket

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/NebulousLabs/errors"
	"github.com/NebulousLabs/fastrand"
	"github.com/NebulousLabs/threadgroup"
	"github.com/pSapien/udp/oracle"
	"github.com/pSapien/udp/persist"
	"github.com/pSapien/udp/stream"
	"github.com/pSapien/udp/transport"
)

var (
	// ErrDuplicateRegistration is returned by the Register* methods when a
	// handler (general, connect, stream, open, or close) is already
	// installed for the given key.
	ErrDuplicateRegistration = errors.New("socket: handler already registered")
	// ErrNoConnectHandler is logged (and the provisional stream closed) when
	// an inbound stream's first message has no registered connect handler.
	ErrNoConnectHandler = errors.New("socket: no connect handler for message type")
	// ErrTooManyStreams is logged when a datagram that would open a new
	// inbound stream is dropped because Config.MaxServerStreams is reached.
	// Nothing is sent back to the remote.
	ErrTooManyStreams = errors.New("socket: too many concurrent server streams")
	// ErrAlreadyConnected is returned by Connect when the socket already has
	// an outbound stream.
	ErrAlreadyConnected = errors.New("socket: outbound stream already exists")
	// ErrServerMode is returned by Connect on a socket that has called
	// Listen: a socket is either a client or a server, never both, per the
	// canonical (disjoint) design.
	ErrServerMode = errors.New("socket: cannot connect out, socket is in server mode")
	// ErrClientMode is the Listen-side counterpart of ErrServerMode.
	ErrClientMode = errors.New("socket: cannot listen, socket already has an outbound stream")
	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("socket: closed")
)

type serverEntry struct {
	stream   *stream.Stream
	userData interface{}
}

type pendingAccept struct {
	mu        sync.Mutex
	stream    *stream.Stream
	triggered bool
	resolved  bool
	accepted  bool
	buffered  []oracle.Message
	// timer abandons the provisional stream if the connect handler run by
	// resolveAccept hasn't resolved within acceptTimeout.
	timer *time.Timer
}

// Socket owns one UDP endpoint shared by every Stream it creates. All
// exported methods are safe for concurrent use.
type Socket struct {
	// ID is a random identifier generated at construction, useful for
	// disambiguating log lines from multiple Sockets in the same process.
	ID ID

	oracle    oracle.Oracle
	transport transport.Transport
	config    Config
	log       *persist.Logger
	tg        threadgroup.ThreadGroup
	metrics   *namespaceMetrics

	mu                sync.RWMutex
	closing           bool
	serverMode        bool
	readLoopStarted   bool
	liveStreams       int
	datagramsSent     uint64
	datagramsReceived uint64
	bytesSent         uint64
	bytesReceived     uint64
	streamsEnded      uint64
	retransmits       uint64
	generalHandlers   map[oracle.TypeID]GeneralHandler
	connectHandlers   map[oracle.TypeID]ConnectHandler
	streamHandlers    map[oracle.TypeID]StreamHandler
	openHandler       OpenHandler
	closeHandler      CloseHandler
	clientStream      *stream.Stream
	serverStreams     map[string]*serverEntry
	pendingAccepts    map[string]*pendingAccept
}

// New constructs a Socket around o and cfg. The returned Socket has no
// bound transport yet; call Listen for server mode or Connect for client
// mode (Connect binds an ephemeral transport itself if cfg.Transport and
// Listen were not used).
func New(o oracle.Oracle, cfg Config, log *persist.Logger) *Socket {
	s := &Socket{
		oracle:          o,
		transport:       cfg.Transport,
		config:          cfg,
		log:             log,
		metrics:         newNamespaceMetrics(),
		generalHandlers: make(map[oracle.TypeID]GeneralHandler),
		connectHandlers: make(map[oracle.TypeID]ConnectHandler),
		streamHandlers:  make(map[oracle.TypeID]StreamHandler),
	}
	fastrand.Read(s.ID[:])
	return s
}

// RegisterGeneral installs the handler for connectionless messages of the
// given type. Re-registering the same id is an error.
func (s *Socket) RegisterGeneral(id oracle.TypeID, h GeneralHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generalHandlers[id]; ok {
		return errors.Extend(ErrDuplicateRegistration, errors.New("general handler"))
	}
	s.generalHandlers[id] = h
	return nil
}

// RegisterConnect installs the accept/reject decision handler for new
// inbound streams whose first message has the given type.
func (s *Socket) RegisterConnect(id oracle.TypeID, h ConnectHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connectHandlers[id]; ok {
		return errors.Extend(ErrDuplicateRegistration, errors.New("connect handler"))
	}
	s.connectHandlers[id] = h
	return nil
}

// RegisterStream installs the handler for subsequent messages, of the given
// type, on an accepted stream.
func (s *Socket) RegisterStream(id oracle.TypeID, h StreamHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streamHandlers[id]; ok {
		return errors.Extend(ErrDuplicateRegistration, errors.New("stream handler"))
	}
	s.streamHandlers[id] = h
	return nil
}

// RegisterOpen installs the handler fired when an inbound stream is
// accepted. At most one may be registered.
func (s *Socket) RegisterOpen(h OpenHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openHandler != nil {
		return errors.Extend(ErrDuplicateRegistration, errors.New("open handler"))
	}
	s.openHandler = h
	return nil
}

// RegisterClose installs the handler fired when any stream (inbound or the
// single outbound) reaches ENDED. At most one may be registered.
func (s *Socket) RegisterClose(h CloseHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeHandler != nil {
		return errors.Extend(ErrDuplicateRegistration, errors.New("close handler"))
	}
	s.closeHandler = h
	return nil
}

// LocalAddr reports the address the socket's transport is bound to, or nil
// if no transport is bound yet (none was supplied in Config and none of
// Listen, Connect or Bind has been called).
func (s *Socket) LocalAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.transport == nil {
		return nil
	}
	return s.transport.LocalAddr()
}

// Send emits a connectionless datagram: tag GENERAL followed by the
// Oracle-encoded message.
func (s *Socket) Send(to net.Addr, msg oracle.Message) error {
	s.mu.RLock()
	if s.closing {
		s.mu.RUnlock()
		return ErrClosed
	}
	tr := s.transport
	s.mu.RUnlock()
	if tr == nil {
		return errors.New("socket: not bound, call Listen or Connect first")
	}

	var buf bytes.Buffer
	buf.WriteByte(tagGeneral)
	if err := s.oracle.Encode(&buf, msg); err != nil {
		return err
	}
	n, err := tr.WriteTo(buf.Bytes(), to)
	if err == nil {
		s.metrics.generalSent.Inc(1)
		s.mu.Lock()
		s.datagramsSent++
		s.bytesSent += uint64(n)
		s.mu.Unlock()
	}
	return err
}

// Broadcast sends msg to 255.255.255.255:port. The bound transport must
// have been opened with Config.Broadcast.
func (s *Socket) Broadcast(port int, msg oracle.Message) error {
	addr, err := transport.ResolveEndpoint(fmt.Sprintf("%s:%d", transport.BroadcastAddr, port))
	if err != nil {
		return err
	}
	return s.Send(addr, msg)
}

// Close is idempotent: it marks the socket closing, closes every live
// stream, and releases the transport once the last stream has ended.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	streams := make([]*stream.Stream, 0, len(s.serverStreams)+1)
	if s.clientStream != nil {
		streams = append(streams, s.clientStream)
	}
	for _, e := range s.serverStreams {
		streams = append(streams, e.stream)
	}
	noLiveStreams := s.liveStreams == 0
	s.mu.Unlock()

	for _, st := range streams {
		st.Close()
	}

	if noLiveStreams {
		return s.releaseTransport()
	}
	return nil
}

// releaseTransport closes the underlying transport and stops the socket's
// thread group. Called once every stream this socket owned has drained.
// The transport is closed first so the blocked read loop's ReadFrom call
// returns with an error and the loop's goroutine can observe tg.StopChan
// and exit; stopping the thread group beforehand would deadlock waiting on
// that same goroutine.
func (s *Socket) releaseTransport() error {
	s.mu.RLock()
	tr := s.transport
	s.mu.RUnlock()

	var closeErr error
	if tr != nil {
		closeErr = tr.Close()
	}
	if err := s.tg.Stop(); err != nil && s.log != nil {
		s.log.Printf("socket: thread group stop: %v", err)
	}
	return closeErr
}
