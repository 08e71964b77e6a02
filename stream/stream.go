// Package stream implements the per-peer reliable ordered channel that sits
// atop a connectionless datagram transport: sequence numbering, a
// retransmission queue, cumulative-ack processing, and the close handshake.
package stream

import (
	"bytes"
	"net"
	"sync"
	"time"

	"github.com/NebulousLabs/errors"
	"github.com/NebulousLabs/threadgroup"
	"github.com/pSapien/udp/build"
	"github.com/pSapien/udp/oracle"
	"github.com/pSapien/udp/persist"
)

// State is a Stream's position in its OPEN -> CLOSING -> ENDED lifecycle.
type State int

const (
	StateOpen State = iota
	StateClosing
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

var (
	// ErrClosed marks a stream that has started closing. Enqueue does not
	// return it: once the stream is closing, Enqueue drops items silently.
	ErrClosed = errors.New("stream: closed")
	// ErrPeerUnreachable marks a Stream that ended because attempts exceeded
	// max_attempts with no response from the peer.
	ErrPeerUnreachable = errors.New("stream: peer unreachable, max attempts exceeded")
)

// Sender is the non-owning collaborator a Stream writes its serialized
// frames through. A Stream is constructed with one of these rather than a
// back-reference to its owning Socket, which is how the Socket<->Stream
// ownership cycle gets broken in a systems language.
type Sender func(payload []byte) error

// ItemHandler is invoked, in order, for every newly-arrived (never
// previously seen) item on the stream.
type ItemHandler func(seq uint16, msg oracle.Message)

// CloseHandler fires exactly once when a Stream reaches ENDED.
type CloseHandler func(err error)

// Stream is a reliable, ordered, at-least-once channel to one remote
// EndPoint. All exported methods are safe for concurrent use.
type Stream struct {
	Remote  net.Addr
	Version string

	oracle  oracle.Oracle
	send    Sender
	onItem  ItemHandler
	onClose CloseHandler
	log     *persist.Logger
	tg      threadgroup.ThreadGroup

	mu            sync.Mutex
	state         State
	localSeq      uint16
	remoteSeq     uint16
	pending       []pendingItem
	sendScheduled bool
	retryTimer    *time.Timer
	retryInterval time.Duration
	attempts      int
	maxAttempts   int
	closeFired    bool
	closeErr      error
	sendObserver  func(attempt int)
}

// New constructs an OPEN Stream addressed to remote. send is called with
// every serialized frame this Stream produces; onItem is called, holding no
// Stream lock, for every newly-arrived item; onClose fires exactly once when
// the Stream reaches ENDED. log may be nil, in which case log output is
// discarded.
func New(remote net.Addr, version string, o oracle.Oracle, send Sender, onItem ItemHandler, onClose CloseHandler, log *persist.Logger) *Stream {
	return &Stream{
		Remote:        remote,
		Version:       version,
		oracle:        o,
		send:          send,
		onItem:        onItem,
		onClose:       onClose,
		log:           log,
		state:         StateOpen,
		retryInterval: MinRetry,
		maxAttempts:   maxAttemptsOpen,
	}
}

// SetItemHandler replaces the stream's item handler. The socket uses this
// to install its dispatcher right after constructing a stream; an accepted
// inbound stream keeps its provisional handler afterwards.
func (s *Stream) SetItemHandler(h ItemHandler) {
	s.mu.Lock()
	s.onItem = h
	s.mu.Unlock()
}

// SetSendObserver installs a callback fired with the current attempt number
// every time tick emits a frame, letting an owning Socket distinguish a
// fresh send (attempt 1) from a retransmission (attempt > 1) without the
// Sender signature itself needing to carry that information.
func (s *Stream) SetSendObserver(h func(attempt int)) {
	s.mu.Lock()
	s.sendObserver = h
	s.mu.Unlock()
}

// State reports the stream's current lifecycle position.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Enqueue assigns the item the next sequence number and schedules a
// coalesced send. It is a silent no-op once the stream is closing.
func (s *Stream) Enqueue(msg oracle.Message) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.localSeq++
	if n := len(s.pending); n > 0 && s.pending[n-1].seq >= s.localSeq {
		build.Critical("stream: pending out of order:", s.pending[n-1].seq, ">=", s.localSeq)
	}
	s.pending = append(s.pending, pendingItem{seq: s.localSeq, msg: msg})
	s.mu.Unlock()

	s.scheduleSend()
}

// Close requests a graceful shutdown: no further items may be enqueued, the
// close sentinel is transmitted once the pending queue drains, and
// max_attempts is lowered to tolerate fewer unacked retries before giving up
// entirely. Close is idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	s.maxAttempts = maxAttemptsClosing
	s.mu.Unlock()

	s.scheduleSend()
}

// End tears the stream down immediately with no further protocol traffic:
// timers are cancelled and on_close fires exactly once. It is the
// cancellation primitive close() degrades to when the peer is unreachable,
// and what the socket calls on a losing provisional stream.
func (s *Stream) End(err error) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	s.state = StateEnded
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.fireCloseLocked(err)
	s.mu.Unlock()

	if stopErr := s.tg.Stop(); stopErr != nil && s.log != nil {
		s.log.Printf("stream %s: thread group stop: %v", s.Remote, stopErr)
	}
}

// fireCloseLocked invokes onClose at most once. Must be called with mu
// held.
func (s *Stream) fireCloseLocked(err error) {
	if s.closeFired {
		return
	}
	s.closeFired = true
	s.closeErr = err
	if s.onClose != nil {
		onClose, closeErr := s.onClose, s.closeErr
		go onClose(closeErr)
	}
}

// Receive consumes one inbound STREAM frame body: it advances the ack,
// drops acknowledged pending items, observes a remote close, and dispatches
// any newly-arrived items in order (spec's "Receive algorithm").
func (s *Stream) Receive(body []byte) error {
	frame, err := parseFrame(s.oracle, bytes.NewReader(body))
	if err != nil {
		return errors.Extend(err, errors.New("stream: malformed frame"))
	}

	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return nil
	}

	s.pending = dropAcked(s.pending, frame.ack)
	s.attempts = 0

	if frame.remoteClose {
		s.state = StateEnded
		if s.retryTimer != nil {
			s.retryTimer.Stop()
			s.retryTimer = nil
		}
		s.fireCloseLocked(nil)
		s.mu.Unlock()
		if stopErr := s.tg.Stop(); stopErr != nil && s.log != nil {
			s.log.Printf("stream %s: thread group stop: %v", s.Remote, stopErr)
		}
		return nil
	}

	s.retryInterval = MinRetry
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}

	var newItems []decodedItem
	for _, item := range frame.items {
		if item.seq <= s.remoteSeq {
			continue // duplicate, silently discarded
		}
		s.remoteSeq = item.seq
		newItems = append(newItems, item)
	}

	if frame.localClose {
		s.remoteSeq = seqClose
		s.state = StateClosing
		s.maxAttempts = maxAttemptsRemoteClosed
	}

	// Scheduling a send to carry the ack back only on new-item arrival
	// misses one case: any items left in pending after this frame's
	// (possibly partial) ack still need to go out, and the retry timer that
	// would have covered them was just cancelled above — so a
	// drained-but-nonempty pending queue also needs a fresh send scheduled,
	// or it would otherwise stall until the next local Enqueue (matters when
	// draining across acks alone). A locally closing stream likewise still
	// owes the peer its close sentinel once the queue has drained.
	needsAckSend := len(newItems) > 0 || len(s.pending) > 0 || s.state == StateClosing
	onItem := s.onItem
	s.mu.Unlock()

	if onItem != nil {
		for _, item := range newItems {
			onItem(item.seq, item.msg)
		}
	}

	if needsAckSend || frame.localClose {
		s.scheduleSend()
	}
	return nil
}

// dropAcked removes the prefix of pending whose seq is <= ack.
func dropAcked(pending []pendingItem, ack uint16) []pendingItem {
	i := 0
	for i < len(pending) && pending[i].seq <= ack {
		i++
	}
	if i == 0 {
		return pending
	}
	remaining := make([]pendingItem, len(pending)-i)
	copy(remaining, pending[i:])
	return remaining
}

// scheduleSend arms the coalesced-send mechanism: at most one send may be
// outstanding at a time. The actual send happens on the next tick, launched
// as a goroutine tracked by the stream's thread group so End can cut it
// short.
func (s *Stream) scheduleSend() {
	s.mu.Lock()
	if s.state == StateEnded || s.sendScheduled {
		s.mu.Unlock()
		return
	}
	s.sendScheduled = true
	s.mu.Unlock()

	if err := s.tg.Add(); err != nil {
		return
	}
	go func() {
		defer s.tg.Done()
		s.tick()
	}()
}

// tick is the stream's single cooperative-tick equivalent: it runs the
// retransmission algorithm once, serializing and sending the current frame.
func (s *Stream) tick() {
	s.mu.Lock()
	s.sendScheduled = false

	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}

	s.attempts++
	if s.attempts > s.maxAttempts {
		s.state = StateEnded
		if s.retryTimer != nil {
			s.retryTimer.Stop()
			s.retryTimer = nil
		}
		s.fireCloseLocked(ErrPeerUnreachable)
		s.mu.Unlock()
		return
	}

	ack := s.remoteSeq
	closing := s.state == StateClosing
	pending := append([]pendingItem(nil), s.pending...)
	attempt := s.attempts
	observer := s.sendObserver
	s.mu.Unlock()

	if observer != nil {
		observer(attempt)
	}

	frame, _, err := serializeFrame(s.oracle, ack, pending, closing, maxFramePayload)
	if err != nil {
		if s.log != nil {
			s.log.Printf("stream %s: serialize: %v", s.Remote, err)
		}
		return
	}

	sendErr := s.send(frame)
	if sendErr != nil && s.log != nil {
		s.log.Printf("stream %s: send: %v", s.Remote, sendErr)
	}

	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	if s.state == StateClosing && s.maxAttempts == maxAttemptsRemoteClosed {
		// The peer already closed; this send was the one confirming frame
		// (ack=seqClose) it's waiting for. There's nothing left to retry for,
		// so end now instead of arming a retry that would exhaust into
		// ErrPeerUnreachable on an otherwise orderly close.
		s.state = StateEnded
		if s.retryTimer != nil {
			s.retryTimer.Stop()
			s.retryTimer = nil
		}
		s.fireCloseLocked(nil)
		s.mu.Unlock()
		// tick itself is a goroutine tracked by s.tg (scheduleSend adds it),
		// so stopping the thread group from here has to happen off to the
		// side rather than inline: Stop blocks until every Add'd goroutine
		// calls Done, including this one, which won't happen until tick
		// returns.
		go func() {
			if stopErr := s.tg.Stop(); stopErr != nil && s.log != nil {
				s.log.Printf("stream %s: thread group stop: %v", s.Remote, stopErr)
			}
		}()
		return
	}
	if len(s.pending) > 0 || s.state == StateClosing {
		s.armRetryLocked()
	} else {
		s.attempts = 0
	}
	s.mu.Unlock()
}

// armRetryLocked schedules the next retransmission after the current
// back-off, then grows the back-off towards MaxRetry. Must be called with
// mu held.
func (s *Stream) armRetryLocked() {
	interval := s.retryInterval
	s.retryInterval += RetryStep
	if s.retryInterval > MaxRetry {
		s.retryInterval = MaxRetry
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryTimer = time.AfterFunc(interval, func() {
		s.scheduleSend()
	})
}
