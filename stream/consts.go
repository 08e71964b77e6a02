package stream

import "time"

// Sequence space reserved values. Sequence numbers are assigned starting
// at 1; 0 terminates an item list and 0xFFFF is the close sentinel.
const (
	seqTerminator uint16 = 0
	seqClose      uint16 = 0xFFFF
)

// Retry back-off, fixed by the protocol itself rather than gated behind
// build.Select: these numbers are part of the wire protocol's observable
// behavior, not an operational tuning knob.
const (
	// MinRetry is the initial and minimum back-off between retransmissions.
	MinRetry = 500 * time.Millisecond
	// MaxRetry is the back-off ceiling.
	MaxRetry = 3000 * time.Millisecond
	// RetryStep is how much the back-off grows after each retransmission.
	RetryStep = 500 * time.Millisecond
)

// max_attempts tiers: how many consecutive unacked sends a stream tolerates
// before giving up, varying by state.
const (
	// maxAttemptsOpen is the number of consecutive unacked sends tolerated
	// while the stream is fully open.
	maxAttemptsOpen = 10
	// maxAttemptsClosing is the reduced tolerance once a local close() has
	// been requested.
	maxAttemptsClosing = 5
	// maxAttemptsRemoteClosed is the tolerance for the single confirmation
	// round-trip after observing a remote-initiated close.
	maxAttemptsRemoteClosed = 1
)

// maxFramePayload bounds how many bytes of pending items serializeFrame
// will pack into a single outbound frame before truncating (mark/revert
// discipline). This mirrors a UDP-safe payload size: comfortably under the
// common 1500-byte Ethernet MTU once the IP/UDP headers and the one-byte
// socket tag are accounted for.
const maxFramePayload = 1400
