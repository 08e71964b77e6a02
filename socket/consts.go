package socket

import (
	"time"

	"github.com/pSapien/udp/build"
)

const (
	tagGeneral byte = 0
	tagStream  byte = 1
)

// maxDatagramSize bounds a single read off the transport. It comfortably
// exceeds maxFramePayload plus the tag byte and ack/trailer overhead the
// stream package adds.
const maxDatagramSize = 2048

// acceptTimeout bounds how long a registered connect handler may take to
// resolve before the provisional stream is abandoned. Operational, not wire
// protocol, so it is gated behind build.Select rather than fixed.
var acceptTimeout = build.Select(build.Var{
	Standard: 30 * time.Second,
	Dev:      10 * time.Second,
	Testing:  2 * time.Second,
}).(time.Duration)
