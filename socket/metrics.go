package socket

import "github.com/docker/go-metrics"

// socketNamespace is the prometheus namespace all Socket instances in this
// process report under.
var socketNamespace = metrics.NewNamespace("udp", "socket", nil)

// namespaceMetrics holds the counters a Socket increments as it moves
// datagrams; registered once per process via init, shared by every Socket.
type namespaceMetrics struct {
	generalSent     metrics.Counter
	generalReceived metrics.Counter
	streamSent      metrics.Counter
	streamReceived  metrics.Counter
}

var (
	generalSentCounter     = socketNamespace.NewCounter("general_sent_total", "connectionless datagrams sent")
	generalReceivedCounter = socketNamespace.NewCounter("general_received_total", "connectionless datagrams received")
	streamSentCounter      = socketNamespace.NewCounter("stream_sent_total", "stream frames sent")
	streamReceivedCounter  = socketNamespace.NewCounter("stream_received_total", "stream items received")
)

func init() {
	metrics.Register(socketNamespace)
}

func newNamespaceMetrics() *namespaceMetrics {
	return &namespaceMetrics{
		generalSent:     generalSentCounter,
		generalReceived: generalReceivedCounter,
		streamSent:      streamSentCounter,
		streamReceived:  streamReceivedCounter,
	}
}
