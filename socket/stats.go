package socket

// Stats is a point-in-time snapshot of a Socket's traffic counters. It backs
// both the CLI's stats command and the /debug/streams HTTP endpoint; the
// docker/go-metrics counters in metrics.go cover Prometheus exposition but
// are write-only from the application's side, so these fields are tracked
// separately under the Socket's own mutex.
type Stats struct {
	DatagramsSent     uint64
	DatagramsReceived uint64
	BytesSent         uint64
	BytesReceived     uint64
	StreamsOpen       int
	StreamsEnded      uint64
	RetransmitCount   uint64
}

// Stats returns a snapshot of the socket's traffic counters.
func (s *Socket) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		DatagramsSent:     s.datagramsSent,
		DatagramsReceived: s.datagramsReceived,
		BytesSent:         s.bytesSent,
		BytesReceived:     s.bytesReceived,
		StreamsOpen:       s.liveStreams,
		StreamsEnded:      s.streamsEnded,
		RetransmitCount:   s.retransmits,
	}
}
