package socket

import (
	"encoding/json"
	"net/http"

	"github.com/docker/go-metrics"
	"github.com/gorilla/mux"
)

// streamsReport is what DebugHandler's /debug/streams route returns: a
// point-in-time snapshot of the socket's routing tables and traffic
// counters, useful when wiring a socket into a larger service's own debug
// mux.
type streamsReport struct {
	ID              string   `json:"id"`
	ServerMode      bool     `json:"server_mode"`
	Closing         bool     `json:"closing"`
	LiveStreams     int      `json:"live_streams"`
	ServerStreams   []string `json:"server_streams"`
	PendingAccepts  []string `json:"pending_accepts"`
	HasClientStream bool     `json:"has_client_stream"`
	GeneralHandlers int      `json:"general_handlers"`
	ConnectHandlers int      `json:"connect_handlers"`
	StreamHandlers  int      `json:"stream_handlers"`
	Stats           Stats    `json:"stats"`
}

func (s *Socket) streamsSnapshot() streamsReport {
	s.mu.RLock()
	report := streamsReport{
		ID:              s.ID.String(),
		ServerMode:      s.serverMode,
		Closing:         s.closing,
		LiveStreams:     s.liveStreams,
		HasClientStream: s.clientStream != nil,
		GeneralHandlers: len(s.generalHandlers),
		ConnectHandlers: len(s.connectHandlers),
		StreamHandlers:  len(s.streamHandlers),
	}
	for remote := range s.serverStreams {
		report.ServerStreams = append(report.ServerStreams, remote)
	}
	for remote := range s.pendingAccepts {
		report.PendingAccepts = append(report.PendingAccepts, remote)
	}
	s.mu.RUnlock()

	report.Stats = s.Stats()
	return report
}

// DebugHandler returns an http.Handler exposing the socket's internal
// routing state and traffic counters at /debug/streams and the process's
// prometheus metrics (including this socket's counters) at /metrics, for
// embedding into a host application's own debug server.
func (s *Socket) DebugHandler() http.Handler {
	router := mux.NewRouter()
	router.Path("/debug/streams").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.streamsSnapshot())
	})
	router.Path("/metrics").Handler(metrics.Handler())
	return router
}
