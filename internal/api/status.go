package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/nerrad567/mqttlog/internal/dispatch"
	"github.com/nerrad567/mqttlog/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttlog/internal/sink"
	"github.com/nerrad567/mqttlog/internal/subscription"
)

// healthCheckTimeout bounds each component probe.
const healthCheckTimeout = 2 * time.Second

// Status is the document served by /api/v1/status.
type Status struct {
	Timestamp     string                      `json:"timestamp"`
	Version       string                      `json:"version"`
	UptimeSeconds int64                       `json:"uptime_seconds"`
	Session       *SessionStatus              `json:"session,omitempty"`
	Subscriptions []subscription.Subscription `json:"subscriptions,omitempty"`
	Dispatch      *dispatch.Stats             `json:"dispatch,omitempty"`
	Sink          *sink.Stats                 `json:"sink,omitempty"`
	Journal       *JournalStatus              `json:"journal,omitempty"`
	WebSocket     WSStatus                    `json:"websocket"`
	Runtime       RuntimeStatus               `json:"runtime"`
}

// SessionStatus describes the broker session.
type SessionStatus struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	ClientID  string `json:"client_id"`
	Broker    string `json:"broker"`
}

// JournalStatus reports the journal size.
type JournalStatus struct {
	Entries int64  `json:"entries"`
	Error   string `json:"error,omitempty"`
}

// WSStatus contains feed hub statistics.
type WSStatus struct {
	ConnectedClients int `json:"connected_clients"`
}

// RuntimeStatus contains Go runtime statistics.
type RuntimeStatus struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// HealthResponse is the document served by /api/v1/health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleHealth probes every registered component. Any failure answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: s.version}
	code := http.StatusOK

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.checks[name].HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, code, resp)
}

// handleStatus returns a snapshot of every wired component.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := Status{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		WebSocket:     WSStatus{ConnectedClients: s.hub.ClientCount()},
		Runtime: RuntimeStatus{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
			NumGC:         mem.NumGC,
		},
	}

	if s.session != nil {
		state := s.session.State()
		st.Session = &SessionStatus{
			State:     state.String(),
			Connected: state == mqtt.StateConnected,
			ClientID:  s.session.ClientID(),
			Broker:    s.session.BrokerAddress(),
		}
	}
	if s.subscriptions != nil {
		st.Subscriptions = s.subscriptions.Subscriptions()
	}
	if s.dispatcher != nil {
		stats := s.dispatcher.Stats()
		st.Dispatch = &stats
	}
	if s.sink != nil {
		stats := s.sink.Stats()
		st.Sink = &stats
	}
	if s.journal != nil {
		js := &JournalStatus{}
		n, err := s.journal.Count(r.Context())
		if err != nil {
			js.Error = err.Error()
		}
		js.Entries = n
		st.Journal = js
	}

	writeJSON(w, http.StatusOK, st)
}

// handleSubscriptions lists the desired subscriptions and whether each is
// active in the current session.
func (s *Server) handleSubscriptions(w http.ResponseWriter, _ *http.Request) {
	if s.subscriptions == nil {
		writeNotFound(w, "subscriptions unavailable")
		return
	}
	subs := s.subscriptions.Subscriptions()
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": subs,
		"count":         len(subs),
	})
}
