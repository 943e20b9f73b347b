package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/mqttlog/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttlog/internal/journal"
	"github.com/nerrad567/mqttlog/internal/sink"
)

// MessageView is a journal entry as served by the API. Payload is the
// same text that went into the log file.
type MessageView struct {
	journal.Entry
	Payload string `json:"payload"`
}

// handleMessages returns the newest journaled messages.
//
// Query parameters:
//   - limit: number of entries, default journal.DefaultLimit, capped at journal.MaxLimit
//   - topic: exact topic to filter on
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "journal is disabled")
		return
	}

	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	topic := q.Get("topic")
	if topic != "" {
		if err := mqtt.ValidateTopic(topic); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	entries, err := s.journal.Recent(r.Context(), topic, limit)
	if err != nil {
		s.logger.Error("reading journal failed", "error", err)
		writeInternalError(w, "failed to read journal")
		return
	}

	views := make([]MessageView, len(entries))
	for i, e := range entries {
		e.ReceivedAt = e.ReceivedAt.UTC()
		views[i] = MessageView{Entry: e, Payload: sink.DecodePayload(e.Payload)}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages":  views,
		"count":     len(views),
		"limit":     journal.ClampLimit(limit),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
