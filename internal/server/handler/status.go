package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/pegbot/internal/bot"
)

// StatsSource lists the running bots' counters.
type StatsSource interface {
	Stats() []bot.Stats
}

// StatusHandler reports the process mode and every bot's counters.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	bots      StatsSource
}

// NewStatusHandler creates a StatusHandler. bots may be nil in server-only
// mode.
func NewStatusHandler(mode string, startedAt time.Time, bots StatsSource) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, bots: bots}
}

// GetStatus responds with the mode, uptime and bot stats.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	stats := []bot.Stats{}
	if h.bots != nil {
		stats = h.bots.Stats()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"bots":           stats,
	})
}
