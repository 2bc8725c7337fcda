package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"classhub-gateway/internal/observability"
)

const (
	defaultSummaryWindow = 24 * time.Hour
	maxSummaryWindow     = 90 * 24 * time.Hour
	summaryCacheTTL      = 30 * time.Second
)

// FailureCounter is the read side of the security event store.
type FailureCounter interface {
	CountByReasonSince(ctx context.Context, since time.Time) (map[string]int64, error)
}

// FailureSummary counts CSRF rejections per reason since a point in time.
type FailureSummary struct {
	Since   time.Time        `json:"since"`
	Reasons map[string]int64 `json:"reasons"`
}

// SecurityHandler serves the internal CSRF failure report. Dashboards poll
// it, so summaries are cached briefly per window.
type SecurityHandler struct {
	events FailureCounter
	cache  *cache.Cache
	now    func() time.Time
}

func NewSecurityHandler(events FailureCounter) *SecurityHandler {
	return &SecurityHandler{
		events: events,
		cache:  cache.New(summaryCacheTTL, 2*summaryCacheTTL),
		now:    time.Now,
	}
}

// CSRFFailures answers GET /api/internal/security/csrf-failures?since=24h.
func (h *SecurityHandler) CSRFFailures(w http.ResponseWriter, r *http.Request) {
	window := defaultSummaryWindow
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxSummaryWindow {
			writeError(w, http.StatusBadRequest, "since must be a duration between 0 and 2160h")
			return
		}
		window = d
	}

	key := window.String()
	if cached, ok := h.cache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	since := h.now().UTC().Add(-window)
	counts, err := h.events.CountByReasonSince(r.Context(), since)
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to count CSRF failures", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to load summary")
		return
	}
	if counts == nil {
		counts = map[string]int64{}
	}

	summary := FailureSummary{Since: since, Reasons: counts}
	h.cache.SetDefault(key, summary)

	writeJSON(w, http.StatusOK, summary)
}
