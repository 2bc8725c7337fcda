package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"classhub-gateway/internal/observability"
)

const (
	maxWebhookBody        = 1 << 20
	webhookPublishTimeout = 5 * time.Second
)

var providerPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// WebhookPublisher forwards provider callbacks to the broker.
type WebhookPublisher interface {
	PublishWebhook(ctx context.Context, provider string, payload []byte) error
}

// WebhookHandler accepts third-party callbacks. These arrive without a
// browser session, so the route is CSRF exempt and trust comes from the
// provider's own signature, checked by the consumers.
type WebhookHandler struct {
	publisher WebhookPublisher
}

func NewWebhookHandler(publisher WebhookPublisher) *WebhookHandler {
	return &WebhookHandler{publisher: publisher}
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !providerPattern.MatchString(provider) {
		writeError(w, http.StatusBadRequest, "Unknown provider")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		writeError(w, http.StatusBadRequest, "Body must be a JSON object")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), webhookPublishTimeout)
	defer cancel()

	if err := h.publisher.PublishWebhook(ctx, provider, body); err != nil {
		observability.FromContext(r.Context()).Error("failed to publish webhook",
			slog.String("provider", provider),
			slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "Webhook could not be queued")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
