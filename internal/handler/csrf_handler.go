package handler

import (
	"log/slog"
	"net/http"

	"classhub-gateway/internal/middleware"
	"classhub-gateway/internal/observability"
)

// CSRFTokenResponse is returned by the bootstrap endpoint.
type CSRFTokenResponse struct {
	Token     string `json:"token"`
	Header    string `json:"header"`
	ExpiresIn int64  `json:"expires_in"`
}

// CSRFHandler hands tokens to clients that cannot pick them up from a page
// load, such as SPAs and the mobile app.
type CSRFHandler struct {
	tokens  middleware.TokenService
	cookies CookieSettings
}

func NewCSRFHandler(tokens middleware.TokenService, cookies CookieSettings) *CSRFHandler {
	return &CSRFHandler{tokens: tokens, cookies: cookies}
}

// Token mints a token for the caller's session, or an unbound one for
// anonymous callers, and sets it as the CSRF cookie.
func (h *CSRFHandler) Token(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	if session, ok := middleware.GetSession(r.Context()); ok && h.cookies.BindSession {
		sessionID = session.ID
	}

	token, err := h.tokens.Generate(sessionID)
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to generate CSRF token", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	middleware.IssueCookie(w, h.cookies.CSRFCookieName, token, h.tokens.MaxAge(), h.cookies.Secure)
	observability.CSRFTokensIssued.WithLabelValues("bootstrap").Inc()

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, CSRFTokenResponse{
		Token:     token,
		Header:    h.cookies.CSRFHeaderName,
		ExpiresIn: int64(h.tokens.MaxAge().Seconds()),
	})
}
