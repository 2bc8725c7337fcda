package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"classhub-gateway/internal/domain"
	"classhub-gateway/internal/observability"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	SessionKey   contextKey = "session"
	CSRFTokenKey contextKey = "csrf_token"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "session_id"

// LoadSession resolves the session cookie, when present, and stores the
// session in the request context. Requests without a valid session pass
// through unauthenticated; use RequireSession to reject them.
func LoadSession(sessionRepo domain.SessionRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := sessionRepo.GetByToken(r.Context(), cookie.Value)
			if err != nil {
				if !errors.Is(err, domain.ErrSessionNotFound) && !errors.Is(err, domain.ErrSessionExpired) {
					slog.Error("session lookup failed", slog.String("error", err.Error()))
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithSession(r.Context(), session)
			ctx = observability.WithUserID(ctx, session.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects requests that LoadSession did not authenticate.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSession(r.Context()); !ok {
			writeJSONError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

func GetSession(ctx context.Context) (*domain.Session, bool) {
	session, ok := ctx.Value(SessionKey).(*domain.Session)
	return session, ok && session != nil
}

// WithSession stores the session and its user id in ctx.
func WithSession(ctx context.Context, session *domain.Session) context.Context {
	ctx = context.WithValue(ctx, SessionKey, session)
	return context.WithValue(ctx, UserIDKey, session.UserID)
}

// CSRFTokenFromContext returns the token the CSRF gate issued or accepted for
// this page load, for embedding in rendered pages.
func CSRFTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(CSRFTokenKey).(string)
	return token
}

func withCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, CSRFTokenKey, token)
}
