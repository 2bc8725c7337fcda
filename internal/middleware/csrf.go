package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"classhub-gateway/internal/observability"
	"classhub-gateway/internal/security"
)

// TokenService issues and checks CSRF tokens. *security.TokenManager
// implements it.
type TokenService interface {
	Generate(sessionID string) (string, error)
	Validate(token, sessionID string) error
	ValidatePair(cookieToken, headerToken, sessionID string) error
	MaxAge() time.Duration
}

// FailureRecorder receives rejected requests for auditing. Implementations
// must not block.
type FailureRecorder interface {
	RecordCSRFFailure(r *http.Request, userID string, reason security.Reason)
}

// CSRFOptions configures the CSRF gate.
type CSRFOptions struct {
	CookieName        string
	HeaderName        string
	ExemptPaths       []string
	APIPrefix         string
	InternalKeyHeader string
	InternalKeys      *security.KeySet
	BindSession       bool
	SecureCookie      bool
}

func (o CSRFOptions) withDefaults() CSRFOptions {
	if o.CookieName == "" {
		o.CookieName = "csrf-token"
	}
	if o.HeaderName == "" {
		o.HeaderName = "x-csrf-token"
	}
	if o.APIPrefix == "" {
		o.APIPrefix = "/api/"
	}
	if o.InternalKeyHeader == "" {
		o.InternalKeyHeader = "X-Internal-API-Key"
	}
	return o
}

// Gate decisions, used as metric labels.
const (
	outcomeSafeMethod  = "safe_method"
	outcomeExemptPath  = "exempt_path"
	outcomeInternalKey = "internal_key"
	outcomeValidated   = "validated"
	outcomeRejected    = "rejected"
)

// CSRF enforces the signed double-submit cookie policy.
//
// Per request:
//  1. GET, HEAD and OPTIONS pass. Authenticated GET page navigations (outside
//     the API prefix) without a usable token cookie get a fresh one.
//  2. Canonical paths matching an exempt prefix pass. A path with dot
//     segments or encoded separators is never exempt.
//  3. Requests presenting a configured internal API key pass.
//  4. Everything else must carry identical, valid tokens in the cookie and the
//     header, or is rejected with 403 before reaching next.
//
// The gate expects LoadSession to have run first. recorder may be nil.
func CSRF(tokens TokenService, opts CSRFOptions, recorder FailureRecorder) func(http.Handler) http.Handler {
	opts = opts.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, authenticated := GetSession(r.Context())

			var userID, sessionID string
			if authenticated {
				userID = session.UserID
				if opts.BindSession {
					sessionID = session.ID
				}
			}

			if isSafeMethod(r.Method) {
				observability.CSRFDecisionsTotal.WithLabelValues(outcomeSafeMethod).Inc()
				if r.Method == http.MethodGet && authenticated && isPageNavigation(r, opts) {
					r = ensureToken(w, r, tokens, opts, sessionID)
				}
				next.ServeHTTP(w, r)
				return
			}

			if IsCanonicalPath(r) && isExemptPath(r.URL.Path, opts.ExemptPaths) {
				observability.CSRFDecisionsTotal.WithLabelValues(outcomeExemptPath).Inc()
				next.ServeHTTP(w, r)
				return
			}

			if hasInternalKey(r, opts) {
				observability.CSRFDecisionsTotal.WithLabelValues(outcomeInternalKey).Inc()
				next.ServeHTTP(w, r)
				return
			}

			var cookieToken string
			if c, err := r.Cookie(opts.CookieName); err == nil {
				cookieToken = c.Value
			}
			headerToken := r.Header.Get(opts.HeaderName)

			if err := tokens.ValidatePair(cookieToken, headerToken, sessionID); err != nil {
				reason := security.Classify(err)
				observability.CSRFDecisionsTotal.WithLabelValues(outcomeRejected).Inc()
				observability.CSRFValidationFailures.WithLabelValues(string(reason)).Inc()
				logCSRFFailure(r, userID, reason)
				if recorder != nil {
					recorder.RecordCSRFFailure(r, userID, reason)
				}
				writeCSRFError(w)
				return
			}

			observability.CSRFDecisionsTotal.WithLabelValues(outcomeValidated).Inc()
			next.ServeHTTP(w, r)
		})
	}
}

// ensureToken makes sure the response carries a token that is valid for the
// current session, minting one when the cookie is missing, expired or was
// issued for another session. The token in effect is stored in the request
// context.
func ensureToken(w http.ResponseWriter, r *http.Request, tokens TokenService, opts CSRFOptions, sessionID string) *http.Request {
	if c, err := r.Cookie(opts.CookieName); err == nil && c.Value != "" {
		if tokens.Validate(c.Value, sessionID) == nil {
			return r.WithContext(withCSRFToken(r.Context(), c.Value))
		}
	}

	token, err := tokens.Generate(sessionID)
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to generate CSRF token",
			slog.String("error", err.Error()))
		return r
	}

	IssueCookie(w, opts.CookieName, token, tokens.MaxAge(), opts.SecureCookie)
	observability.CSRFTokensIssued.WithLabelValues("navigation").Inc()

	return r.WithContext(withCSRFToken(r.Context(), token))
}

// isSafeMethod returns true if the HTTP method is idempotent and cacheable.
// These methods should not modify state and don't require CSRF tokens.
func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

// isExemptPath returns true if the request path starts with one of the
// exempt prefixes.
func isExemptPath(path string, exemptPaths []string) bool {
	for _, exemptPath := range exemptPaths {
		if strings.HasPrefix(path, exemptPath) {
			return true
		}
	}
	return false
}

// isPageNavigation reports whether the request is a browser page load that
// should leave with a token cookie.
func isPageNavigation(r *http.Request, opts CSRFOptions) bool {
	path := r.URL.Path
	if strings.HasPrefix(path, opts.APIPrefix) || isExemptPath(path, opts.ExemptPaths) {
		return false
	}
	return !hasInternalKey(r, opts)
}

func hasInternalKey(r *http.Request, opts CSRFOptions) bool {
	if opts.InternalKeys.Len() == 0 {
		return false
	}
	return opts.InternalKeys.Contains(r.Header.Get(opts.InternalKeyHeader))
}

// logCSRFFailure logs a security event when CSRF validation fails.
// The reason stays server-side.
func logCSRFFailure(r *http.Request, userID string, reason security.Reason) {
	observability.FromContext(r.Context()).Warn("CSRF validation failed",
		slog.String("user_id", userID),
		slog.String("reason", string(reason)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)
}
