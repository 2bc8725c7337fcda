package security

import "errors"

// Reason is the telemetry label for a failed CSRF check. It is written to
// logs, metrics and audit events only, never to responses.
type Reason string

const (
	ReasonMissingToken   Reason = "missing_token"
	ReasonInvalidToken   Reason = "invalid_token"
	ReasonExpiredToken   Reason = "expired_token"
	ReasonInvalidSession Reason = "invalid_session"
	ReasonUnknown        Reason = "unknown"
)

// Classify maps a validation error to its Reason.
func Classify(err error) Reason {
	switch {
	case errors.Is(err, ErrMissingToken):
		return ReasonMissingToken
	case errors.Is(err, ErrExpiredToken):
		return ReasonExpiredToken
	case errors.Is(err, ErrInvalidSession):
		return ReasonInvalidSession
	case errors.Is(err, ErrInvalidToken):
		return ReasonInvalidToken
	default:
		return ReasonUnknown
	}
}
