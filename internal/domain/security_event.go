package domain

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalidEvent marks an event storage rejected for its content. Retrying
// it unchanged cannot succeed.
var ErrInvalidEvent = errors.New("invalid security event")

// Security event kinds.
const (
	EventCSRFRejected = "csrf.rejected"
	EventCSRFIssued   = "csrf.issued"
)

// SecurityEvent is an audit record of a security decision taken by the gateway.
type SecurityEvent struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Reason     string    `json:"reason,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	RemoteAddr string    `json:"remote_addr"`
	UserID     string    `json:"user_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Column widths of security_events.
const (
	maxKindLen       = 32
	maxReasonLen     = 32
	maxMethodLen     = 10
	maxPathLen       = 2048
	maxRemoteAddrLen = 64
	maxRequestIDLen  = 128
)

// MethodOther stands in for request methods outside the standard set.
const MethodOther = "OTHER"

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodConnect: true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// Normalize fits the client-controlled fields into their storage columns:
// unknown methods become MethodOther, text is made valid UTF-8 without NUL
// bytes, and over-long values are cut on a rune boundary.
func (e *SecurityEvent) Normalize() {
	if !knownMethods[e.Method] {
		e.Method = MethodOther
	}
	e.Kind = clip(e.Kind, maxKindLen)
	e.Reason = clip(e.Reason, maxReasonLen)
	e.Path = clip(e.Path, maxPathLen)
	e.RemoteAddr = clip(e.RemoteAddr, maxRemoteAddrLen)
	e.RequestID = clip(e.RequestID, maxRequestIDLen)
}

func clip(s string, maxRunes int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes])
}

// SecurityEventRepository persists audit events.
type SecurityEventRepository interface {
	Create(ctx context.Context, event *SecurityEvent) error
	CountByReasonSince(ctx context.Context, since time.Time) (map[string]int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
