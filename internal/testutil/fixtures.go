package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"classhub-gateway/internal/domain"
)

var idCounter atomic.Int64

func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID           string
	Username     string
	Email        string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
}

// NewTestUser creates a learner account with sensible defaults.
// Pass options to override specific fields
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	o := &UserOptions{
		ID:           nextID("user"),
		Username:     fmt.Sprintf("learner%d", idCounter.Load()),
		Role:         domain.RoleLearner,
		PasswordHash: "$2a$10$test.hash.for.testing.purposes.only",
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Email == "" {
		o.Email = o.Username + "@classhub.test"
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	return &domain.User{
		ID:           o.ID,
		Username:     o.Username,
		Email:        o.Email,
		Role:         o.Role,
		PasswordHash: o.PasswordHash,
		CreatedAt:    o.CreatedAt,
	}
}

func WithUserID(id string) func(*UserOptions) {
	return func(o *UserOptions) { o.ID = id }
}

func WithUsername(username string) func(*UserOptions) {
	return func(o *UserOptions) { o.Username = username }
}

func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) { o.Email = email }
}

// WithRole sets the platform role (learner, parent, teacher, admin)
func WithRole(role string) func(*UserOptions) {
	return func(o *UserOptions) { o.Role = role }
}

func WithPasswordHash(hash string) func(*UserOptions) {
	return func(o *UserOptions) { o.PasswordHash = hash }
}

// SessionOptions allows customizing session fixture creation
type SessionOptions struct {
	ID        string
	UserID    string
	Role      string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewTestSession creates a session valid for the next 24 hours.
func NewTestSession(opts ...func(*SessionOptions)) *domain.Session {
	o := &SessionOptions{
		ID:        nextID("session"),
		UserID:    nextID("user"),
		Role:      domain.RoleLearner,
		Token:     nextID("token"),
		ExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return &domain.Session{
		ID:        o.ID,
		UserID:    o.UserID,
		Role:      o.Role,
		Token:     o.Token,
		ExpiresAt: o.ExpiresAt,
		CreatedAt: o.CreatedAt,
	}
}

func WithSessionID(id string) func(*SessionOptions) {
	return func(o *SessionOptions) { o.ID = id }
}

func WithSessionUserID(userID string) func(*SessionOptions) {
	return func(o *SessionOptions) { o.UserID = userID }
}

func WithSessionRole(role string) func(*SessionOptions) {
	return func(o *SessionOptions) { o.Role = role }
}

func WithToken(token string) func(*SessionOptions) {
	return func(o *SessionOptions) { o.Token = token }
}

func WithExpiresAt(t time.Time) func(*SessionOptions) {
	return func(o *SessionOptions) { o.ExpiresAt = t }
}

// WithExpired creates a session that expired an hour ago
func WithExpired() func(*SessionOptions) {
	return func(o *SessionOptions) { o.ExpiresAt = time.Now().Add(-1 * time.Hour) }
}

// EventOptions allows customizing security event fixture creation
type EventOptions struct {
	Kind       string
	Reason     string
	Method     string
	Path       string
	UserID     string
	OccurredAt time.Time
}

// NewTestSecurityEvent creates a rejected-request audit event.
func NewTestSecurityEvent(opts ...func(*EventOptions)) *domain.SecurityEvent {
	o := &EventOptions{
		Kind:       domain.EventCSRFRejected,
		Reason:     "invalid_token",
		Method:     "POST",
		Path:       "/api/lessons",
		OccurredAt: time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return &domain.SecurityEvent{
		ID:         nextID("event"),
		Kind:       o.Kind,
		Reason:     o.Reason,
		Method:     o.Method,
		Path:       o.Path,
		RemoteAddr: "192.0.2.10:51234",
		UserID:     o.UserID,
		RequestID:  nextID("req"),
		OccurredAt: o.OccurredAt,
	}
}

func WithEventReason(reason string) func(*EventOptions) {
	return func(o *EventOptions) { o.Reason = reason }
}

func WithEventUserID(userID string) func(*EventOptions) {
	return func(o *EventOptions) { o.UserID = userID }
}

func WithOccurredAt(t time.Time) func(*EventOptions) {
	return func(o *EventOptions) { o.OccurredAt = t }
}

// NewTestUsers creates multiple test users
func NewTestUsers(count int) []*domain.User {
	users := make([]*domain.User, count)
	for i := 0; i < count; i++ {
		users[i] = NewTestUser()
	}
	return users
}
