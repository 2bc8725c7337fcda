// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the classhub gateway.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"classhub-gateway/internal/domain"
)

var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockUnavailable    = errors.New("mock: unavailable")
)

// MockUserRepository implements domain.UserRepository for testing
type MockUserRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	CreateFunc        func(ctx context.Context, user *domain.User) error
	GetByIDFunc       func(ctx context.Context, id string) (*domain.User, error)
	GetByUsernameFunc func(ctx context.Context, username string) (*domain.User, error)
	GetByEmailFunc    func(ctx context.Context, email string) (*domain.User, error)

	Users map[string]*domain.User
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[string]*domain.User),
	}
}

// AddUser stores user directly, bypassing duplicate checks.
func (m *MockUserRepository) AddUser(user *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[user.ID] = user
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.Users {
		if u.Username == user.Username {
			return domain.ErrUsernameExists
		}
		if u.Email == user.Email {
			return domain.ErrEmailExists
		}
	}

	if user.ID == "" {
		user.ID = "user-" + user.Username
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	m.Users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.Users[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// MockSessionRepository implements domain.SessionRepository for testing.
// Sessions are keyed by token.
type MockSessionRepository struct {
	mu sync.RWMutex

	CreateFunc        func(ctx context.Context, session *domain.Session) error
	GetByTokenFunc    func(ctx context.Context, token string) (*domain.Session, error)
	DeleteFunc        func(ctx context.Context, token string) error
	DeleteExpiredFunc func(ctx context.Context) (int64, error)

	Sessions map[string]*domain.Session
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		Sessions: make(map[string]*domain.Session),
	}
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.ID == "" {
		session.ID = "session-" + session.Token
	}
	m.Sessions[session.Token] = session
	return nil
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if session, ok := m.Sessions[token]; ok {
		if session.IsExpired(time.Now()) {
			return nil, domain.ErrSessionExpired
		}
		return session, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (m *MockSessionRepository) Delete(ctx context.Context, token string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Sessions, token)
	return nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	now := time.Now()
	for token, session := range m.Sessions {
		if session.IsExpired(now) {
			delete(m.Sessions, token)
			count++
		}
	}
	return count, nil
}

// MockSecurityEventRepository implements domain.SecurityEventRepository for testing
type MockSecurityEventRepository struct {
	mu sync.RWMutex

	CreateFunc             func(ctx context.Context, event *domain.SecurityEvent) error
	CountByReasonSinceFunc func(ctx context.Context, since time.Time) (map[string]int64, error)

	Events []*domain.SecurityEvent
}

func NewMockSecurityEventRepository() *MockSecurityEventRepository {
	return &MockSecurityEventRepository{}
}

func (m *MockSecurityEventRepository) Create(ctx context.Context, event *domain.SecurityEvent) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Events = append(m.Events, event)
	return nil
}

func (m *MockSecurityEventRepository) CountByReasonSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	if m.CountByReasonSinceFunc != nil {
		return m.CountByReasonSinceFunc(ctx, since)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for _, e := range m.Events {
		if !e.OccurredAt.Before(since) {
			counts[e.Reason]++
		}
	}
	return counts, nil
}

func (m *MockSecurityEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.Events[:0]
	var removed int64
	for _, e := range m.Events {
		if e.OccurredAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.Events = kept
	return removed, nil
}

// Stored returns a copy of the stored events.
func (m *MockSecurityEventRepository) Stored() []*domain.SecurityEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.SecurityEvent{}, m.Events...)
}

// MockPublisher records messages that would go to RabbitMQ.
// It satisfies the publisher interfaces of the audit service and the
// webhook handler.
type MockPublisher struct {
	mu sync.RWMutex

	PublishSecurityEventFunc func(ctx context.Context, event *domain.SecurityEvent) error
	PublishWebhookFunc       func(ctx context.Context, provider string, payload []byte) error

	SecurityEvents []*domain.SecurityEvent
	Webhooks       []WebhookCall
}

// WebhookCall records a call to PublishWebhook
type WebhookCall struct {
	Provider string
	Payload  []byte
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishSecurityEvent(ctx context.Context, event *domain.SecurityEvent) error {
	if m.PublishSecurityEventFunc != nil {
		return m.PublishSecurityEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SecurityEvents = append(m.SecurityEvents, event)
	return nil
}

func (m *MockPublisher) PublishWebhook(ctx context.Context, provider string, payload []byte) error {
	if m.PublishWebhookFunc != nil {
		return m.PublishWebhookFunc(ctx, provider, payload)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Webhooks = append(m.Webhooks, WebhookCall{Provider: provider, Payload: payload})
	return nil
}

// GetSecurityEvents returns all recorded security events
func (m *MockPublisher) GetSecurityEvents() []*domain.SecurityEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.SecurityEvent{}, m.SecurityEvents...)
}

// GetWebhookCalls returns all recorded webhook publications
func (m *MockPublisher) GetWebhookCalls() []WebhookCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]WebhookCall{}, m.Webhooks...)
}
