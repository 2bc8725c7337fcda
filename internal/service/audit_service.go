package service

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"classhub-gateway/internal/domain"
	"classhub-gateway/internal/observability"
	"classhub-gateway/internal/security"
)

// SecurityEventPublisher ships audit events to the broker.
type SecurityEventPublisher interface {
	PublishSecurityEvent(ctx context.Context, event *domain.SecurityEvent) error
}

// Drop causes, used as metric labels.
const (
	dropBufferFull   = "buffer_full"
	dropPublishError = "publish_error"
)

// AuditService turns CSRF rejections into security events and publishes them
// off the request path. When the buffer is full new events are dropped and
// counted rather than stalling requests.
type AuditService struct {
	publisher      SecurityEventPublisher
	events         chan *domain.SecurityEvent
	publishTimeout time.Duration
	now            func() time.Time
}

func NewAuditService(publisher SecurityEventPublisher, bufferSize int) *AuditService {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &AuditService{
		publisher:      publisher,
		events:         make(chan *domain.SecurityEvent, bufferSize),
		publishTimeout: 5 * time.Second,
		now:            time.Now,
	}
}

// RecordCSRFFailure queues an audit event for a rejected request. It never
// blocks.
func (s *AuditService) RecordCSRFFailure(r *http.Request, userID string, reason security.Reason) {
	event := &domain.SecurityEvent{
		Kind:       domain.EventCSRFRejected,
		Reason:     string(reason),
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: remoteIP(r.RemoteAddr),
		UserID:     userID,
		RequestID:  chimiddleware.GetReqID(r.Context()),
		OccurredAt: s.now().UTC(),
	}
	event.Normalize()

	select {
	case s.events <- event:
	default:
		observability.AuditEventsDropped.WithLabelValues(dropBufferFull).Inc()
		observability.FromContext(r.Context()).Warn("audit buffer full, dropping security event",
			slog.String("reason", event.Reason))
	}
}

// Run publishes queued events until ctx is cancelled, then publishes
// whatever is still buffered before returning.
func (s *AuditService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case event := <-s.events:
			s.publish(ctx, event)
		}
	}
}

func (s *AuditService) drain() {
	// The parent context is done; each publish gets its own deadline.
	for {
		select {
		case event := <-s.events:
			s.publish(context.Background(), event)
		default:
			return
		}
	}
}

func (s *AuditService) publish(ctx context.Context, event *domain.SecurityEvent) {
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	if err := s.publisher.PublishSecurityEvent(ctx, event); err != nil {
		observability.AuditEventsDropped.WithLabelValues(dropPublishError).Inc()
		slog.Error("failed to publish security event",
			slog.String("reason", event.Reason),
			slog.String("request_id", event.RequestID),
			slog.String("error", err.Error()))
		return
	}
	observability.AuditEventsPublished.Inc()
}

// Pending returns the number of events waiting to be published.
func (s *AuditService) Pending() int {
	return len(s.events)
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
