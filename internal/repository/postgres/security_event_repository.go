package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"classhub-gateway/internal/domain"
)

const (
	securityEventInsertQuery = `
		INSERT INTO security_events (kind, reason, method, path, remote_addr, user_id, request_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	securityEventCountQuery = `
		SELECT reason, COUNT(*)
		FROM security_events
		WHERE kind = $1 AND occurred_at >= $2
		GROUP BY reason`

	securityEventDeleteOlderQuery = `DELETE FROM security_events WHERE occurred_at < $1`
)

// SecurityEventRepository stores the audit trail of CSRF decisions.
type SecurityEventRepository struct {
	db *sql.DB
	tx *TxManager
}

func NewSecurityEventRepository(db *sql.DB) *SecurityEventRepository {
	return &SecurityEventRepository{db: db, tx: NewTxManager(db)}
}

func (r *SecurityEventRepository) Create(ctx context.Context, event *domain.SecurityEvent) error {
	err := r.db.QueryRowContext(ctx, securityEventInsertQuery, eventArgs(event)...).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to create security event: %w", err)
	}
	return nil
}

// CreateBatch stores events atomically: either all rows are written or none.
// A row the database refuses for its content fails the batch with
// domain.ErrInvalidEvent.
func (r *SecurityEventRepository) CreateBatch(ctx context.Context, events []*domain.SecurityEvent) error {
	if len(events) == 0 {
		return nil
	}

	return r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, securityEventInsertQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare security event insert: %w", err)
		}
		defer stmt.Close()

		for i, event := range events {
			if err := stmt.QueryRowContext(ctx, eventArgs(event)...).Scan(&event.ID); err != nil {
				if IsDataException(err) {
					return fmt.Errorf("failed to insert security event %d of %d: %w: %w", i+1, len(events), domain.ErrInvalidEvent, err)
				}
				return fmt.Errorf("failed to insert security event %d of %d: %w", i+1, len(events), err)
			}
		}
		return nil
	})
}

// CountByReasonSince tallies CSRF rejections per reason from since onwards.
func (r *SecurityEventRepository) CountByReasonSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, securityEventCountQuery, domain.EventCSRFRejected, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count security events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			reason string
			n      int64
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("failed to scan security event count: %w", err)
		}
		counts[reason] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate security event counts: %w", err)
	}

	return counts, nil
}

func (r *SecurityEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, securityEventDeleteOlderQuery, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete security events: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}

func eventArgs(e *domain.SecurityEvent) []any {
	return []any{
		e.Kind,
		e.Reason,
		e.Method,
		e.Path,
		e.RemoteAddr,
		sql.NullString{String: e.UserID, Valid: e.UserID != ""},
		e.RequestID,
		e.OccurredAt,
	}
}
