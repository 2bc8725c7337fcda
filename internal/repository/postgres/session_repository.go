package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classhub-gateway/internal/domain"
)

const (
	sessionCreateQuery = `
		INSERT INTO sessions (user_id, role, token, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	sessionGetByTokenQuery = `
		SELECT id, user_id, role, token, expires_at, created_at
		FROM sessions
		WHERE token = $1 AND expires_at > $2`

	sessionDeleteQuery        = `DELETE FROM sessions WHERE token = $1`
	sessionDeleteExpiredQuery = `DELETE FROM sessions WHERE expires_at <= $1`
)

// SessionRepository stores login sessions. Session ids double as the value
// CSRF tokens are bound to, so they are never reused.
type SessionRepository struct {
	db                *sql.DB
	createStmt        *sql.Stmt
	getByTokenStmt    *sql.Stmt
	deleteStmt        *sql.Stmt
	deleteExpiredStmt *sql.Stmt
	now               func() time.Time
}

// NewSessionRepository creates a new SessionRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewSessionRepository(db *sql.DB) (*SessionRepository, error) {
	repo := &SessionRepository{db: db, now: time.Now}

	stmts := []struct {
		name  string
		query string
		dst   **sql.Stmt
	}{
		{"create", sessionCreateQuery, &repo.createStmt},
		{"getByToken", sessionGetByTokenQuery, &repo.getByTokenStmt},
		{"delete", sessionDeleteQuery, &repo.deleteStmt},
		{"deleteExpired", sessionDeleteExpiredQuery, &repo.deleteExpiredStmt},
	}

	for _, s := range stmts {
		stmt, err := db.Prepare(s.query)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to prepare %s statement: %w", s.name, err)
		}
		*s.dst = stmt
	}

	return repo, nil
}

// Close releases the prepared statements.
func (r *SessionRepository) Close() {
	for _, stmt := range []*sql.Stmt{r.createStmt, r.getByTokenStmt, r.deleteStmt, r.deleteExpiredStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	err := r.createStmt.QueryRowContext(ctx,
		session.UserID,
		session.Role,
		session.Token,
		session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByToken returns the unexpired session for token, or
// domain.ErrSessionNotFound.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	session := &domain.Session{}
	err := r.getByTokenStmt.QueryRowContext(ctx, token, r.now()).Scan(
		&session.ID,
		&session.UserID,
		&session.Role,
		&session.Token,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by token: %w", err)
	}
	return session, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.deleteStmt.ExecContext(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.deleteExpiredStmt.ExecContext(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}
