package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"classhub-gateway/internal/domain"
)

// SessionTTL is the lifetime of a login session.
const SessionTTL = 24 * time.Hour

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// Login compares against this hash when the username is unknown so both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("classhub-placeholder-password"), bcrypt.DefaultCost)

type AuthService struct {
	userRepo    domain.UserRepository
	sessionRepo domain.SessionRepository
	hashCost    int
	now         func() time.Time
}

func NewAuthService(userRepo domain.UserRepository, sessionRepo domain.SessionRepository) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		hashCost:    12,
		now:         time.Now,
	}
}

// WithHashCost sets the bcrypt cost used for new passwords.
func (s *AuthService) WithHashCost(cost int) *AuthService {
	s.hashCost = cost
	return s
}

// Register creates an account. Empty role means learner; admin accounts
// cannot be self-registered.
func (s *AuthService) Register(ctx context.Context, username, email, password, role string) (*domain.User, error) {
	if len(username) < 3 || len(username) > 50 || !usernameRegex.MatchString(username) {
		return nil, domain.ErrInvalidInput
	}
	if len(email) > 255 || !emailRegex.MatchString(email) {
		return nil, domain.ErrInvalidInput
	}
	if len(password) < 8 || len(password) > 72 {
		return nil, domain.ErrInvalidInput
	}
	if role == "" {
		role = domain.RoleLearner
	}
	if !domain.ValidRole(role) || role == domain.RoleAdmin {
		return nil, domain.ErrInvalidInput
	}

	if err := s.ensureAbsent(ctx, s.userRepo.GetByUsername, username, domain.ErrUsernameExists); err != nil {
		return nil, err
	}
	if err := s.ensureAbsent(ctx, s.userRepo.GetByEmail, email, domain.ErrEmailExists); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: string(hashedPassword),
	}

	// The repository still reports races on the unique constraints.
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *AuthService) ensureAbsent(ctx context.Context, lookup func(context.Context, string) (*domain.User, error), value string, exists error) error {
	_, err := lookup(ctx, value)
	switch {
	case err == nil:
		return exists
	case errors.Is(err, domain.ErrUserNotFound):
		return nil
	default:
		return err
	}
}

// Login verifies credentials and opens a new session carrying the user's role.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Session, *domain.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword(
		[]byte(user.PasswordHash), []byte(password),
	); err != nil {
		return nil, nil, domain.ErrInvalidCredentials
	}

	session := &domain.Session{
		UserID:    user.ID,
		Role:      user.Role,
		Token:     uuid.New().String(),
		ExpiresAt: s.now().Add(SessionTTL),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, nil, err
	}

	return session, user, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessionRepo.Delete(ctx, token)
}

func (s *AuthService) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// CleanupExpiredSessions removes sessions past their expiry.
func (s *AuthService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessionRepo.DeleteExpired(ctx)
}
