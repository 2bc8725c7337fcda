package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"classhub-gateway/internal/domain"
	"classhub-gateway/internal/middleware"
	"classhub-gateway/internal/observability"
	"classhub-gateway/internal/service"
)

// CookieSettings describes the cookies the gateway issues.
type CookieSettings struct {
	CSRFCookieName string
	CSRFHeaderName string
	Secure         bool
	BindSession    bool
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	tokens      middleware.TokenService
	cookies     CookieSettings
}

func NewAuthHandler(authService *service.AuthService, tokens middleware.TokenService, cookies CookieSettings) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		tokens:      tokens,
		cookies:     cookies,
	}
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=learner parent teacher"`
}

type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Success   bool         `json:"success"`
	User      UserResponse `json:"user"`
	CSRFToken string       `json:"csrf_token"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.authService.Register(r.Context(), req.Username, req.Email, req.Password, req.Role)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid input")
		return
	case errors.Is(err, domain.ErrUsernameExists), errors.Is(err, domain.ErrEmailExists):
		writeError(w, http.StatusConflict, err.Error())
		return
	default:
		observability.FromContext(r.Context()).Error("registration failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login opens a session and hands out a CSRF token bound to it. Any session
// the client already held is ended first so a planted session id cannot
// survive authentication.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	logger := observability.FromContext(r.Context())

	session, user, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		logger.Error("login failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	if previous, ok := middleware.GetSession(r.Context()); ok {
		if err := h.authService.Logout(r.Context(), previous.Token); err != nil {
			logger.Warn("failed to end previous session", slog.String("error", err.Error()))
		}
	}

	var bindTo string
	if h.cookies.BindSession {
		bindTo = session.ID
	}
	csrfToken, err := h.tokens.Generate(bindTo)
	if err != nil {
		logger.Error("failed to generate CSRF token", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   int(service.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	middleware.IssueCookie(w, h.cookies.CSRFCookieName, csrfToken, h.tokens.MaxAge(), h.cookies.Secure)
	observability.CSRFTokensIssued.WithLabelValues("login").Inc()

	logger.Info("user logged in", slog.String("user_id", user.ID), slog.String("role", user.Role))

	writeJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		User:      toUserResponse(user),
		CSRFToken: csrfToken,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Session not found")
		return
	}

	if err := h.authService.Logout(r.Context(), session.Token); err != nil {
		observability.FromContext(r.Context()).Error("logout failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to logout")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	middleware.ClearCookie(w, h.cookies.CSRFCookieName, h.cookies.Secure)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}
