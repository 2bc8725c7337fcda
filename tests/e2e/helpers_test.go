//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"
	"time"
)

// TestClient wraps http.Client with a cookie jar for a single browser
// session. It echoes the CSRF cookie in the header on mutations when
// sendCSRF is set, the way the web client does.
type TestClient struct {
	*http.Client
	t        *testing.T
	userID   string
	username string
	sendCSRF bool
}

// NewTestClient creates a new test client with cookie jar
func NewTestClient(t *testing.T) *TestClient {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}

	return &TestClient{
		Client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		t:        t,
		sendCSRF: true,
	}
}

// Cookie returns the value of the named cookie held for the gateway.
func (tc *TestClient) Cookie(name string) string {
	u, _ := url.Parse(baseURL)
	for _, c := range tc.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// SetCookie overwrites a cookie in the jar.
func (tc *TestClient) SetCookie(name, value string) {
	u, _ := url.Parse(baseURL)
	tc.Jar.SetCookies(u, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// CSRFToken is the token currently held in the CSRF cookie.
func (tc *TestClient) CSRFToken() string {
	return tc.Cookie("csrf-token")
}

// RegisterUser registers a new user and returns the response
func (tc *TestClient) RegisterUser(username, email, password string) (*UserResponse, error) {
	return tc.RegisterWithRole(username, email, password, "")
}

// RegisterWithRole registers a user with an explicit role.
func (tc *TestClient) RegisterWithRole(username, email, password, role string) (*UserResponse, error) {
	body := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}
	if role != "" {
		body["role"] = role
	}

	resp, err := tc.PostJSON("/api/auth/register", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("register failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result UserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode register response: %w", err)
	}

	tc.userID = result.ID
	tc.username = result.Username
	return &result, nil
}

// LoginUser logs in a user; the jar keeps the session and CSRF cookies.
func (tc *TestClient) LoginUser(username, password string) (*LoginResponse, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}

	resp, err := tc.PostJSON("/api/auth/login", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("login failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	tc.userID = result.User.ID
	tc.username = result.User.Username
	return &result, nil
}

// Logout logs out the current user
func (tc *TestClient) Logout() error {
	resp, err := tc.PostJSON("/api/auth/logout", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("logout failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// GetMe returns the current user information
func (tc *TestClient) GetMe() (*UserResponse, error) {
	resp, err := tc.Get(baseURL + "/api/auth/me")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get me failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result UserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode me response: %w", err)
	}

	return &result, nil
}

// BootstrapToken calls the token endpoint used by SPA and mobile clients.
func (tc *TestClient) BootstrapToken() (*CSRFTokenResponse, error) {
	resp, err := tc.Get(baseURL + "/api/csrf/token")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("csrf token failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result CSRFTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode csrf token response: %w", err)
	}
	return &result, nil
}

// PostJSON makes a POST request with JSON body
func (tc *TestClient) PostJSON(path string, body any) (*http.Response, error) {
	return tc.SendJSON(http.MethodPost, path, body)
}

// SendJSON makes a request with a JSON body, attaching the CSRF header from
// the cookie jar when the client is configured to.
func (tc *TestClient) SendJSON(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if tc.sendCSRF {
		if token := tc.CSRFToken(); token != "" {
			req.Header.Set("x-csrf-token", token)
		}
	}
	return tc.Do(req)
}

// Navigate performs a browser-style page load.
func (tc *TestClient) Navigate(path string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	return tc.Do(req)
}

// Response types
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type LoginResponse struct {
	Success   bool         `json:"success"`
	User      UserResponse `json:"user"`
	CSRFToken string       `json:"csrf_token"`
}

type CSRFTokenResponse struct {
	Token     string `json:"token"`
	Header    string `json:"header"`
	ExpiresIn int64  `json:"expires_in"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type FailureSummary struct {
	Since   time.Time        `json:"since"`
	Reasons map[string]int64 `json:"reasons"`
}

// Test helpers

// uniqueUsername generates a unique username for testing
func uniqueUsername(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

// uniqueEmail generates a unique email for testing
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s_%d@classhub.test", prefix, time.Now().UnixNano())
}

// setupTestUser creates and logs in a test user, returning the client
func setupTestUser(t *testing.T, prefix string) *TestClient {
	t.Helper()

	client := NewTestClient(t)
	username := uniqueUsername(prefix)
	email := uniqueEmail(prefix)

	_, err := client.RegisterUser(username, email, "password123")
	if err != nil {
		t.Fatalf("failed to register user: %v", err)
	}

	_, err = client.LoginUser(username, "password123")
	if err != nil {
		t.Fatalf("failed to login user: %v", err)
	}

	return client
}

// failureSummary reads the internal CSRF failure report.
func failureSummary(t *testing.T, since string) FailureSummary {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/internal/security/csrf-failures?since="+since, nil)
	assertNoError(t, err, "build summary request")
	req.Header.Set("X-Internal-API-Key", testInternalKey)

	resp, err := http.DefaultClient.Do(req)
	assertNoError(t, err, "summary request")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("summary failed with status %d: %s", resp.StatusCode, body)
	}

	var summary FailureSummary
	assertNoError(t, json.NewDecoder(resp.Body).Decode(&summary), "decode summary")
	return summary
}

// eventually polls cond until it holds or timeout elapses.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// assertEqual checks if two values are equal
func assertEqual[T comparable](t *testing.T, got, want T, msg string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", msg, got, want)
	}
}

// assertStatus fails unless resp has the wanted status.
func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}
