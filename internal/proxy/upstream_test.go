package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classhub-gateway/internal/middleware"
	"classhub-gateway/internal/testutil"
)

type seenRequest struct {
	Path      string `json:"path"`
	Query     string `json:"query"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	RequestID string `json:"request_id"`
	APIKey    string `json:"api_key"`
	Forwarded string `json:"forwarded_for"`
	Cookie    string `json:"cookie"`
}

func newEchoUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(seenRequest{
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			UserID:    r.Header.Get(HeaderUserID),
			Role:      r.Header.Get(HeaderUserRole),
			RequestID: r.Header.Get(HeaderRequestID),
			APIKey:    r.Header.Get("X-Internal-API-Key"),
			Forwarded: r.Header.Get("X-Forwarded-For"),
			Cookie:    r.Header.Get("Cookie"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	for _, raw := range []string{"", "/app", "localhost:3000", "://bad"} {
		_, err := New(raw, Options{})
		assert.Error(t, err, raw)
	}
}

func TestUpstream_ForwardsSessionIdentity(t *testing.T) {
	upstream := newEchoUpstream(t)
	p, err := New(upstream.URL+"/app", Options{StripHeaders: []string{"X-Internal-API-Key"}})
	require.NoError(t, err)

	session := testutil.NewTestSession(testutil.WithSessionUserID("user-9"), testutil.WithSessionRole("parent"))
	req := httptest.NewRequest(http.MethodGet, "/dashboard/grades?term=2", nil)
	req.Header.Set(HeaderUserID, "spoofed-admin")
	req.Header.Set(HeaderUserRole, "admin")
	req.Header.Set("X-Internal-API-Key", "leaked")
	req.AddCookie(&http.Cookie{Name: "csrf-token", Value: "abc"})
	ctx := middleware.WithSession(req.Context(), session)
	ctx = context.WithValue(ctx, chimiddleware.RequestIDKey, "req-123")
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	p.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var seen seenRequest
	require.NoError(t, json.NewDecoder(w.Body).Decode(&seen))

	assert.Equal(t, "/app/dashboard/grades", seen.Path)
	assert.Equal(t, "term=2", seen.Query)
	assert.Equal(t, "user-9", seen.UserID)
	assert.Equal(t, "parent", seen.Role)
	assert.Equal(t, "req-123", seen.RequestID)
	assert.Empty(t, seen.APIKey)
	assert.NotEmpty(t, seen.Forwarded)
	assert.Contains(t, seen.Cookie, "csrf-token=abc")
}

func TestUpstream_AnonymousRequestCarriesNoIdentity(t *testing.T) {
	upstream := newEchoUpstream(t)
	p, err := New(upstream.URL, Options{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "spoofed")
	w := httptest.NewRecorder()

	p.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var seen seenRequest
	require.NoError(t, json.NewDecoder(w.Body).Decode(&seen))
	assert.Empty(t, seen.UserID)
	assert.Empty(t, seen.Role)
}

func TestUpstream_UnavailableReturnsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	p, err := New(target, Options{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()

	p.ServeHTTP(w, req)

	testutil.AssertJSONError(t, w, http.StatusBadGateway, "Upstream unavailable")
}

func TestUpstream_RefusesDotSegmentPaths(t *testing.T) {
	hits := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	t.Cleanup(upstream.Close)

	p, err := New(upstream.URL, Options{})
	require.NoError(t, err)

	for _, target := range []string{"/static/../lessons/12/submit", "/_next/%2e%2e/lessons/12/submit"} {
		w := httptest.NewRecorder()
		p.ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, nil))

		body := testutil.AssertJSONResponse(t, w, http.StatusBadRequest)
		assert.Equal(t, "Invalid request path", body["error"])
	}
	assert.Zero(t, hits)
}
