package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"classhub-gateway/internal/middleware"
	"classhub-gateway/internal/security"
	"classhub-gateway/internal/testutil"
)

func TestCSRFHandler_Token_Anonymous(t *testing.T) {
	tm := newTestTokenManager(t)
	h := NewCSRFHandler(tm, testCookies)

	req := httptest.NewRequest(http.MethodGet, "/api/csrf/token", nil)
	w := httptest.NewRecorder()

	h.Token(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	testutil.AssertHeader(t, w, "Cache-Control", "no-store")

	cookie := testutil.AssertStrictCookie(t, w, "csrf-token", true, false)
	resp := testutil.DecodeJSON[CSRFTokenResponse](t, w)
	testutil.AssertEqual(t, resp.Header, "x-csrf-token")
	testutil.AssertEqual(t, resp.ExpiresIn, int64(86400))
	if cookie != nil {
		testutil.AssertEqual(t, resp.Token, cookie.Value)
	}
	testutil.AssertNoError(t, tm.Validate(resp.Token, ""))
}

func TestCSRFHandler_Token_BoundToSession(t *testing.T) {
	tm := newTestTokenManager(t)
	h := NewCSRFHandler(tm, testCookies)

	session := testutil.NewTestSession(testutil.WithSessionID("session-42"))
	req := httptest.NewRequest(http.MethodGet, "/api/csrf/token", nil)
	req = req.WithContext(middleware.WithSession(req.Context(), session))
	w := httptest.NewRecorder()

	h.Token(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	resp := testutil.DecodeJSON[CSRFTokenResponse](t, w)
	testutil.AssertNoError(t, tm.Validate(resp.Token, "session-42"))
	testutil.AssertErrorIs(t, tm.Validate(resp.Token, "session-43"), security.ErrInvalidSession)
}

func TestCSRFHandler_Token_UnboundWhenBindingDisabled(t *testing.T) {
	tm := newTestTokenManager(t)
	cookies := testCookies
	cookies.BindSession = false
	cookies.Secure = false
	h := NewCSRFHandler(tm, cookies)

	req := httptest.NewRequest(http.MethodGet, "/api/csrf/token", nil)
	req = req.WithContext(middleware.WithSession(req.Context(), testutil.NewTestSession()))
	w := httptest.NewRecorder()

	h.Token(w, req)

	testutil.AssertStrictCookie(t, w, "csrf-token", false, false)
	resp := testutil.DecodeJSON[CSRFTokenResponse](t, w)
	testutil.AssertNoError(t, tm.Validate(resp.Token, ""))
}
