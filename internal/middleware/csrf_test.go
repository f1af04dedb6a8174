package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCSRFMiddleware_SafeMethodIssuesCookie(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCSRFMiddleware(CSRFConfig{}, newTestLogger(&buf))(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/posts", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == csrfCookieName {
			found = true
			if len(c.Value) != 64 {
				t.Errorf("token length = %d, want 64", len(c.Value))
			}
			if c.HttpOnly {
				t.Error("csrf cookie must be readable from scripts")
			}
		}
	}
	if !found {
		t.Error("csrf cookie was not set")
	}
}

func TestCSRFMiddleware_SafeMethodKeepsExistingCookie(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCSRFMiddleware(CSRFConfig{}, newTestLogger(&buf))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if len(w.Result().Cookies()) != 0 {
		t.Errorf("cookies = %d, want 0", len(w.Result().Cookies()))
	}
}

func TestCSRFMiddleware_UnsafeMethodValidation(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		header     string
		wantStatus int
		wantReason string
	}{
		{"matching tokens", "abc", "abc", http.StatusOK, ""},
		{"missing cookie", "", "abc", http.StatusForbidden, "missing cookie token"},
		{"missing header", "abc", "", http.StatusForbidden, "missing header token"},
		{"mismatch", "abc", "xyz", http.StatusForbidden, "token mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := NewCSRFMiddleware(CSRFConfig{}, newTestLogger(&buf))(okHandler())

			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{}"))
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantReason == "" {
				return
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Code != ErrCodeCSRF {
				t.Errorf("code = %q, want %q", body.Code, ErrCodeCSRF)
			}
			if !strings.Contains(buf.String(), tt.wantReason) {
				t.Errorf("log = %q, want reason %q", buf.String(), tt.wantReason)
			}
		})
	}
}

func TestCSRFTokenHandler_ReturnsExistingToken(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCSRFTokenHandler(CSRFConfig{}, newTestLogger(&buf))

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["token"] != "existing" {
		t.Errorf("token = %q, want %q", body["token"], "existing")
	}
}

func TestCSRFTokenHandler_IssuesNewToken(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCSRFTokenHandler(CSRFConfig{CookieSecure: true}, newTestLogger(&buf))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	if cookies[0].Value != body["token"] {
		t.Errorf("cookie = %q, body token = %q", cookies[0].Value, body["token"])
	}
	if !cookies[0].Secure {
		t.Error("cookie should be Secure")
	}
}
