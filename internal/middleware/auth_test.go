package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func protectedHandler(key string) http.Handler {
	m := NewAPIKeyMiddleware(key)
	return m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestAPIKeyMiddleware(t *testing.T) {
	cases := []struct {
		name       string
		key        string
		authHeader string
		wantStatus int
	}{
		{"empty key disables auth", "", "", http.StatusNoContent},
		{"valid token", "secret", "Bearer secret", http.StatusNoContent},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"wrong token", "secret", "Bearer nope", http.StatusUnauthorized},
		{"no bearer prefix", "secret", "secret", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/instances", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			rec := httptest.NewRecorder()
			protectedHandler(tc.key).ServeHTTP(rec, req)
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}
