package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/wavehub/instance-server-go/internal/errors"
	"github.com/wavehub/instance-server-go/internal/httputil"
)

// APIKeyMiddleware guards mutating routes with a static bearer key. An empty
// configured key disables the check (local development).
type APIKeyMiddleware struct {
	key string
}

func NewAPIKeyMiddleware(key string) *APIKeyMiddleware {
	return &APIKeyMiddleware{key: key}
}

func (m *APIKeyMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.key == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(m.key)) != 1 {
			log.Warn().Str("path", r.URL.Path).Msg("invalid api key attempt")
			httputil.WriteError(w, apperrors.Unauthorized("Invalid token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
