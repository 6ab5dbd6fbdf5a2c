package handler

import (
	"net/http"

	"github.com/wavehub/instance-server-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
