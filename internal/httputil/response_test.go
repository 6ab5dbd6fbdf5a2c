package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wavehub/instance-server-go/internal/errors"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{apperrors.NotFound("instance"), http.StatusNotFound, "NOT_FOUND"},
		{apperrors.AlreadyExists("instance"), http.StatusBadRequest, "ALREADY_EXISTS"},
		{apperrors.NotConnected("A"), http.StatusConflict, "NOT_CONNECTED"},
		{apperrors.TransportFailure("send failed", nil), http.StatusBadGateway, "TRANSPORT_FAILURE"},
		{apperrors.AuthFailure("logged out"), http.StatusBadGateway, "AUTH_FAILURE"},
		{apperrors.MissingRequired("instanceId"), http.StatusBadRequest, "MISSING_REQUIRED"},
		{apperrors.Unauthorized("Invalid token"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{apperrors.Database(errors.New("refused")), http.StatusInternalServerError, "DATABASE_ERROR"},
		{errors.New("plain error"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.wantCode, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, apperrors.ErrorCode(tc.wantCode), body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"instanceId": "A"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"instanceId":"A"}`, rec.Body.String())
}
