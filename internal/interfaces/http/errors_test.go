package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/elmyly/whaty/internal/entities"
)

func recordError(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, err)
	return w
}

func TestRespondErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "not ready", err: entities.ErrNotReady, status: http.StatusConflict, code: "not_ready"},
		{name: "invalid phone", err: fmt.Errorf("normalize: %w", entities.ErrInvalidPhone), status: http.StatusBadRequest, code: "invalid_phone"},
		{name: "missing target", err: entities.ErrMissingTarget, status: http.StatusBadRequest, code: "missing_target"},
		{name: "unknown recipient", err: entities.ErrUnknownRecipient, status: http.StatusNotFound, code: "unknown_recipient"},
		{name: "media fetch", err: fmt.Errorf("%w: status 404", entities.ErrMediaFetchFailed), status: http.StatusBadGateway, code: "media_fetch_failed"},
		{name: "not found", err: entities.ErrNotFound, status: http.StatusNotFound, code: "not_found"},
		{name: "forbidden", err: entities.ErrForbidden, status: http.StatusForbidden, code: "forbidden"},
		{name: "provider", err: &entities.ProviderError{Op: "send", Err: errors.New("boom")}, status: http.StatusBadGateway, code: "provider_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := recordError(t, tt.err)
			require.Equal(t, tt.status, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Equal(t, tt.code, body["code"])
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestRespondErrorQuotaCarriesFigures(t *testing.T) {
	err := &entities.QuotaExceededError{Limit: 100, Used: 100, Remaining: 0}
	w := recordError(t, err)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var body struct {
		Code  string             `json:"code"`
		Quota entities.QuotaInfo `json:"quota"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "quota_exceeded", body.Code)
	require.Equal(t, 100, body.Quota.Limit)
	require.Equal(t, 100, body.Quota.Used)
	require.Zero(t, body.Quota.Remaining)
}

func TestRespondErrorDefaultsToInternal(t *testing.T) {
	w := recordError(t, errors.New("unexpected"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestValidEmail(t *testing.T) {
	require.True(t, ValidEmail("user@example.com"))
	require.True(t, ValidEmail("a.b+tag@sub.example.io"))
	require.False(t, ValidEmail(""))
	require.False(t, ValidEmail("no-at-sign"))
	require.False(t, ValidEmail("user@nodot"))
	require.False(t, ValidEmail("spaces in@example.com"))
}

func TestSanitizeString(t *testing.T) {
	require.Equal(t, "hello", SanitizeString("he\x00llo"))
	require.Equal(t, "ok", SanitizeString(string([]byte{'o', 0xff, 'k'})))
}
