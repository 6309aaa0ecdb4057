package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// postJSON runs one handler with an authenticated test context. Validation
// rejects the request before any backing service is touched, so a zero-value
// Handler is enough here.
func postJSON(t *testing.T, handle gin.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("user_id", float64(7))
	handle(c)
	return w
}

func TestSendSingleRejectsOversizedTag(t *testing.T) {
	h := &Handler{}
	w := postJSON(t, h.SendSingle, gin.H{
		"recipient": "212612345678",
		"body":      "hello",
		"tag":       strings.Repeat("x", MaxTagLength+1),
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendSingleRejectsOversizedSignature(t *testing.T) {
	h := &Handler{}
	w := postJSON(t, h.SendSingle, gin.H{
		"recipient": "212612345678",
		"body":      "hello",
		"signature": strings.Repeat("x", MaxTagLength+1),
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendBulkRejectsOversizedTag(t *testing.T) {
	h := &Handler{}
	w := postJSON(t, h.SendBulk, gin.H{
		"recipients": []string{"212612345678"},
		"body":       "hello",
		"tag":        strings.Repeat("x", MaxTagLength+1),
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendSingleRejectsMissingBody(t *testing.T) {
	h := &Handler{}
	w := postJSON(t, h.SendSingle, gin.H{"recipient": "212612345678"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
