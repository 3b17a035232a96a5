package testsupport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/gloads/portal/internal/session"
)

// Envelope mirrors response.Body with raw data for decoding into typed values.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Request performs one JSON request against h. A non-empty token is sent as a bearer header.
func Request(t *testing.T, h http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// Decode unwraps the envelope into out and returns it.
func Decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	if out != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

// AsSession returns a middleware that attaches sess, standing in for JWT validation.
func AsSession(sess session.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		session.Attach(c, sess)
		c.Next()
	}
}

// Engine returns a gin engine in test mode.
func Engine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}
