package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgtalk/pkg/logger"
)

func newTestEngine(t *testing.T, mw gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	return r
}

func doRequest(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.1:12345"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// panic被捕获并返回500，后续请求不受影响
func TestRecoveryReturns500OnPanic(t *testing.T) {
	log, err := logger.NewLogger("error")
	require.NoError(t, err)

	r := newTestEngine(t, Recovery(log))
	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})
	r.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := doRequest(r, "/boom")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = doRequest(r, "/ok")
	assert.Equal(t, http.StatusOK, w.Code)
}

// 突发额度内放行，超出返回429
func TestRateLimitRejectsBeyondBurst(t *testing.T) {
	r := newTestEngine(t, RateLimit(1, 3))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	for i := 0; i < 3; i++ {
		w := doRequest(r, "/ping")
		assert.Equal(t, http.StatusOK, w.Code, "第%d个请求应在突发额度内", i+1)
	}

	w := doRequest(r, "/ping")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

// 限流按IP隔离，一个IP超限不影响另一个
func TestRateLimitIsolatesClients(t *testing.T) {
	r := newTestEngine(t, RateLimit(1, 1))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	request := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = ip + ":12345"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, request("192.0.2.10"))
	assert.Equal(t, http.StatusTooManyRequests, request("192.0.2.10"))
	assert.Equal(t, http.StatusOK, request("192.0.2.11"))
}
