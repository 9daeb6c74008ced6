package security

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(sm *SecurityMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sm.SecurityHeaders, sm.ValidateContentType, sm.LimitBodySize, sm.RequestTimeout)
	r.POST("/echo", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"bytes": len(body)})
	})
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true})
	})
	return r
}

func TestSecurityHeaders(t *testing.T) {
	r := newTestRouter(NewSecurityMiddleware(DefaultSecurityConfig()))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, w.Header().Get("X-Timeout"))
}

func TestValidateContentType(t *testing.T) {
	r := newTestRouter(NewSecurityMiddleware(DefaultSecurityConfig()))

	tests := []struct {
		name           string
		contentType    string
		expectedStatus int
	}{
		{name: "JSON accepted", contentType: "application/json", expectedStatus: http.StatusOK},
		{name: "JSON with charset accepted", contentType: "application/json; charset=utf-8", expectedStatus: http.StatusOK},
		{name: "missing content type accepted", contentType: "", expectedStatus: http.StatusOK},
		{name: "XML rejected", contentType: "application/xml", expectedStatus: http.StatusUnsupportedMediaType},
		{name: "form data rejected", contentType: "multipart/form-data", expectedStatus: http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/echo", bytes.NewReader([]byte("{}")))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestValidateContentType_GETUnaffected(t *testing.T) {
	r := newTestRouter(NewSecurityMiddleware(DefaultSecurityConfig()))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	req.Header.Set("Content-Type", "text/html")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLimitBodySize(t *testing.T) {
	cfg := DefaultSecurityConfig()
	cfg.MaxBodyBytes = 64
	r := newTestRouter(NewSecurityMiddleware(cfg))

	t.Run("small body passes", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/echo", strings.NewReader(`{"ok":true}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("oversized body rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/echo", strings.NewReader(strings.Repeat("x", 1024)))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestRequestTimeoutContext(t *testing.T) {
	cfg := DefaultSecurityConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	sm := NewSecurityMiddleware(cfg)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sm.RequestTimeout)
	r.GET("/deadline", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"has_deadline": ok})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/deadline", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"has_deadline":true`)
}
