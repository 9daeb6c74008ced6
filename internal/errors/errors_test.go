package errors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("distribution percentages must sum to 100", "got 97.2")

	assert.Equal(t, CategoryValidation, err.Category)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
	assert.Equal(t, "[VALIDATION_ERROR] distribution percentages must sum to 100", err.Error())
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("analysis run", "abc-123")

	assert.Equal(t, CategoryNotFound, err.Category)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
	assert.Contains(t, err.Error(), "analysis run not found")
}

func TestStorageErrorWrapsCause(t *testing.T) {
	cause := fmt.Errorf("database is locked")
	err := NewStorageError("failed to persist run", cause)

	assert.Equal(t, CategoryStorage, err.Category)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	assert.ErrorIs(t, err, cause)
}

func TestRateLimitError(t *testing.T) {
	err := NewRateLimitError("30s")

	assert.Equal(t, CategoryRateLimit, err.Category)
	assert.Equal(t, http.StatusTooManyRequests, err.HTTPStatus)
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name             string
		err              error
		expectedCategory ErrorCategory
	}{
		{name: "app error passthrough", err: NewValidationError("bad"), expectedCategory: CategoryValidation},
		{name: "context deadline", err: context.DeadlineExceeded, expectedCategory: CategoryTimeout},
		{name: "context cancelled", err: context.Canceled, expectedCategory: CategoryTimeout},
		{name: "timeout by message", err: fmt.Errorf("request timeout after 30s"), expectedCategory: CategoryTimeout},
		{name: "generic error", err: fmt.Errorf("something broke"), expectedCategory: CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := ToAppError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.expectedCategory, appErr.Category)
		})
	}

	assert.Nil(t, ToAppError(nil))
}

func TestRecoveryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RecoveryHandler())
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/panic", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal")
}

func TestErrorHandlerRespondsWithLastError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/fail", func(c *gin.Context) {
		c.Error(NewNotFoundError("title", "42"))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/fail", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
