package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armelgeek/better-query/internal/endpoint"
	"github.com/armelgeek/better-query/internal/web/ratelimit"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"not found", endpoint.ErrNotFound, http.StatusNotFound, "Resource not found"},
		{"forbidden", endpoint.ErrForbidden, http.StatusForbidden, "Forbidden"},
		{"storage", errors.New("UNIQUE constraint failed: product.name"), http.StatusInternalServerError, "UNIQUE constraint failed: product.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.msg, body["error"])
			assert.NotContains(t, body, "details")
		})
	}
}

func TestError_Details(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, &endpoint.Error{
		Kind:    endpoint.KindValidationFailed,
		Status:  http.StatusBadRequest,
		Message: "Validation failed",
		Details: map[string][]string{"name": {"is required"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, map[string]interface{}{"name": []interface{}{"is required"}}, body["details"])
}

func TestError_RateLimitHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, &endpoint.Error{
		Kind:    endpoint.KindRateLimitExceeded,
		Status:  http.StatusTooManyRequests,
		Message: "Too many requests",
		RateLimit: &ratelimit.RateLimitInfo{
			Limit:   5,
			ResetAt: time.Now().Add(30 * time.Second),
		},
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
