// Package response renders pipeline results and errors as JSON
package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/armelgeek/better-query/internal/endpoint"
	"github.com/armelgeek/better-query/internal/web/ratelimit"
)

// ErrorBody is the shape of every error response
type ErrorBody struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// Success is the acknowledgement returned by delete
type Success struct {
	Success bool `json:"success"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Message writes an error body without details
func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// Error renders err with the status of its kind. Errors that did not come
// from the pipeline are reported as storage failures.
func Error(w http.ResponseWriter, err error) {
	perr := endpoint.AsError(err)
	if perr.RateLimit != nil {
		SetRateLimitHeaders(w, perr.RateLimit)
	}
	status := perr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	JSON(w, status, ErrorBody{Error: perr.Message, Details: perr.Details})
}

// SetRateLimitHeaders reports the limiter state of the request
func SetRateLimitHeaders(w http.ResponseWriter, info *ratelimit.RateLimitInfo) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	if !info.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
	}
	if !info.Allowed {
		secs := int(info.RetryAfter(time.Now()).Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		h.Set("Retry-After", strconv.Itoa(secs))
	}
}
