package security

import (
	"net"
	"net/http"
	"strings"

	webcontext "github.com/armelgeek/better-query/internal/web/context"
)

// RequestContext is the request metadata carried into audit events
type RequestContext struct {
	IP        string
	UserAgent string
	Origin    string
	RequestID string
}

// ExtractContext reads client metadata from a request. The client IP is the
// first X-Forwarded-For entry, then X-Real-IP, then the remote address.
func ExtractContext(r *http.Request) RequestContext {
	if r == nil {
		return RequestContext{}
	}
	rc := RequestContext{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Origin:    r.Header.Get("Origin"),
		RequestID: webcontext.GetRequestID(r.Context()),
	}
	if rc.RequestID == "" {
		rc.RequestID = r.Header.Get("X-Request-ID")
	}
	return rc
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
