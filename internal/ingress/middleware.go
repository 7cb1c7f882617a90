package ingress

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/greentic-ai/greentic-messaging/internal/core"
	"github.com/greentic-ai/greentic-messaging/internal/ratelimit"
)

type ctxKey int

const requestIDKey ctxKey = iota

const requestIDHeader = "x-request-id"

// RequestID assigns every request a fresh correlation id and echoes it
// on the response. A caller-supplied header is ignored: webhooks come
// from untrusted platforms, and an id they pick cannot be allowed to
// pollute correlation across tenants.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFrom returns the correlation id assigned by the middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// IPLimiter throttles webhook callers per source address. It is a
// node-local guard in front of the distributed tenant limiter.
type IPLimiter struct {
	limits  ratelimit.Limits
	buckets *ratelimit.Local
}

func NewIPLimiter(limits ratelimit.Limits) *IPLimiter {
	return &IPLimiter{limits: limits, buckets: ratelimit.NewLocal()}
}

func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryAfter, _ := l.buckets.Take(clientIP(r), l.limits, 1)
		if !ok {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeError(w, r, &core.DomainError{Code: core.ErrorCodeRateLimited, Message: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP trusts the first x-forwarded-for hop set by the edge proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("x-forwarded-for"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	return "unknown"
}
