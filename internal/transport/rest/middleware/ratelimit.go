package middleware

import (
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"voicebank/internal/cache"
)

// RateLimitMiddleware applies a per-IP request limit.
type RateLimitMiddleware struct {
	limiter cache.RateLimiter
	logger  *zap.Logger
}

func NewRateLimitMiddleware(limiter cache.RateLimiter, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, logger: logger}
}

// Limit rejects requests over the configured rate with 429. A limiter error
// fails open: collection traffic is worth more than strict limiting.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, err := m.limiter.Allow(r.Context(), requestIP(r))
		if err != nil {
			m.logger.Warn("rate limiter unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Too many requests from this IP, please try again later."}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
