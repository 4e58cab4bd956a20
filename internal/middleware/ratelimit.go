package middleware

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimit damps provider retry storms on the webhook ingress. A limited
// request gets 429 so a well-behaved provider backs off.
func RateLimit(limit float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(limit), burst)

	return func(h http.Handler, sugar *zap.SugaredLogger) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				sugar.Warnw("rate limit exceeded", "path", r.URL.Path)
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			h.ServeHTTP(w, r)
		})
	}
}
