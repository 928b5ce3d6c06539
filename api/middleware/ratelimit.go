package middleware

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/riceup-labs/riceup-backend/api/responses"
	pkgerrors "github.com/riceup-labs/riceup-backend/pkg/errors"
	"github.com/riceup-labs/riceup-backend/pkg/logger"
)

// RateLimiter is the fixed-window counter surface of pkg/redis.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit caps requests per remote host within a fixed window. It guards
// the unauthenticated gateway callback, where there is no actor to throttle
// by. A nil limiter disables the check; a limiter error fails open, since
// dropping a gateway callback is worse than letting one through unthrottled.
func RateLimit(limiter RateLimiter, logg *logger.Logger, scope string, limit int64, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			ctx := r.Context()
			allowed, count, err := limiter.FixedWindowAllow(ctx, scope+":"+host, limit, window)
			if err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "rate limit check failed, allowing request")
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					warnCtx := logg.WithFields(ctx, map[string]any{"scope": scope, "remote": host, "count": count})
					logg.Warn(warnCtx, "rate limit exceeded")
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimited, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
