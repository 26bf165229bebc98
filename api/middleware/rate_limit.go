package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/trackvault-backend/api/responses"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

const (
	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// RateLimitPolicy is a fixed window with independent per-user and per-IP
// budgets. A zero budget disables that counter.
type RateLimitPolicy struct {
	name      string
	window    time.Duration
	userLimit int
	ipLimit   int
}

func NewRateLimitPolicy(name string, window time.Duration, userLimit, ipLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return RateLimitPolicy{name: name, window: window, userLimit: userLimit, ipLimit: ipLimit}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.userLimit > 0 || p.ipLimit > 0)
}

// budget is one counter a request is charged against.
type budget struct {
	scope string
	key   string
	limit int64
}

func (p RateLimitPolicy) budgets(r *http.Request) []budget {
	var out []budget
	add := func(scope, subject string, limit int) {
		if limit > 0 && subject != "" {
			out = append(out, budget{scope: scope, key: "rl:" + scope + ":" + p.name + ":" + subject, limit: int64(limit)})
		}
	}
	add("user", UserIDFromContext(r.Context()), p.userLimit)
	add("ip", clientIP(r), p.ipLimit)
	return out
}

// RateLimit charges every request against the policy's budgets and rejects
// with 429 once any is exhausted. It must run after Auth so the user budget
// applies. A store failure is a 503; throttled endpoints move money.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			remaining := int64(-1)
			var tightest int64
			for _, b := range policy.budgets(r) {
				count, err := store.IncrWithTTL(ctx, b.key, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > b.limit {
					throttled(ctx, logg, w, policy, b, count)
					return
				}
				if left := b.limit - count; remaining < 0 || left < remaining {
					remaining, tightest = left, b.limit
				}
			}
			if remaining >= 0 {
				w.Header().Set(RateLimitLimitHeader, strconv.FormatInt(tightest, 10))
				w.Header().Set(RateLimitRemainingHeader, strconv.FormatInt(remaining, 10))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func throttled(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, b budget, count int64) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"scope":          b.scope,
			"policy":         policy.name,
			"attempts":       count,
			"limit":          b.limit,
			"window_seconds": int(policy.window.Seconds()),
		}), "request throttled")
	}
	retryAfter := int(policy.window.Round(time.Second) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set(RateLimitLimitHeader, strconv.FormatInt(b.limit, 10))
	w.Header().Set(RateLimitRemainingHeader, "0")
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer.
func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for part := range strings.SplitSeq(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
