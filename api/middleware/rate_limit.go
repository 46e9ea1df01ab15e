package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-settlement/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
)

type counterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RateLimitPolicy is a fixed-window budget per client IP and per authenticated user.
// A zero limit disables that dimension.
type RateLimitPolicy struct {
	name    string
	window  time.Duration
	perIP   int64
	perUser int64
}

func NewRateLimitPolicy(name string, window time.Duration, ipLimit, userLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "payments"
	}
	return RateLimitPolicy{name: name, window: window, perIP: int64(ipLimit), perUser: int64(userLimit)}
}

func (p RateLimitPolicy) active() bool {
	return p.window > 0 && (p.perIP > 0 || p.perUser > 0)
}

type bucket struct {
	scope string
	key   string
	limit int64
}

// buckets lists the counters a request is charged against, IP first.
func (p RateLimitPolicy) buckets(r *http.Request) []bucket {
	var out []bucket
	if ip := clientIP(r); ip != "" && p.perIP > 0 {
		out = append(out, bucket{scope: "ip", key: "rl:ip:" + p.name + ":" + ip, limit: p.perIP})
	}
	if user := UserIDFromContext(r.Context()); user != "" && p.perUser > 0 {
		out = append(out, bucket{scope: "user", key: "rl:user:" + p.name + ":" + user, limit: p.perUser})
	}
	return out
}

// RateLimit rejects with 429 and a Retry-After header once a bucket is spent. Place it
// after Auth so the per-user bucket sees the caller.
func RateLimit(policy RateLimitPolicy, store counterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.active() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, b := range policy.buckets(r) {
				count, err := store.IncrWithTTL(ctx, b.key, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit counter"))
					return
				}
				if count > b.limit {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy":   policy.name,
							"scope":    b.scope,
							"attempts": count,
							"limit":    b.limit,
						}), "rate limit exceeded")
					}
					w.Header().Set("Retry-After", strconv.Itoa(int(policy.window.Seconds())))
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop; the service runs behind a load
// balancer that sets it.
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
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
