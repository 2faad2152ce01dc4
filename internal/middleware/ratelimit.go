package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	logpkg "github.com/jalsakhi/model-gateway/internal/logger"
	"github.com/jalsakhi/model-gateway/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const (
	// DefaultRateLimitMax is the default number of requests per window per client.
	DefaultRateLimitMax = 100
	// DefaultRateLimitWindow is the default fixed window length.
	DefaultRateLimitWindow = time.Minute

	rateLimitPrefix = "gateway:ratelimit"
)

// RateLimiter counts requests per client IP in fixed windows. Rejected
// requests count against the window too.
type RateLimiter struct {
	limiter    *limiter.Limiter
	trustProxy bool
	logger     *zap.Logger
}

// NewRateLimiter creates a limiter allowing max requests per window per client.
func NewRateLimiter(store limiter.Store, max int64, window time.Duration, trustProxy bool, logger *zap.Logger) *RateLimiter {
	if max <= 0 {
		max = DefaultRateLimitMax
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	rate := limiter.Rate{Period: window, Limit: max}
	return &RateLimiter{
		limiter:    limiter.New(store, rate),
		trustProxy: trustProxy,
		logger:     logger,
	}
}

// NewMemoryStore returns an in-process counter store.
func NewMemoryStore() limiter.Store {
	return memorystore.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          rateLimitPrefix,
		CleanUpInterval: time.Minute,
	})
}

// RedisStore is a Redis-backed counter store shared by gateway replicas.
type RedisStore struct {
	limiter.Store
	client *redis.Client
}

// NewRedisStore connects to redisURL and builds a counter store on it.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: rateLimitPrefix})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create Redis limiter store: %w", err)
	}

	return &RedisStore{Store: store, client: client}, nil
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Guard returns the rate limit check. Every response carries the RateLimit-*
// headers; an exceeded window yields 429 with Retry-After. Store failures
// let the request through.
func (l *RateLimiter) Guard() Guard {
	return func(r *http.Request) Verdict {
		ip := request.ClientIP(r, l.trustProxy)

		lctx, err := l.limiter.Get(r.Context(), ip)
		if err != nil {
			l.logger.Warn("rate_limit_store_error",
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.Error(err),
			)
			return Continue()
		}

		resetIn := lctx.Reset - time.Now().Unix()
		if resetIn < 0 {
			resetIn = 0
		}

		h := make(http.Header)
		h.Set("RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		h.Set("RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		h.Set("RateLimit-Reset", strconv.FormatInt(resetIn, 10))

		if lctx.Reached {
			h.Set("Retry-After", strconv.FormatInt(resetIn, 10))
			l.logger.Warn("rate_limit_exceeded",
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("ip", logpkg.SanitizeClientID(ip)),
			)
			return Verdict{Header: h, Status: http.StatusTooManyRequests, Message: "Too many requests"}
		}

		return Verdict{Header: h}
	}
}
