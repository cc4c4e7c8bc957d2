/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ratelimit throttles attempts against public endpoints that accept
// guessable input. Counters live in Redis so every replica shares them; when
// Redis is missing or failing each process limits on its own.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/friendsincode/keygate/internal/telemetry"
)

const (
	keyPrefix = "keygate:ratelimit:"
	window    = time.Minute

	// maxLocalKeys caps the fallback limiter table; it is reset when exceeded.
	maxLocalKeys = 10000
)

// Config contains limiter configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// PerMinute is the number of attempts allowed per scope and client each
	// minute. Zero or less disables limiting.
	PerMinute int

	// DisableOnError switches to the in-process limiter after a Redis error.
	DisableOnError bool
}

// Limiter counts attempts per scope and client.
type Limiter struct {
	client *redis.Client
	logger zerolog.Logger
	config Config
	now    func() time.Time

	mu       sync.RWMutex
	disabled bool // Circuit breaker state

	localMu sync.Mutex
	local   map[string]*rate.Limiter
}

// New creates a limiter. An empty or unreachable Redis address yields a
// process-local limiter rather than an error.
func New(cfg Config, logger zerolog.Logger) *Limiter {
	l := &Limiter{
		logger: logger.With().Str("component", "ratelimit").Logger(),
		config: cfg,
		now:    time.Now,
		local:  make(map[string]*rate.Limiter),
	}
	if cfg.RedisAddr == "" || cfg.PerMinute <= 0 {
		l.disabled = true
		return l
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		l.logger.Warn().Err(err).Msg("Redis unavailable, limiting attempts per process")
		_ = client.Close()
		l.disabled = true
		return l
	}

	l.logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis rate limiter initialized")
	l.client = client
	return l
}

// Close closes the Redis connection.
func (l *Limiter) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// Shared reports whether counters are kept in Redis.
func (l *Limiter) Shared() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.disabled && l.client != nil
}

func (l *Limiter) handleError(err error) {
	l.logger.Debug().Err(err).Msg("rate limit counter failed")
	if l.config.DisableOnError {
		l.mu.Lock()
		l.disabled = true
		l.mu.Unlock()
		l.logger.Warn().Msg("disabling shared rate limiting due to Redis error")
	}
}

// Allow records an attempt by client within scope and reports whether it is
// within the limit.
func (l *Limiter) Allow(ctx context.Context, scope, client string) bool {
	if l.config.PerMinute <= 0 {
		return true
	}
	if l.Shared() {
		allowed, err := l.allowShared(ctx, scope, client)
		if err == nil {
			return allowed
		}
		l.handleError(err)
	}
	return l.allowLocal(scope, client)
}

// allowShared uses a fixed one-minute window counter.
func (l *Limiter) allowShared(ctx context.Context, scope, client string) (bool, error) {
	bucket := l.now().Unix() / int64(window/time.Second)
	key := fmt.Sprintf("%s%s:%s:%d", keyPrefix, scope, client, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(l.config.PerMinute), nil
}

func (l *Limiter) allowLocal(scope, client string) bool {
	key := scope + ":" + client

	l.localMu.Lock()
	lim, ok := l.local[key]
	if !ok {
		if len(l.local) >= maxLocalKeys {
			l.local = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(rate.Every(window/time.Duration(l.config.PerMinute)), l.config.PerMinute)
		l.local[key] = lim
	}
	l.localMu.Unlock()

	return lim.AllowN(l.now(), 1)
}

// Middleware rejects requests over the limit for scope with 429, keyed by the
// host part of r.RemoteAddr. Forwarded headers are not consulted here; the
// server rewrites RemoteAddr only for configured trusted proxies.
func (l *Limiter) Middleware(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(r.Context(), scope, clientKey(r)) {
				telemetry.RateLimitedTotal.WithLabelValues(scope).Inc()
				l.logger.Warn().
					Str("scope", scope).
					Str("remote_addr", r.RemoteAddr).
					Msg("rate limit exceeded")

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(window/time.Second)))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many attempts"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
