// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/keyfold/keyfold/pkg/errors"
)

// RateLimit configures the per-client-IP throttle on credential endpoints.
type RateLimit struct {
	// PerMinute is the sustained number of attempts allowed per minute.
	PerMinute int

	// Burst is the number of attempts allowed above the sustained rate.
	Burst int
}

// DefaultRateLimit is applied when the configured limit is zero.
var DefaultRateLimit = RateLimit{PerMinute: 10, Burst: 5}

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newClientLimiter(cfg RateLimit) *clientLimiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = DefaultRateLimit.PerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultRateLimit.Burst
	}
	return &clientLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(cfg.PerMinute) / 60,
		burst:    cfg.Burst,
	}
}

func (l *clientLimiter) getLimiter(clientIP string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[clientIP]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[clientIP] = limiter
	}
	return limiter
}

// Middleware rejects requests above the per-client rate with 429.
func (l *clientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			// RealIP middleware may have replaced RemoteAddr with a bare IP.
			clientIP = r.RemoteAddr
		}
		if !l.getLimiter(clientIP).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(errors.ErrorResponse{Errors: []errors.ErrorObject{{
				Type:        "fail.input.too.many.attempts",
				Description: "too many attempts, retry later",
			}}})
			return
		}
		next.ServeHTTP(w, r)
	})
}
