package rate

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitError is returned when a call would have to wait longer than the
// declaration allows.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

type bucket struct {
	capacity int
	tokens   float64
	last     time.Time
}

// Guard enforces rate limits for a provider.
type Guard struct {
	decl Declaration

	mu       sync.Mutex
	buckets  map[Window]*bucket
	cooldown time.Time
}

// WrapHTTP wraps an http.Client so requests wait for budget before they are
// sent. A declaration without limits returns base unchanged.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	if !decl.HasLimits() {
		return base
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{
		base:  transport,
		guard: NewGuard(decl),
	}
	return &client
}

func NewGuard(decl Declaration) *Guard {
	buckets := make(map[Window]*bucket, len(decl.Limits()))
	now := time.Now()
	for window, limit := range decl.Limits() {
		buckets[window] = &bucket{
			capacity: limit,
			tokens:   float64(limit),
			last:     now,
		}
	}
	return &Guard{decl: decl, buckets: buckets}
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := rt.guard.Wait(req); err != nil {
		return nil, err
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return resp, nil
}

// Wait blocks until the guard allows the request, the request context is
// done, or the declared maximum wait would be exceeded.
func (g *Guard) Wait(req *http.Request) error {
	ctx := req.Context()
	for {
		now := time.Now()
		decision := g.ShouldCall(now)
		if decision.Allowed {
			return nil
		}
		delay := decision.RetryAt.Sub(now)
		if delay <= 0 {
			continue
		}
		if max := g.decl.MaxWait(); max > 0 && delay > max {
			return RateLimitError{
				Provider: g.decl.ProviderName(),
				Reason:   decision.Reason,
				RetryAt:  decision.RetryAt,
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		waitSeconds.WithLabelValues(g.decl.ProviderName()).Add(delay.Seconds())
	}
}

func (g *Guard) ShouldCall(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.cooldown.IsZero() && now.Before(g.cooldown) {
		return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.cooldown}
	}

	for window, b := range g.buckets {
		if b.capacity <= 0 {
			return Decision{Allowed: false, Reason: "disabled"}
		}
		if !consumeToken(b, window.Duration(), now) {
			retryAt := b.last.Add(window.Duration() / time.Duration(b.capacity))
			return Decision{Allowed: false, Reason: "budget", RetryAt: retryAt}
		}
	}

	return Decision{Allowed: true}
}

func (g *Guard) RecordResponse(status int, headers http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	provider := g.decl.ProviderName()
	lastStatusGauge.WithLabelValues(provider).Set(float64(status))

	cfg := g.decl.Headers()
	if remaining := headerInt(headers, cfg.RemainingMinute); remaining >= 0 {
		remainingGauge.WithLabelValues(provider).Set(float64(remaining))
	}
	if retryAfter := headerInt(headers, cfg.RetryAfter); retryAfter > 0 {
		g.cooldown = time.Now().Add(time.Duration(retryAfter) * time.Second)
		retryAfterGauge.WithLabelValues(provider).Set(float64(retryAfter))
	}
}

func headerInt(h http.Header, key string) int {
	if key == "" {
		return -1
	}
	val := h.Get(key)
	if val == "" {
		return -1
	}
	out, err := strconv.Atoi(val)
	if err != nil {
		return -1
	}
	return out
}

func consumeToken(b *bucket, window time.Duration, now time.Time) bool {
	if b.last.IsZero() {
		b.last = now
	}
	elapsed := now.Sub(b.last).Seconds()
	refillRate := float64(b.capacity) / window.Seconds()
	b.tokens = min(float64(b.capacity), b.tokens+elapsed*refillRate)
	b.last = now
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}
