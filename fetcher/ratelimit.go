package fetcher

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// minRateFloor and maxRateCeiling bound the per-host rate in requests per second.
	minRateFloor   = 1.0
	maxRateCeiling = 100.0

	// emaAlpha weights a new RTT observation against the running average.
	emaAlpha = 0.2

	// recoveryFactor is the per-observation increase while the host is fast.
	recoveryFactor = 1.1

	// backoffFactor caps how far the rate can fall in one observation.
	backoffFactor = 0.5
)

// AdaptiveLimiter paces requests to one host, slowing down when the
// smoothed response time exceeds the target and recovering gradually when
// the host answers quickly.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	targetRTT   time.Duration
	emaRTT      time.Duration
	currentRate float64
}

// NewAdaptiveLimiter returns a limiter starting at initialRPS.
func NewAdaptiveLimiter(initialRPS float64, targetRTT time.Duration) *AdaptiveLimiter {
	r := clampRate(initialRPS)
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(rate.Limit(r), int(math.Ceil(r))),
		targetRTT:   targetRTT,
		emaRTT:      targetRTT,
		currentRate: r,
	}
}

// Wait blocks until the next request may be sent or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// ObserveRTT folds a response time into the average and adjusts the rate.
func (a *AdaptiveLimiter) ObserveRTT(rtt time.Duration) {
	if rtt <= 0 || a.targetRTT <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.emaRTT = time.Duration(emaAlpha*float64(rtt) + (1-emaAlpha)*float64(a.emaRTT))

	var next float64
	if ratio := float64(a.targetRTT) / float64(a.emaRTT); ratio < 1 {
		next = max(a.currentRate*ratio, a.currentRate*backoffFactor)
	} else {
		next = a.currentRate * recoveryFactor
	}
	next = clampRate(next)

	if math.Abs(next-a.currentRate) > 0.1 {
		a.currentRate = next
		a.limiter.SetLimit(rate.Limit(next))
		a.limiter.SetBurst(int(math.Ceil(next)))
	}
}

// Rate returns the current rate in requests per second.
func (a *AdaptiveLimiter) Rate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

func clampRate(rps float64) float64 {
	return min(max(rps, minRateFloor), maxRateCeiling)
}

// HostLimiters hands out one AdaptiveLimiter per host.
type HostLimiters struct {
	mu         sync.Mutex
	limiters   map[string]*AdaptiveLimiter
	initialRPS float64
	targetRTT  time.Duration
}

// NewHostLimiters creates limiters that start at initialRPS per host.
func NewHostLimiters(initialRPS float64, targetRTT time.Duration) *HostLimiters {
	return &HostLimiters{
		limiters:   make(map[string]*AdaptiveLimiter),
		initialRPS: initialRPS,
		targetRTT:  targetRTT,
	}
}

// For returns the limiter for host, creating it on first use.
func (h *HostLimiters) For(host string) *AdaptiveLimiter {
	host = strings.ToLower(host)
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = NewAdaptiveLimiter(h.initialRPS, h.targetRTT)
		h.limiters[host] = l
	}
	return l
}
