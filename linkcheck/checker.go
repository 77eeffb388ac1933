// Package linkcheck verifies that the targets of crawled links are reachable.
//
// Each distinct target is checked once: a cached verdict is reused while
// fresh, otherwise the host is resolved and up to four HTTP probe strategies
// are tried in order until one answers with a status below 400.
package linkcheck

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/lukemcguire/siteprobe/cache"
	"github.com/lukemcguire/siteprobe/metrics"
	"github.com/lukemcguire/siteprobe/result"
)

const (
	DefaultConcurrency   = 5
	DefaultTTL           = 24 * time.Hour
	DefaultSubBatchPause = 250 * time.Millisecond
	DefaultUserAgent     = "siteprobe-linkcheck/1.0"

	maxRedirects = 10

	cacheKeyPrefix = "link_status:"
)

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Config configures a Checker. Zero values take the defaults.
type Config struct {
	// Client sends the probes. Default: &http.Client{}. Without its own
	// CheckRedirect, redirect chains that revisit a URL stop early and
	// are reported as redirect loops.
	Client   *http.Client
	Resolver Resolver // default: net.DefaultResolver
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	// TTL is how long a verdict stays cached. Default 24h.
	TTL time.Duration
	// SubBatchSize is how many targets are dispatched before pausing.
	// Default: twice the concurrency.
	SubBatchSize int
	// SubBatchPause separates sub-batches. Default 250ms; negative disables.
	SubBatchPause time.Duration
	// StrategyTimeouts overrides the per-strategy timeouts in attempt order
	// (5s, 8s, 10s, 15s). Zero entries keep the default.
	StrategyTimeouts []time.Duration
	UserAgent        string // sent by the minimal strategies
	// LenientDomains extends the built-in list of anti-bot domains.
	LenientDomains []string
	// Progress, if set, is called by CheckAll after each target completes.
	Progress func(checked, total int, target string)
}

// Checker checks link targets. It is safe for concurrent use; concurrent
// checks of the same target share one probe.
type Checker struct {
	store      cache.Store
	cfg        Config
	client     *http.Client
	strategies []strategy
	lenient    map[string]struct{}
	inflight   singleflight.Group
	log        zerolog.Logger
}

// New creates a Checker caching verdicts in store. A nil store keeps
// verdicts in memory for the life of the Checker.
func New(store cache.Store, cfg Config) *Checker {
	if store == nil {
		store = cache.NewMemory()
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SubBatchPause == 0 {
		cfg.SubBatchPause = DefaultSubBatchPause
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	strategies := defaultStrategies()
	for i, d := range cfg.StrategyTimeouts {
		if i < len(strategies) && d > 0 {
			strategies[i].timeout = d
		}
	}

	client := *cfg.Client
	if client.CheckRedirect == nil {
		client.CheckRedirect = checkRedirect
	}

	return &Checker{
		store:      store,
		cfg:        cfg,
		client:     &client,
		strategies: strategies,
		lenient:    newLenientSet(cfg.LenientDomains),
		log:        cfg.Logger.With().Str("component", "linkcheck").Logger(),
	}
}

// CheckAll checks every distinct target in edges with at most concurrency
// probes in flight and returns the verdicts keyed by target URL. Targets
// not yet dispatched when ctx is cancelled are missing from the map;
// dispatched checks run to completion.
func (c *Checker) CheckAll(ctx context.Context, edges []result.LinkEdge, concurrency int) map[string]result.LinkCheckResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	targets := distinctTargets(edges)
	results := make(map[string]result.LinkCheckResult, len(targets))
	if len(targets) == 0 {
		return results
	}

	size := c.cfg.SubBatchSize
	if size <= 0 {
		size = 2 * concurrency
	}
	sem := semaphore.NewWeighted(int64(concurrency))
	probeCtx := context.WithoutCancel(ctx)
	var mu sync.Mutex

	c.log.Info().Int("targets", len(targets)).Int("concurrency", concurrency).Msg("checking links")

	for start := 0; start < len(targets); start += size {
		if start > 0 && c.cfg.SubBatchPause > 0 {
			if err := sleepCtx(ctx, c.cfg.SubBatchPause); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		var g errgroup.Group
		for _, target := range targets[start:min(start+size, len(targets))] {
			g.Go(func() error {
				if err := sem.Acquire(ctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				res := c.Check(probeCtx, target)
				mu.Lock()
				results[target] = res
				if c.cfg.Progress != nil {
					c.cfg.Progress(len(results), len(targets), target)
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			break
		}
	}

	if len(results) < len(targets) {
		c.log.Warn().Int("checked", len(results)).Int("targets", len(targets)).Msg("link check cancelled")
	}
	return results
}

// Check returns the verdict for a single target.
func (c *Checker) Check(ctx context.Context, target string) result.LinkCheckResult {
	v, _, _ := c.inflight.Do(target, func() (any, error) {
		return c.check(ctx, target), nil
	})
	return v.(result.LinkCheckResult)
}

func (c *Checker) check(ctx context.Context, target string) result.LinkCheckResult {
	key := cacheKeyPrefix + target

	var cached result.LinkCheckResult
	hit, err := cache.GetJSON(ctx, c.store, key, &cached)
	if err != nil {
		c.log.Warn().Err(err).Str("url", target).Msg("link cache read failed")
	}
	c.cfg.Metrics.ObserveCacheLookup(hit)
	if hit {
		return cached
	}

	c.cfg.Metrics.CheckStarted()
	res := c.verify(ctx, target)
	c.cfg.Metrics.CheckFinished()
	c.cfg.Metrics.ObserveVerdict(res.IsBroken, res.Lenient)

	if ctx.Err() != nil {
		return res
	}
	if err := cache.SetJSON(ctx, c.store, key, res, c.cfg.TTL); err != nil {
		c.log.Warn().Err(err).Str("url", target).Msg("link cache write failed")
	}
	return res
}

// verify runs the DNS pre-check and the probe strategies.
func (c *Checker) verify(ctx context.Context, target string) (res result.LinkCheckResult) {
	res.URL = target
	defer func() { res.CheckedAt = time.Now().UTC() }()

	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		res.IsBroken = true
		res.Error = fmt.Sprintf("invalid URL %q", target)
		res.ErrorCategory = result.CategoryUnknown
		return res
	}
	host := u.Hostname()

	if net.ParseIP(host) == nil {
		if _, err := c.cfg.Resolver.LookupHost(ctx, host); err != nil {
			res.IsBroken = true
			res.Error = fmt.Sprintf("DNS resolution failed for %s: %v", host, err)
			res.ErrorCategory = result.CategoryDNSFailure
			c.log.Debug().Str("url", target).Err(err).Msg("dns pre-check failed")
			return res
		}
	}

	var last probeResult
	for _, s := range c.strategies {
		last = c.probe(ctx, s, target)
		c.cfg.Metrics.ObserveProbe(s.name, last.ok())
		if last.ok() {
			res.StatusCode = last.status
			res.Strategy = s.name
			return res
		}
		c.log.Debug().Str("url", target).Str("strategy", s.name).Str("result", last.String()).Msg("probe failed")
	}

	res.StatusCode = last.status
	if domain, ok := c.lenientDomain(host); ok {
		res.Lenient = true
		res.ErrorCategory = result.CategoryBlocked
		res.Error = fmt.Sprintf("%s blocks automated requests (%s); treated as reachable", domain, last)
		return res
	}

	res.IsBroken = true
	res.Error = last.String()
	res.ErrorCategory = result.ClassifyError(last.err, last.status)
	return res
}

// distinctTargets returns each edge target once in first-seen order.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("%w: stopped after %d redirects", result.ErrRedirectLoop, len(via))
	}
	next := req.URL.String()
	for _, prev := range via {
		if prev.URL.String() == next {
			return fmt.Errorf("%w: %s revisited", result.ErrRedirectLoop, next)
		}
	}
	return nil
}

func distinctTargets(edges []result.LinkEdge) []string {
	seen := make(map[string]struct{}, len(edges))
	targets := make([]string, 0, len(edges))
	for _, e := range edges {
		if e.Target == "" {
			continue
		}
		if _, dup := seen[e.Target]; dup {
			continue
		}
		seen[e.Target] = struct{}{}
		targets = append(targets, e.Target)
	}
	return targets
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
