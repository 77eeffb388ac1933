// Package fetcher is the default HTTP implementation of crawler.PageFetcher.
// It paces requests per host, retries transient failures, optionally honors
// robots.txt, and extracts text, metadata and links from HTML responses.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/lukemcguire/siteprobe/cache"
	"github.com/lukemcguire/siteprobe/crawler"
	"github.com/lukemcguire/siteprobe/metrics"
	"github.com/lukemcguire/siteprobe/result"
)

// DefaultUserAgent identifies the crawler when stealth mode is off.
const DefaultUserAgent = "siteprobe/1.0 (+https://github.com/lukemcguire/siteprobe)"

var errDisallowed = errors.New("disallowed by robots.txt")

// Config configures an HTTPFetcher. Zero values take the defaults noted on
// each field.
type Config struct {
	Client    *http.Client // default: a client following up to 10 redirects
	UserAgent string       // default: DefaultUserAgent
	// RateLimit is the initial requests per second per host. Default 10.
	RateLimit float64
	// TargetRTT drives the adaptive limiter. Default 500ms.
	TargetRTT   time.Duration
	RetryPolicy RetryPolicy // default: DefaultRetryPolicy
	// RespectRobots refuses pages disallowed by robots.txt.
	RespectRobots bool
	MaxBodyBytes  int64 // default: 10 MiB
	// Cache stores pages for requests with FetchOptions.Cache set and
	// robots.txt files. Default: an in-memory store.
	Cache    cache.Store
	CacheTTL time.Duration // page cache TTL, default 15m
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// HTTPFetcher fetches pages over plain HTTP. JavaScript is not executed, so
// FetchOptions.WaitUntil has no effect beyond validation.
type HTTPFetcher struct {
	cfg      Config
	client   *http.Client
	limiters *HostLimiters
	robots   *RobotsGuard
	log      zerolog.Logger
}

// New creates an HTTPFetcher.
func New(cfg Config) *HTTPFetcher {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.TargetRTT <= 0 {
		cfg.TargetRTT = 500 * time.Millisecond
	}
	if cfg.RetryPolicy == (RetryPolicy{}) {
		cfg.RetryPolicy = DefaultRetryPolicy()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}

	f := &HTTPFetcher{
		cfg:      cfg,
		client:   cfg.Client,
		limiters: NewHostLimiters(cfg.RateLimit, cfg.TargetRTT),
		log:      cfg.Logger.With().Str("component", "fetcher").Logger(),
	}
	if cfg.RespectRobots {
		robotsClient := &http.Client{Timeout: 5 * time.Second, Transport: cfg.Client.Transport}
		f.robots = NewRobotsGuard(robotsClient, cfg.Cache, time.Hour)
	}
	return f
}

// cachedPage is the stored form of a fetched page.
type cachedPage struct {
	StatusCode  int               `json:"status_code"`
	HTML        string            `json:"html,omitempty"`
	CleanedHTML string            `json:"cleaned_html,omitempty"`
	Text        string            `json:"text,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Links       []any             `json:"links,omitempty"`
}

// Fetch retrieves rawURL. HTTP error statuses, robots refusals and transport
// failures are returned as *crawler.FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts crawler.FetchOptions) (*crawler.PageContent, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, &crawler.FetchError{URL: rawURL, Kind: crawler.KindContent, Err: err}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cacheKey := pageCacheKey(rawURL, opts)
	if opts.Cache {
		var cp cachedPage
		if ok, err := cache.GetJSON(ctx, f.cfg.Cache, cacheKey, &cp); err != nil {
			f.log.Warn().Err(err).Str("url", rawURL).Msg("page cache read failed")
		} else if ok {
			f.log.Debug().Str("url", rawURL).Msg("page served from cache")
			return cp.content(rawURL), nil
		}
	}

	agent := f.cfg.UserAgent
	if opts.Stealth {
		agent = lookupDevice(opts.Device).userAgent
	}
	if f.robots != nil {
		allowed, err := f.robots.Allowed(ctx, rawURL, agent)
		if err != nil {
			f.log.Debug().Err(err).Str("url", rawURL).Msg("robots.txt check failed, allowing")
		}
		if !allowed {
			f.cfg.Metrics.ObserveRobotsBlocked()
			return nil, &crawler.FetchError{URL: rawURL, Kind: crawler.KindRobots, Err: errDisallowed}
		}
	}

	body, resp, err := f.get(ctx, target, opts)
	if err != nil {
		return nil, err
	}

	base := target
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}

	var page *crawler.PageContent
	if isBinaryContentType(resp.Header.Get("Content-Type")) {
		page = &crawler.PageContent{URL: base.String()}
	} else {
		page, err = buildContent(body, base, opts)
		if err != nil {
			return nil, &crawler.FetchError{URL: rawURL, Kind: crawler.KindContent, StatusCode: resp.StatusCode, Err: err}
		}
	}
	page.StatusCode = resp.StatusCode

	if opts.Cache {
		if err := cache.SetJSON(ctx, f.cfg.Cache, cacheKey, newCachedPage(page), f.cfg.CacheTTL); err != nil {
			f.log.Warn().Err(err).Str("url", rawURL).Msg("page cache write failed")
		}
	}
	return page, nil
}

// get performs the GET with pacing and retries and returns the decoded body.
func (f *HTTPFetcher) get(ctx context.Context, target *url.URL, opts crawler.FetchOptions) ([]byte, *http.Response, error) {
	limiter := f.limiters.For(target.Host)
	device := lookupDevice(opts.Device)

	var (
		body []byte
		resp *http.Response
	)
	res, attempts := f.cfg.RetryPolicy.run(ctx, func(ctx context.Context) attemptResult {
		if err := limiter.Wait(ctx); err != nil {
			return attemptResult{err: fmt.Errorf("rate limiter wait: %w", err)}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return attemptResult{err: err}
		}
		setHeaders(req.Header, f.cfg.UserAgent, device, opts.Stealth)

		start := time.Now()
		r, err := f.client.Do(req)
		if err != nil {
			return attemptResult{err: err}
		}
		limiter.ObserveRTT(time.Since(start))

		b, err := readBody(r, f.cfg.MaxBodyBytes)
		if err != nil {
			return attemptResult{status: r.StatusCode, err: err}
		}
		body, resp = b, r
		return attemptResult{
			status:     r.StatusCode,
			retryAfter: parseRetryAfter(r.Header.Get("Retry-After"), time.Now()),
		}
	})

	if res.err != nil || res.status >= 400 {
		return nil, nil, f.fetchError(target.String(), res, attempts)
	}
	return body, resp, nil
}

func (f *HTTPFetcher) fetchError(rawURL string, res attemptResult, attempts int) error {
	err := res.err
	if err == nil {
		err = fmt.Errorf("HTTP %d %s", res.status, http.StatusText(res.status))
	}
	if attempts > 1 {
		err = fmt.Errorf("%w (after %d attempts)", err, attempts)
	}

	kind := crawler.KindNetwork
	switch result.ClassifyError(res.err, res.status) {
	case result.Category4xx, result.Category5xx:
		kind = crawler.KindHTTP
	case result.CategoryTimeout:
		kind = crawler.KindTimeout
	case result.CategoryDNSFailure:
		kind = crawler.KindDNS
	}
	if errors.Is(res.err, errBodyTooLarge) {
		kind = crawler.KindContent
	}
	return &crawler.FetchError{URL: rawURL, Kind: kind, StatusCode: res.status, Err: err}
}

func pageCacheKey(rawURL string, opts crawler.FetchOptions) string {
	return fmt.Sprintf("page:%s|%v|%s|%v", rawURL, opts.Formats, lookupDevice(opts.Device).userAgent, opts.Stealth)
}

func newCachedPage(p *crawler.PageContent) cachedPage {
	return cachedPage{
		StatusCode:  p.StatusCode,
		HTML:        p.HTML,
		CleanedHTML: p.CleanedHTML,
		Text:        p.Text,
		Metadata:    p.Metadata,
		Links:       p.Links,
	}
}

func (c cachedPage) content(rawURL string) *crawler.PageContent {
	return &crawler.PageContent{
		URL:         rawURL,
		StatusCode:  c.StatusCode,
		HTML:        c.HTML,
		CleanedHTML: c.CleanedHTML,
		Text:        c.Text,
		Metadata:    c.Metadata,
		Links:       c.Links,
	}
}
