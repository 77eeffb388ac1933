package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/lukemcguire/siteprobe/cache"
)

const robotsMaxBytes = 512 << 10

// robotsEntry is the cached form of a host's robots.txt. Status zero means
// the file could not be retrieved and everything is allowed.
type robotsEntry struct {
	Status int    `json:"status"`
	Body   []byte `json:"body,omitempty"`
}

// RobotsGuard answers robots.txt queries, caching each host's file in a
// cache.Store. Every failure fails open.
type RobotsGuard struct {
	client *http.Client
	store  cache.Store
	ttl    time.Duration
}

// NewRobotsGuard returns a guard that caches robots.txt files for ttl.
func NewRobotsGuard(client *http.Client, store cache.Store, ttl time.Duration) *RobotsGuard {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RobotsGuard{client: client, store: store, ttl: ttl}
}

// Allowed reports whether userAgent may fetch rawURL. The returned error is
// informational; the verdict is still usable.
func (g *RobotsGuard) Allowed(ctx context.Context, rawURL, userAgent string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true, fmt.Errorf("parse URL: %w", err)
	}
	if parsed.Host == "" {
		return true, nil
	}

	key := "robots:" + parsed.Scheme + "://" + parsed.Host
	var entry robotsEntry
	// Unreadable cache entries count as a miss.
	if ok, _ := cache.GetJSON(ctx, g.store, key, &entry); !ok {
		var fetchErr error
		entry, fetchErr = g.fetch(ctx, parsed)
		if err := cache.SetJSON(ctx, g.store, key, entry, g.ttl); err != nil && fetchErr == nil {
			fetchErr = err
		}
		if fetchErr != nil {
			return true, fetchErr
		}
	}

	if entry.Status == 0 {
		return true, nil
	}
	robots, err := robotstxt.FromStatusAndBytes(entry.Status, entry.Body)
	if err != nil {
		return true, fmt.Errorf("parse robots.txt for host %s: %w", parsed.Host, err)
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return robots.TestAgent(path, userAgent), nil
}

func (g *RobotsGuard) fetch(ctx context.Context, site *url.URL) (robotsEntry, error) {
	robotsURL := site.Scheme + "://" + site.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return robotsEntry{}, fmt.Errorf("create robots.txt request for host %s: %w", site.Host, err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return robotsEntry{}, fmt.Errorf("fetch robots.txt for host %s: %w", site.Host, err)
	}
	defer resp.Body.Close()

	// 404 and 5xx allow everything.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode >= 500 {
		return robotsEntry{}, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		return robotsEntry{}, fmt.Errorf("read robots.txt body for host %s: %w", site.Host, err)
	}
	return robotsEntry{Status: resp.StatusCode, Body: body}, nil
}
