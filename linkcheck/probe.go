package linkcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// probeReadLimit bounds how much of a GET body a probe reads.
const probeReadLimit = 1 << 10

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Strategy names, in the order they are attempted.
const (
	StrategyHeadBrowser = "head-browser"
	StrategyGetBrowser  = "get-browser"
	StrategyHeadMinimal = "head-minimal"
	StrategyGetMinimal  = "get-minimal"
)

type strategy struct {
	name    string
	method  string
	browser bool
	timeout time.Duration
}

func defaultStrategies() []strategy {
	return []strategy{
		{name: StrategyHeadBrowser, method: http.MethodHead, browser: true, timeout: 5 * time.Second},
		{name: StrategyGetBrowser, method: http.MethodGet, browser: true, timeout: 8 * time.Second},
		{name: StrategyHeadMinimal, method: http.MethodHead, timeout: 10 * time.Second},
		{name: StrategyGetMinimal, method: http.MethodGet, timeout: 15 * time.Second},
	}
}

type probeResult struct {
	status int
	err    error
}

func (p probeResult) ok() bool { return p.err == nil && p.status > 0 && p.status < 400 }

func (p probeResult) String() string {
	if p.err != nil {
		return p.err.Error()
	}
	return fmt.Sprintf("HTTP %d %s", p.status, http.StatusText(p.status))
}

// probe issues one request for s. GET bodies are streamed and only a small
// prefix is read before the connection is released.
func (c *Checker) probe(ctx context.Context, s strategy, target string) probeResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, s.method, target, nil)
	if err != nil {
		return probeResult{err: err}
	}
	if s.browser {
		req.Header.Set("User-Agent", browserUserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Upgrade-Insecure-Requests", "1")
		req.Header.Set("Sec-Fetch-Dest", "document")
		req.Header.Set("Sec-Fetch-Mode", "navigate")
		req.Header.Set("Sec-Fetch-Site", "none")
	} else {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		req.Header.Set("Accept", "*/*")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return probeResult{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	// The status line is the verdict; a truncated prefix does not change it.
	if s.method == http.MethodGet {
		_, _ = io.CopyN(io.Discard, resp.Body, probeReadLimit)
	}
	return probeResult{status: resp.StatusCode}
}
