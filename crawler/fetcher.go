package crawler

import (
	"context"
	"time"
)

// PageFetcher retrieves and renders a single page.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*PageContent, error)
}

// FetchOptions are passed through to the PageFetcher on every call.
type FetchOptions struct {
	// Cache allows the fetcher to serve a previously stored copy.
	Cache bool
	// Stealth asks for browser-like request headers.
	Stealth bool
	Timeout time.Duration
	// Device is desktop, mobile, tablet or a named device profile.
	Device string
	// WaitUntil is domcontentloaded, load or networkidle.
	WaitUntil string
	// Formats lists the content the caller needs. It is set by the crawler.
	Formats []Format
}

// Wants reports whether f was requested.
func (o FetchOptions) Wants(f Format) bool {
	for _, want := range o.Formats {
		if want == f || want == FormatFull {
			return true
		}
	}
	return false
}

// PageContent is what a PageFetcher returns for a page.
//
// Links may hold any mix of bare URL strings, Link values, or decoded JSON
// objects (map[string]any or map[string]string) carrying a "url" or "href"
// key. The crawler resolves them against the page URL.
type PageContent struct {
	URL         string
	StatusCode  int
	HTML        string
	CleanedHTML string
	Text        string
	Metadata    map[string]string
	Links       []any
}

// Link is the structured link shape.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}
