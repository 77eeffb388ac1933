package crawler

import (
	"fmt"
)

// ConfigError reports an invalid crawl request. It is the only error Run
// returns; every other problem ends up as a report warning.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FetchKind classifies a page fetch failure.
type FetchKind string

const (
	KindNetwork FetchKind = "network"
	KindTimeout FetchKind = "timeout"
	KindDNS     FetchKind = "dns"
	KindHTTP    FetchKind = "http"
	KindRobots  FetchKind = "robots"
	KindContent FetchKind = "content"
)

// FetchError is returned by a PageFetcher for a page that could not be
// retrieved. StatusCode is zero when no response was received.
type FetchError struct {
	URL        string
	Kind       FetchKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s error (status %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s error: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
