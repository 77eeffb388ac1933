package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrEmptyURL is returned for empty or whitespace-only input.
	ErrEmptyURL = errors.New("empty URL")
	// ErrFragmentOnly is returned for pure in-page references such as "#top".
	ErrFragmentOnly = errors.New("fragment-only URL")
	// ErrNotAbsolute is returned when the URL lacks a scheme or host.
	ErrNotAbsolute = errors.New("URL must have both scheme and host")
)

var defaultPorts = map[string]string{"http": "80", "https": "443"}

// Normalize takes a raw URL string and returns its canonical form, used as
// the identity key for visited tracking and link checks.
// Normalization includes:
// - Lowercasing the scheme and host
// - Dropping the default port (:80 for http, :443 for https)
// - Stripping fragments (#section)
// - Stripping trailing slashes, including the bare root path
// - Preserving query parameters
//
// Returns an error if the input is empty, is only a fragment, or cannot be
// parsed as an absolute URL.
func Normalize(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrEmptyURL
	}
	if strings.HasPrefix(rawURL, "#") {
		return "", ErrFragmentOnly
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize URL %q: %w", rawURL, err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("normalize URL %q: %w", rawURL, ErrNotAbsolute)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	if port := parsed.Port(); port == defaultPorts[parsed.Scheme] {
		parsed.Host = strings.TrimSuffix(parsed.Host, ":"+port)
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.RawPath = strings.TrimRight(parsed.RawPath, "/")

	return parsed.String(), nil
}

// Hostname returns the lowercased host of rawURL without port, or "" when
// the URL cannot be parsed.
func Hostname(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
