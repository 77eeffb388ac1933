package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// BareHost lowercases host and strips a leading "www." so that
// www.example.com and example.com compare equal.
func BareHost(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return strings.TrimPrefix(host, "www.")
}

// IsSameDomain checks if targetURL belongs to the same site as baseHost.
// The comparison ignores a leading "www." and treats subdomains in either
// direction as in scope: blog.example.com matches example.com, and
// example.com matches a crawl started at blog.example.com.
func IsSameDomain(targetURL string, baseHost string) bool {
	host := Hostname(targetURL)
	if host == "" {
		return false
	}
	return InScope(host, baseHost)
}

// InScope reports whether host and baseHost are the same site, or one is a
// subdomain of the other, ignoring "www." prefixes.
func InScope(host, baseHost string) bool {
	host = BareHost(host)
	baseHost = BareHost(baseHost)
	if host == "" || baseHost == "" {
		return false
	}
	return host == baseHost ||
		strings.HasSuffix(host, "."+baseHost) ||
		strings.HasSuffix(baseHost, "."+host)
}

// IsHTTPScheme returns true if the URL has an http or https scheme.
// Returns false for empty strings, non-HTTP schemes, or unparseable URLs.
func IsHTTPScheme(rawURL string) bool {
	if rawURL == "" {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}

// ErrNotHTTP is returned by ResolveLink when the resolved URL is not
// http(s), such as mailto: or javascript: links.
var ErrNotHTTP = errors.New("not an http(s) URL")

// ResolveLink resolves href against the page URL base and returns the
// normalized absolute target. An empty href refers to base itself.
func ResolveLink(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		href = base.String()
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	resolved := base.ResolveReference(ref).String()
	if !IsHTTPScheme(resolved) {
		return "", fmt.Errorf("resolve %q: %w", href, ErrNotHTTP)
	}
	return Normalize(resolved)
}
