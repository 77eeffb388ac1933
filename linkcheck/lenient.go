package linkcheck

import (
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// defaultLenientDomains routinely reject automated clients with 4xx,
// 999 or challenge pages while serving browsers normally.
var defaultLenientDomains = []string{
	"facebook.com",
	"fb.com",
	"instagram.com",
	"twitter.com",
	"x.com",
	"linkedin.com",
	"youtube.com",
	"youtu.be",
	"tiktok.com",
	"pinterest.com",
	"reddit.com",
	"threads.net",
	"snapchat.com",
	"quora.com",
	"tumblr.com",
}

// registrableDomain returns the eTLD+1 of host, or host itself when it has
// no public suffix (IP addresses, localhost).
func registrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

func newLenientSet(extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(defaultLenientDomains)+len(extra))
	for _, d := range append(append([]string{}, defaultLenientDomains...), extra...) {
		if d = registrableDomain(d); d != "" {
			set[d] = struct{}{}
		}
	}
	return set
}

// lenientDomain reports the registrable domain of host and whether probe
// failures against it are downgraded to non-broken.
func (c *Checker) lenientDomain(host string) (string, bool) {
	domain := registrableDomain(host)
	_, ok := c.lenient[domain]
	return domain, ok
}
