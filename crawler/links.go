package crawler

import (
	"net/url"
	"strings"

	"github.com/lukemcguire/siteprobe/urlutil"
)

// linkTargets collapses the link shapes a fetcher may return into
// normalized absolute http(s) URLs in first-seen order. Relative references
// are resolved against pageURL, and links back to pageURL are dropped.
func linkTargets(pageURL string, raw []any) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{}, len(raw))
	targets := make([]string, 0, len(raw))
	for _, item := range raw {
		href := strings.TrimSpace(linkHref(item))
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		normalized, err := urlutil.ResolveLink(base, href)
		if err != nil || normalized == pageURL {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		targets = append(targets, normalized)
	}
	return targets
}

func linkHref(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case Link:
		return v.URL
	case *Link:
		if v != nil {
			return v.URL
		}
	case map[string]string:
		if v["url"] != "" {
			return v["url"]
		}
		return v["href"]
	case map[string]any:
		for _, key := range []string{"url", "href"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
