package fetcher

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/lukemcguire/siteprobe/crawler"
	"github.com/lukemcguire/siteprobe/urlutil"
)

// ExtractLinks parses HTML from body and returns every anchor as a Link with
// its collapsed anchor text. Hrefs are resolved against baseURL, non-HTTP
// schemes are dropped, and each URL appears once (first anchor wins).
func ExtractLinks(body io.Reader, baseURL *url.URL) ([]crawler.Link, error) {
	tokenizer := html.NewTokenizer(body)
	index := make(map[string]int)
	var (
		links   []crawler.Link
		errs    []error
		current = -1 // index of the link whose text is being collected
		text    strings.Builder
	)

	closeAnchor := func() {
		if current >= 0 && links[current].Text == "" {
			links[current].Text = strings.Join(strings.Fields(text.String()), " ")
		}
		current = -1
		text.Reset()
	}

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			closeAnchor()
			if tokenizer.Err() != io.EOF {
				errs = append(errs, tokenizer.Err())
			}
			if len(errs) > 0 {
				return links, fmt.Errorf("encountered %d parse errors (first: %w)", len(errs), errs[0])
			}
			return links, nil

		case html.TextToken:
			if current >= 0 {
				text.Write(tokenizer.Text())
			}

		case html.EndTagToken:
			if name, _ := tokenizer.TagName(); string(name) == "a" {
				closeAnchor()
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "a" {
				continue
			}
			closeAnchor()
			for _, attr := range token.Attr {
				if attr.Key != "href" {
					continue
				}
				normalized, err := urlutil.ResolveLink(baseURL, attr.Val)
				if errors.Is(err, urlutil.ErrNotHTTP) {
					continue
				}
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if i, seen := index[normalized]; seen {
					current = i
				} else {
					index[normalized] = len(links)
					current = len(links)
					links = append(links, crawler.Link{URL: normalized})
				}
			}
		}
	}
}
