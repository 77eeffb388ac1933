package fetcher

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jaytaylor/html2text"

	"github.com/lukemcguire/siteprobe/crawler"
)

// noiseSelectors are removed before producing cleaned HTML and text.
const noiseSelectors = "script,noscript,style,iframe,template,svg,link[rel='stylesheet']"

// buildContent turns a fetched HTML document into PageContent, computing
// only the formats opts asks for.
func buildContent(body []byte, base *url.URL, opts crawler.FetchOptions) (*crawler.PageContent, error) {
	page := &crawler.PageContent{URL: base.String()}

	if opts.Wants(crawler.FormatHTML) {
		page.HTML = string(body)
	}

	if opts.Wants(crawler.FormatLinks) {
		links, err := ExtractLinks(bytes.NewReader(body), baseForLinks(body, base))
		if err != nil && len(links) == 0 {
			return nil, fmt.Errorf("extract links: %w", err)
		}
		page.Links = make([]any, len(links))
		for i, l := range links {
			page.Links[i] = l
		}
	}

	needDoc := opts.Wants(crawler.FormatMetadata) || opts.Wants(crawler.FormatHTML) || opts.Wants(crawler.FormatText)
	if !needDoc {
		return page, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	if opts.Wants(crawler.FormatMetadata) {
		page.Metadata = extractMetadata(doc)
	}

	doc.Find(noiseSelectors).Remove()
	cleaned, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("render cleaned html: %w", err)
	}
	if opts.Wants(crawler.FormatHTML) {
		page.CleanedHTML = cleaned
	}
	if opts.Wants(crawler.FormatText) {
		text, err := html2text.FromString(cleaned, html2text.Options{OmitLinks: true})
		if err != nil {
			return nil, fmt.Errorf("convert html to text: %w", err)
		}
		page.Text = strings.TrimSpace(text)
	}
	return page, nil
}

// baseForLinks honors a <base href> element when present.
func baseForLinks(body []byte, pageURL *url.URL) *url.URL {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageURL
	}
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return pageURL
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return pageURL
	}
	return pageURL.ResolveReference(ref)
}

func extractMetadata(doc *goquery.Document) map[string]string {
	meta := make(map[string]string)

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		meta["title"] = title
	}
	if lang, ok := doc.Find("html").First().Attr("lang"); ok && lang != "" {
		meta["language"] = lang
	}
	if canonical, ok := doc.Find("link[rel='canonical']").First().Attr("href"); ok && canonical != "" {
		meta["canonical"] = canonical
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		meta["h1"] = h1
	}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		content = strings.TrimSpace(content)
		key := ""
		if name, ok := s.Attr("name"); ok {
			key = strings.ToLower(strings.TrimSpace(name))
		} else if prop, ok := s.Attr("property"); ok {
			key = strings.ToLower(strings.TrimSpace(prop))
		}
		if key == "" || content == "" {
			return
		}
		if _, exists := meta[key]; !exists {
			meta[key] = content
		}
	})
	return meta
}
