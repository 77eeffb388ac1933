package crawler

import (
	"github.com/lukemcguire/siteprobe/result"
	"github.com/lukemcguire/siteprobe/urlutil"
)

// FrontierEntry is a URL popped for processing with its recorded depth.
type FrontierEntry struct {
	URL   string
	Depth int
}

// Frontier is the bounded BFS state for one crawl: a FIFO queue, the
// visited set, the depth recorded for every URL ever added, and the page
// results in processing order. It is not safe for concurrent use; the crawl
// coordinator is its only writer.
type Frontier struct {
	queue   []string
	depth   map[string]int
	visited map[string]struct{}
	results map[string]result.PageResult
	order   []string

	pagesCrawled int
	maxPages     int
}

// NewFrontier creates an empty frontier that hands out at most maxPages URLs
// in total.
func NewFrontier(maxPages int) *Frontier {
	return &Frontier{
		depth:    make(map[string]int),
		visited:  make(map[string]struct{}),
		results:  make(map[string]result.PageResult),
		maxPages: maxPages,
	}
}

// AddURL normalizes rawURL and enqueues it at depth. A URL is enqueued at
// most once; adding it again only lowers its recorded depth, and AddURL
// returns false. Empty, fragment-only and relative URLs are rejected.
func (f *Frontier) AddURL(rawURL string, depth int) bool {
	u, err := urlutil.Normalize(rawURL)
	if err != nil {
		return false
	}
	if known, ok := f.depth[u]; ok {
		if depth < known {
			f.depth[u] = depth
		}
		return false
	}
	f.depth[u] = depth
	f.queue = append(f.queue, u)
	return true
}

// MarkVisited records rawURL as processed. The crawled counter advances once
// per distinct URL.
func (f *Frontier) MarkVisited(rawURL string) {
	u, err := urlutil.Normalize(rawURL)
	if err != nil {
		return
	}
	if _, ok := f.visited[u]; ok {
		return
	}
	f.visited[u] = struct{}{}
	f.pagesCrawled++
}

// NextBatch pops up to n entries in FIFO order, never more than the
// remaining page budget. Each entry carries the URL's current depth.
func (f *Frontier) NextBatch(n int) []FrontierEntry {
	n = min(n, f.maxPages-f.pagesCrawled, len(f.queue))
	if n <= 0 {
		return nil
	}
	batch := make([]FrontierEntry, n)
	for i, u := range f.queue[:n] {
		batch[i] = FrontierEntry{URL: u, Depth: f.depth[u]}
	}
	f.queue = f.queue[n:]
	return batch
}

// Record stores the result for res.URL, marking it visited if needed.
func (f *Frontier) Record(res result.PageResult) {
	if u, err := urlutil.Normalize(res.URL); err == nil {
		res.URL = u
	}
	f.MarkVisited(res.URL)
	if _, ok := f.results[res.URL]; !ok {
		f.order = append(f.order, res.URL)
	}
	f.results[res.URL] = res
}

// Visited reports whether rawURL has been processed.
func (f *Frontier) Visited(rawURL string) bool {
	u, err := urlutil.Normalize(rawURL)
	if err != nil {
		return false
	}
	_, ok := f.visited[u]
	return ok
}

// Depth returns the recorded depth of rawURL.
func (f *Frontier) Depth(rawURL string) (int, bool) {
	u, err := urlutil.Normalize(rawURL)
	if err != nil {
		return 0, false
	}
	d, ok := f.depth[u]
	return d, ok
}

// PagesCrawled returns how many distinct URLs have been marked visited.
func (f *Frontier) PagesCrawled() int { return f.pagesCrawled }

// Pending returns the number of queued URLs.
func (f *Frontier) Pending() int { return len(f.queue) }

// Results returns the recorded page results in processing order.
func (f *Frontier) Results() []result.PageResult {
	out := make([]result.PageResult, 0, len(f.order))
	for _, u := range f.order {
		out = append(out, f.results[u])
	}
	return out
}
