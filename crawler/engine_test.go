package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lukemcguire/siteprobe/result"
)

// fakeFetcher serves canned pages keyed by normalized URL. Unknown URLs fail.
type fakeFetcher struct {
	pages map[string]*PageContent
	errs  map[string]error
	delay time.Duration

	mu       sync.Mutex
	calls    []string
	inFlight atomic.Int32
	peak     atomic.Int32
	opts     []FetchOptions
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[string]*PageContent),
		errs:  make(map[string]error),
	}
}

func (f *fakeFetcher) page(u string, links ...any) *fakeFetcher {
	f.pages[u] = &PageContent{
		URL:        u,
		StatusCode: 200,
		HTML:       "<html>" + u + "</html>",
		Text:       "text of " + u,
		Metadata:   map[string]string{"title": u},
		Links:      links,
	}
	return f
}

func (f *fakeFetcher) fail(u string, err error) *fakeFetcher {
	f.errs[u] = err
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*PageContent, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	if p, ok := f.pages[rawURL]; ok {
		return p, nil
	}
	return nil, &FetchError{URL: rawURL, Kind: KindHTTP, StatusCode: 404, Err: errors.New("not found")}
}

func (f *fakeFetcher) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func runCrawl(t *testing.T, f PageFetcher, req Request) *result.Report {
	t.Helper()
	rep, err := New(f, Config{}).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rep
}

func pageURLs(rep *result.Report) []string {
	urls := make([]string, len(rep.Pages))
	for i, p := range rep.Pages {
		urls[i] = p.URL
	}
	return urls
}

func TestRun_SinglePageDepthZero(t *testing.T) {
	f := newFakeFetcher().page("https://example.com", "/a", "/b")

	rep := runCrawl(t, f, Request{StartURL: "https://example.com", MaxPages: 1, MaxDepth: 0})

	if rep.Status != result.StatusSuccess || rep.Outcome != result.OutcomeCompleted {
		t.Errorf("status/outcome = %s/%s", rep.Status, rep.Outcome)
	}
	if len(rep.Pages) != 1 || rep.Pages[0].URL != "https://example.com" {
		t.Fatalf("pages = %v, want only the start URL", pageURLs(rep))
	}
	if rep.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1", rep.TotalPages)
	}
	if got := f.called(); len(got) != 1 {
		t.Errorf("fetcher called for %v, want only the start URL", got)
	}
	// Links on leaf pages are still reported as edges.
	if len(rep.Edges) != 2 {
		t.Errorf("edges = %+v, want 2", rep.Edges)
	}
}

func TestRun_DepthCeiling(t *testing.T) {
	newChain := func() *fakeFetcher {
		return newFakeFetcher().
			page("https://example.com/a", "/b").
			page("https://example.com/b", "/c").
			page("https://example.com/c", "/d").
			page("https://example.com/d")
	}

	tests := []struct {
		maxDepth int
		want     []string
	}{
		{0, []string{"https://example.com/a"}},
		{1, []string{"https://example.com/a", "https://example.com/b"}},
		{2, []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("max_depth=%d", tt.maxDepth), func(t *testing.T) {
			f := newChain()
			rep := runCrawl(t, f, Request{StartURL: "https://example.com/a", MaxPages: 10, MaxDepth: tt.maxDepth})
			if got := pageURLs(rep); !slices.Equal(got, tt.want) {
				t.Errorf("pages = %v, want %v", got, tt.want)
			}
			if slices.Contains(f.called(), "https://example.com/d") {
				t.Error("D must never be fetched")
			}
			for _, p := range rep.Pages {
				if p.Depth > tt.maxDepth {
					t.Errorf("%s processed at depth %d > %d", p.URL, p.Depth, tt.maxDepth)
				}
			}
		})
	}
}

func TestRun_IncludePattern(t *testing.T) {
	f := newFakeFetcher().
		page("https://example.com", "/blog/post1", "/shop/item").
		page("https://example.com/blog/post1")

	rep := runCrawl(t, f, Request{
		StartURL:        "https://example.com",
		MaxPages:        10,
		MaxDepth:        1,
		IncludePatterns: []string{"/blog/"},
	})

	want := []string{"https://example.com", "https://example.com/blog/post1"}
	if got := pageURLs(rep); !slices.Equal(got, want) {
		t.Errorf("pages = %v, want %v", got, want)
	}
}

func TestRun_ExcludeBeatsInclude(t *testing.T) {
	f := newFakeFetcher().
		page("https://example.com", "/blog/post", "/blog/drafts/secret").
		page("https://example.com/blog/post").
		page("https://example.com/blog/drafts/secret")

	rep := runCrawl(t, f, Request{
		StartURL:        "https://example.com",
		MaxPages:        10,
		MaxDepth:        1,
		IncludePatterns: []string{"/blog/"},
		ExcludePatterns: []string{"/drafts/"},
	})

	for _, u := range pageURLs(rep) {
		if strings.Contains(u, "/drafts/") {
			t.Errorf("excluded URL %s was crawled", u)
		}
	}
	if len(rep.Pages) != 2 {
		t.Errorf("pages = %v, want start + /blog/post", pageURLs(rep))
	}
}

func TestRun_DomainScope(t *testing.T) {
	links := []any{
		"https://www.example.com/www",
		"https://blog.example.com/sub",
		"https://other.com/ext",
	}

	tests := []struct {
		name     string
		external bool
		want     int
	}{
		{"stay within domain", false, 3},
		{"follow external", true, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher().
				page("https://example.com", links...).
				page("https://www.example.com/www").
				page("https://blog.example.com/sub").
				page("https://other.com/ext")

			rep := runCrawl(t, f, Request{
				StartURL:       "https://example.com",
				MaxPages:       10,
				MaxDepth:       1,
				FollowExternal: tt.external,
			})
			if len(rep.Pages) != tt.want {
				t.Errorf("pages = %v, want %d", pageURLs(rep), tt.want)
			}
			if !tt.external && slices.Contains(pageURLs(rep), "https://other.com/ext") {
				t.Error("external page crawled while staying within domain")
			}
			// External targets remain edges for link checking either way.
			if !slices.Contains(rep.Edges, result.LinkEdge{Source: "https://example.com", Target: "https://other.com/ext"}) {
				t.Error("missing edge to external target")
			}
		})
	}
}

func TestRun_MaxPagesBudget(t *testing.T) {
	f := newFakeFetcher()
	var links []any
	for i := range 20 {
		u := fmt.Sprintf("https://example.com/p%d", i)
		links = append(links, u)
		f.page(u)
	}
	f.page("https://example.com", links...)

	rep := runCrawl(t, f, Request{StartURL: "https://example.com", MaxPages: 7, MaxDepth: 3, BatchSize: 3})

	if rep.TotalPages != 7 || len(f.called()) != 7 {
		t.Errorf("TotalPages = %d, fetches = %d, want 7", rep.TotalPages, len(f.called()))
	}
	if p := f.peak.Load(); p > 3 {
		t.Errorf("peak concurrent fetches = %d, want <= batch size 3", p)
	}
}

func TestRun_FailuresRecordedAndContinue(t *testing.T) {
	f := newFakeFetcher().
		page("https://example.com", "/ok", "/missing").
		page("https://example.com/ok")

	rep := runCrawl(t, f, Request{StartURL: "https://example.com", MaxPages: 10, MaxDepth: 1})

	if rep.Outcome != result.OutcomeCompleted {
		t.Errorf("outcome = %s", rep.Outcome)
	}
	if rep.Stats.PagesFailed != 1 || rep.Stats.PagesCrawled != 2 {
		t.Errorf("stats = %+v", rep.Stats)
	}
	var failed result.PageResult
	for _, p := range rep.Pages {
		if !p.Success {
			failed = p
		}
	}
	if failed.URL != "https://example.com/missing" || failed.StatusCode != 404 || failed.Error == "" {
		t.Errorf("failed page = %+v", failed)
	}
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], "/missing") {
		t.Errorf("warnings = %v", rep.Warnings)
	}
}

func TestRun_ConsecutiveFailureAbort(t *testing.T) {
	f := newFakeFetcher()
	var links []any
	for i := range 20 {
		links = append(links, fmt.Sprintf("/dead%d", i))
	}
	f.page("https://example.com", links...)

	rep := runCrawl(t, f, Request{StartURL: "https://example.com", MaxPages: 20, MaxDepth: 1, BatchSize: 2})

	if rep.Outcome != result.OutcomeAbortedErrors {
		t.Fatalf("outcome = %s, want aborted_errors", rep.Outcome)
	}
	if rep.Status != result.StatusSuccess {
		t.Errorf("status = %s, a report is always success", rep.Status)
	}
	// One good batch, then three failed batches of two.
	if got := len(f.called()); got != 7 {
		t.Errorf("fetches = %d, want 7", got)
	}
	if !strings.Contains(rep.Warnings[len(rep.Warnings)-1], "consecutive") {
		t.Errorf("last warning = %q", rep.Warnings[len(rep.Warnings)-1])
	}
}

func TestRun_SuccessResetsFailureCount(t *testing.T) {
	f := newFakeFetcher().page("https://example.com", "/d0", "/d1", "/ok", "/d2", "/d3", "/d4")
	f.page("https://example.com/ok")

	rep := runCrawl(t, f, Request{StartURL: "https://example.com", MaxPages: 20, MaxDepth: 1, BatchSize: 1})

	// Batches: start ok, d0, d1, ok (reset), d2, d3, d4 -> abort.
	if rep.Outcome != result.OutcomeAbortedErrors {
		t.Errorf("outcome = %s", rep.Outcome)
	}
	if got := len(f.called()); got != 7 {
		t.Errorf("fetches = %d, want 7", got)
	}
}

func TestRun_SafetyCap(t *testing.T) {
	f := newFakeFetcher()
	var links []any
	for i := range 10 {
		u := fmt.Sprintf("https://example.com/p%d", i)
		links = append(links, u)
		f.page(u)
	}
	f.page("https://example.com", links...)

	c := New(f, Config{MaxIterations: 3})
	rep, err := c.Run(context.Background(), Request{StartURL: "https://example.com", MaxPages: 10, MaxDepth: 1, BatchSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Outcome != result.OutcomeStoppedSafetyCap {
		t.Errorf("outcome = %s, want stopped_safety_cap", rep.Outcome)
	}
	if rep.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", rep.TotalPages)
	}
}

func TestRun_ConfigErrorFailsFast(t *testing.T) {
	f := newFakeFetcher()
	rep, err := New(f, Config{}).Run(context.Background(), Request{StartURL: "not a url"})

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
	if rep != nil {
		t.Error("no report expected on config error")
	}
	if len(f.called()) != 0 {
		t.Error("fetcher must not be called for an invalid request")
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := newFakeFetcher().page("https://example.com")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := New(f, Config{}).Run(ctx, Request{StartURL: "https://example.com"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Outcome != result.OutcomeCancelled || len(rep.Warnings) == 0 {
		t.Errorf("outcome = %s, warnings = %v", rep.Outcome, rep.Warnings)
	}
	if len(f.called()) != 0 {
		t.Error("no fetch expected after cancellation")
	}
}

func TestRun_CancelDuringPolitenessDelay(t *testing.T) {
	f := newFakeFetcher().page("https://example.com", "/a").page("https://example.com/a")
	ctx, cancel := context.WithCancel(context.Background())

	req := Request{
		StartURL:        "https://example.com",
		MaxPages:        5,
		MaxDepth:        1,
		PolitenessDelay: time.Hour,
		Progress:        func(int, int, string) { cancel() },
	}

	done := make(chan *result.Report, 1)
	go func() {
		rep, _ := New(f, Config{}).Run(ctx, req)
		done <- rep
	}()

	select {
	case rep := <-done:
		if rep.Outcome != result.OutcomeCancelled {
			t.Errorf("outcome = %s, want cancelled", rep.Outcome)
		}
		if rep.TotalPages != 1 {
			t.Errorf("TotalPages = %d, want 1 (partial result kept)", rep.TotalPages)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_ProgressCallback(t *testing.T) {
	f := newFakeFetcher().
		page("https://example.com", "/a", "/b").
		page("https://example.com/a").
		page("https://example.com/b")

	type call struct {
		processed, max int
		url            string
	}
	var calls []call
	req := Request{
		StartURL:  "https://example.com",
		MaxPages:  10,
		MaxDepth:  1,
		BatchSize: 5,
		Progress: func(processed, maxPages int, currentURL string) {
			calls = append(calls, call{processed, maxPages, currentURL})
		},
	}
	runCrawl(t, f, req)

	want := []call{
		{1, 10, "https://example.com"},
		{3, 10, "https://example.com/b"},
	}
	if !slices.Equal(calls, want) {
		t.Errorf("progress calls = %+v, want %+v", calls, want)
	}
}

func TestRun_FormatsGateContent(t *testing.T) {
	tests := []struct {
		name    string
		formats []Format
		check   func(t *testing.T, p result.PageResult)
	}{
		{"default text only", nil, func(t *testing.T, p result.PageResult) {
			if p.Text == "" || p.HTML != "" || p.Links != nil || p.Metadata != nil {
				t.Errorf("page = %+v", p)
			}
		}},
		{"links and metadata", []Format{FormatLinks, FormatMetadata}, func(t *testing.T, p result.PageResult) {
			if p.Text != "" || len(p.Links) != 1 || p.Metadata["title"] == "" {
				t.Errorf("page = %+v", p)
			}
		}},
		{"full", []Format{FormatFull}, func(t *testing.T, p result.PageResult) {
			if p.Text == "" || p.HTML == "" || len(p.Links) != 1 || p.Metadata == nil {
				t.Errorf("page = %+v", p)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher().page("https://example.com", "/a")
			rep := runCrawl(t, f, Request{StartURL: "https://example.com", MaxPages: 1, Formats: tt.formats})
			tt.check(t, rep.Pages[0])
			if !f.opts[0].Wants(FormatLinks) {
				t.Error("fetcher should always be asked for links")
			}
		})
	}
}

func TestRun_PassesFetchOptions(t *testing.T) {
	f := newFakeFetcher().page("https://example.com")
	runCrawl(t, f, Request{
		StartURL: "https://example.com",
		MaxPages: 1,
		Fetch:    FetchOptions{Cache: true, Stealth: true, Device: "mobile", WaitUntil: "networkidle", Timeout: 2 * time.Second},
	})

	got := f.opts[0]
	if !got.Cache || !got.Stealth || got.Device != "mobile" || got.WaitUntil != "networkidle" || got.Timeout != 2*time.Second {
		t.Errorf("fetch options = %+v", got)
	}
}

func TestRun_EdgesDeduplicated(t *testing.T) {
	f := newFakeFetcher().
		page("https://example.com", "/a", "/a/", "/a#x", map[string]any{"href": "/a"}).
		page("https://example.com/a", "/")

	rep := runCrawl(t, f, Request{StartURL: "https://example.com", MaxPages: 10, MaxDepth: 1})

	want := []result.LinkEdge{
		{Source: "https://example.com", Target: "https://example.com/a"},
		{Source: "https://example.com/a", Target: "https://example.com"},
	}
	if !slices.Equal(rep.Edges, want) {
		t.Errorf("edges = %+v, want %+v", rep.Edges, want)
	}
}

// TestRun_RandomGraphInvariants crawls random link graphs and checks the
// budget, depth and uniqueness properties on every run.
func TestRun_RandomGraphInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := range 25 {
		nodes := 5 + rng.IntN(30)
		f := newFakeFetcher()
		for i := range nodes {
			var links []any
			for range rng.IntN(6) {
				links = append(links, fmt.Sprintf("/n%d", rng.IntN(nodes)))
			}
			if rng.IntN(10) == 0 {
				f.fail(fmt.Sprintf("https://example.com/n%d", i), errors.New("boom"))
				continue
			}
			f.page(fmt.Sprintf("https://example.com/n%d", i), links...)
		}

		req := Request{
			StartURL:  "https://example.com/n0",
			MaxPages:  1 + rng.IntN(15),
			MaxDepth:  rng.IntN(4),
			BatchSize: 1 + rng.IntN(5),
		}
		rep := runCrawl(t, f, req)

		if rep.TotalPages > req.MaxPages {
			t.Errorf("trial %d: TotalPages %d > MaxPages %d", trial, rep.TotalPages, req.MaxPages)
		}
		seen := make(map[string]bool)
		for _, u := range f.called() {
			if seen[u] {
				t.Errorf("trial %d: %s fetched twice", trial, u)
			}
			seen[u] = true
		}
		for _, p := range rep.Pages {
			if p.Depth > req.MaxDepth {
				t.Errorf("trial %d: %s at depth %d > %d", trial, p.URL, p.Depth, req.MaxDepth)
			}
		}
	}
}
