// Package crawler implements a bounded breadth-first crawl. A single
// coordinator owns the frontier and applies every state change, while page
// fetches for a batch run concurrently through a PageFetcher.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lukemcguire/siteprobe/metrics"
	"github.com/lukemcguire/siteprobe/result"
)

// DefaultFailureThreshold is the number of consecutive batches without a
// single successful fetch after which a crawl is aborted.
const DefaultFailureThreshold = 3

// Config tunes the engine independently of any single request.
type Config struct {
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	// FailureThreshold defaults to DefaultFailureThreshold.
	FailureThreshold int
	// MaxIterations caps the number of batches. Zero means max(50, 2*MaxPages).
	MaxIterations int
}

// Crawler runs crawls against a PageFetcher. A Crawler holds no per-crawl
// state, so one instance may run several crawls concurrently.
type Crawler struct {
	fetcher PageFetcher
	cfg     Config
	log     zerolog.Logger
}

// New creates a Crawler that fetches pages through f.
func New(f PageFetcher, cfg Config) *Crawler {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	return &Crawler{
		fetcher: f,
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "crawler").Logger(),
	}
}

// fetchOutcome is what a fetch worker hands back to the coordinator.
type fetchOutcome struct {
	entry   FrontierEntry
	page    *PageContent
	err     error
	elapsed time.Duration
	at      time.Time
}

// crawlRun is the state of one Run call.
type crawlRun struct {
	c        *Crawler
	plan     plan
	frontier *Frontier
	edges    map[result.LinkEdge]struct{}
	edgeList []result.LinkEdge
	warnings []string
	failed   int
	log      zerolog.Logger
}

// Run crawls from req.StartURL and returns the report. The only error is a
// *ConfigError for an invalid request; fetch failures, the consecutive
// failure abort, the iteration cap and cancellation all produce a report
// with warnings. ctx is checked between batches.
func (c *Crawler) Run(ctx context.Context, req Request) (*result.Report, error) {
	p, err := prepare(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	run := &crawlRun{
		c:        c,
		plan:     p,
		frontier: NewFrontier(p.maxPages),
		edges:    make(map[result.LinkEdge]struct{}),
		log:      c.log.With().Str("start_url", p.startURL).Logger(),
	}
	run.frontier.AddURL(p.startURL, 0)

	run.log.Info().
		Int("max_pages", p.maxPages).
		Int("max_depth", p.maxDepth).
		Int("batch_size", p.batchSize).
		Msg("crawl started")

	outcome := run.loop(ctx)
	c.cfg.Metrics.ObserveOutcome(string(outcome))

	pages := run.frontier.Results()
	rep := &result.Report{
		RunID:       uuid.NewString(),
		StartURL:    p.startURL,
		Status:      result.StatusSuccess,
		Outcome:     outcome,
		TotalPages:  len(pages),
		Pages:       pages,
		Edges:       run.edgeList,
		BrokenLinks: []result.BrokenLink{},
		Warnings:    run.warnings,
		StartedAt:   started,
		Stats: result.Stats{
			PagesCrawled: len(pages) - run.failed,
			PagesFailed:  run.failed,
			Duration:     time.Since(started),
		},
	}

	run.log.Info().
		Str("outcome", string(outcome)).
		Int("pages", rep.TotalPages).
		Int("failed", run.failed).
		Int("edges", len(rep.Edges)).
		Dur("duration", rep.Stats.Duration).
		Msg("crawl finished")
	return rep, nil
}

func (r *crawlRun) loop(ctx context.Context) result.Outcome {
	limit := r.c.cfg.MaxIterations
	if limit <= 0 {
		limit = max(50, 2*r.plan.maxPages)
	}

	consecutiveFailures := 0
	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			r.warn("crawl cancelled after %d pages: %v", r.frontier.PagesCrawled(), err)
			return result.OutcomeCancelled
		}
		if iteration > limit {
			r.warn("crawl stopped after %d batches: iteration limit reached", limit)
			return result.OutcomeStoppedSafetyCap
		}

		batch := r.frontier.NextBatch(r.plan.batchSize)
		if len(batch) == 0 {
			return result.OutcomeCompleted
		}

		minDepth := batch[0].Depth
		for _, entry := range batch[1:] {
			minDepth = min(minDepth, entry.Depth)
		}
		if minDepth > r.plan.maxDepth {
			return result.OutcomeCompleted
		}

		eligible := make([]FrontierEntry, 0, len(batch))
		for _, entry := range batch {
			if entry.Depth > r.plan.maxDepth {
				r.log.Debug().Str("url", entry.URL).Int("depth", entry.Depth).Msg("skipping URL beyond max depth")
				continue
			}
			eligible = append(eligible, entry)
		}

		successes, enqueued := r.apply(r.fetchAll(ctx, eligible))
		r.c.cfg.Metrics.ObserveBatch(enqueued, r.frontier.Pending())
		r.log.Debug().
			Int("batch", iteration).
			Int("size", len(eligible)).
			Int("successes", successes).
			Int("enqueued", enqueued).
			Msg("batch processed")

		if successes == 0 {
			consecutiveFailures++
			if consecutiveFailures >= r.c.cfg.FailureThreshold {
				r.warn("crawl aborted after %d consecutive batches without a successful fetch", consecutiveFailures)
				return result.OutcomeAbortedErrors
			}
		} else {
			consecutiveFailures = 0
		}

		if r.plan.progress != nil {
			r.plan.progress(r.frontier.PagesCrawled(), r.plan.maxPages, batch[len(batch)-1].URL)
		}

		if r.frontier.Pending() == 0 || r.frontier.PagesCrawled() >= r.plan.maxPages {
			continue
		}
		// A cancelled sleep is picked up at the top of the loop.
		_ = sleepCtx(ctx, r.plan.delay)
	}
}

// fetchAll fetches every entry concurrently. Workers only compute; the
// returned outcomes are in batch order. Fetches run on a context detached
// from cancellation and bounded by the per-fetch timeout.
func (r *crawlRun) fetchAll(ctx context.Context, entries []FrontierEntry) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(entries))
	workCtx := context.WithoutCancel(ctx)

	var group errgroup.Group
	group.SetLimit(r.plan.batchSize)
	for i, entry := range entries {
		group.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(workCtx, r.plan.fetch.Timeout)
			defer cancel()

			start := time.Now()
			page, err := r.c.fetcher.Fetch(fetchCtx, entry.URL, r.plan.fetch)
			outcomes[i] = fetchOutcome{
				entry:   entry,
				page:    page,
				err:     err,
				elapsed: time.Since(start),
				at:      start,
			}
			return nil
		})
	}
	_ = group.Wait()
	return outcomes
}

// apply folds fetch outcomes into the frontier and returns the number of
// successful fetches and newly enqueued URLs.
func (r *crawlRun) apply(outcomes []fetchOutcome) (successes, enqueued int) {
	for _, o := range outcomes {
		if o.err == nil && o.page == nil {
			o.err = &FetchError{URL: o.entry.URL, Kind: KindContent, Err: errors.New("fetcher returned no content")}
		}
		if o.err == nil && o.page.StatusCode >= 400 {
			o.err = &FetchError{URL: o.entry.URL, Kind: KindHTTP, StatusCode: o.page.StatusCode, Err: errors.New("error status")}
		}
		if o.err != nil {
			r.recordFailure(o)
			continue
		}

		successes++
		links := linkTargets(o.entry.URL, o.page.Links)
		r.frontier.Record(r.pageResult(o, links))
		r.c.cfg.Metrics.ObserveFetch(o.page.StatusCode, true, o.elapsed)

		for _, link := range links {
			r.addEdge(o.entry.URL, link)
		}
		if o.entry.Depth >= r.plan.maxDepth {
			continue
		}
		for _, link := range links {
			if r.plan.inScope(link) && r.frontier.AddURL(link, o.entry.Depth+1) {
				enqueued++
			}
		}
	}
	return successes, enqueued
}

func (r *crawlRun) recordFailure(o fetchOutcome) {
	status := 0
	var fetchErr *FetchError
	if errors.As(o.err, &fetchErr) {
		status = fetchErr.StatusCode
	}

	r.failed++
	r.frontier.Record(result.PageResult{
		URL:        o.entry.URL,
		Depth:      o.entry.Depth,
		StatusCode: status,
		Error:      o.err.Error(),
		FetchedAt:  o.at,
	})
	r.c.cfg.Metrics.ObserveFetch(status, false, o.elapsed)
	r.warn("failed to fetch %s: %v", o.entry.URL, o.err)
	r.log.Warn().Err(o.err).Str("url", o.entry.URL).Int("depth", o.entry.Depth).Msg("page fetch failed")
}

func (r *crawlRun) pageResult(o fetchOutcome, links []string) result.PageResult {
	res := result.PageResult{
		URL:        o.entry.URL,
		Depth:      o.entry.Depth,
		Success:    true,
		StatusCode: o.page.StatusCode,
		FetchedAt:  o.at,
	}
	if r.plan.keep[FormatText] {
		res.Text = o.page.Text
	}
	if r.plan.keep[FormatHTML] {
		res.HTML = o.page.HTML
		res.CleanedHTML = o.page.CleanedHTML
	}
	if r.plan.keep[FormatLinks] {
		res.Links = links
	}
	if r.plan.keep[FormatMetadata] {
		res.Metadata = o.page.Metadata
	}
	return res
}

func (r *crawlRun) addEdge(source, target string) {
	edge := result.LinkEdge{Source: source, Target: target}
	if _, ok := r.edges[edge]; ok {
		return
	}
	r.edges[edge] = struct{}{}
	r.edgeList = append(r.edgeList, edge)
}

func (r *crawlRun) warn(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
