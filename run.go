package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/adrg/xdg"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/lukemcguire/siteprobe/cache"
	"github.com/lukemcguire/siteprobe/config"
	"github.com/lukemcguire/siteprobe/crawler"
	"github.com/lukemcguire/siteprobe/fetcher"
	"github.com/lukemcguire/siteprobe/linkcheck"
	"github.com/lukemcguire/siteprobe/metrics"
	"github.com/lukemcguire/siteprobe/result"
	"github.com/lukemcguire/siteprobe/tui"
)

// run wires the pipeline for one start URL and writes the report to w.
func run(ctx context.Context, w io.Writer, startURL string, cfg *config.Config, opts *options) error {
	useTUI := !opts.noTUI && isTerminal(w)

	logger, closeLog, err := newLogger(cfg, opts.verbose, useTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := openStore(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("close cache")
		}
	}()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, m, logger)
		defer stop()
	}

	p := newPipeline(cfg, store, m, logger)
	req := cfg.Request(startURL)

	if !useTUI {
		rep, err := p.run(ctx, req)
		if err != nil {
			return err
		}
		return finish(w, rep, opts.output)
	}

	progressCh := make(chan tui.Event, 100)
	req.Progress = tui.CrawlProgress(progressCh)
	p.checkProgress = tui.CheckProgress(progressCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	model := tui.NewModel(runCtx, cancel, func(ctx context.Context) (*result.Report, error) {
		return p.run(ctx, req)
	}, progressCh)

	final, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	finalModel := final.(tui.Model)
	if err := finalModel.Err(); err != nil {
		return err
	}
	rep := finalModel.Report()
	if rep == nil {
		return context.Canceled
	}
	// The TUI already rendered the text summary.
	if opts.output == outputText {
		if finalModel.HasBrokenLinks() {
			return errBrokenLinks
		}
		return nil
	}
	return finish(w, rep, opts.output)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// pipeline crawls and then checks the links the crawl discovered.
type pipeline struct {
	cfg           *config.Config
	crawler       *crawler.Crawler
	store         cache.Store
	metrics       *metrics.Metrics
	log           zerolog.Logger
	checkProgress func(checked, total int, target string)
}

func newPipeline(cfg *config.Config, store cache.Store, m *metrics.Metrics, logger zerolog.Logger) *pipeline {
	policy := fetcher.DefaultRetryPolicy()
	policy.MaxRetries = cfg.Fetch.MaxRetries

	f := fetcher.New(fetcher.Config{
		UserAgent:     cfg.Fetch.UserAgent,
		RateLimit:     cfg.Fetch.RateLimit,
		RetryPolicy:   policy,
		RespectRobots: cfg.Fetch.RespectRobots,
		MaxBodyBytes:  cfg.Fetch.MaxBodyBytes,
		Cache:         store,
		Logger:        logger,
		Metrics:       m,
	})

	return &pipeline{
		cfg:     cfg,
		crawler: crawler.New(f, crawler.Config{Logger: logger, Metrics: m}),
		store:   store,
		metrics: m,
		log:     logger,
	}
}

func (p *pipeline) run(ctx context.Context, req crawler.Request) (*result.Report, error) {
	rep, err := p.crawler.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if !p.cfg.LinkCheck.Enabled {
		return rep, nil
	}

	checker := linkcheck.New(p.store, linkcheck.Config{
		Logger:         p.log,
		Metrics:        p.metrics,
		TTL:            p.cfg.LinkCheck.TTL.Duration,
		SubBatchPause:  p.cfg.LinkCheck.SubBatchPause.Duration,
		LenientDomains: p.cfg.LinkCheck.LenientDomains,
		Progress:       p.checkProgress,
	})
	checks := checker.CheckAll(ctx, rep.Edges, p.cfg.LinkCheck.Concurrency)
	return result.Aggregate(rep, checks), nil
}

// finish writes rep in the requested format and reports broken links as an
// error so the process exits non-zero.
func finish(w io.Writer, rep *result.Report, format string) error {
	if err := writeReport(w, rep, format); err != nil {
		return err
	}
	if len(rep.BrokenLinks) > 0 {
		return errBrokenLinks
	}
	return nil
}

func writeReport(w io.Writer, rep *result.Report, format string) error {
	switch format {
	case outputJSON:
		return result.WriteJSON(w, rep)
	case outputCSV:
		return result.WriteCSV(w, rep.BrokenLinks)
	case outputMarkdown:
		return result.WriteMarkdown(w, rep)
	default:
		result.PrintResults(w, rep)
		return nil
	}
}

// openStore opens the cache backend shared by the fetcher and the checker.
// The SQLite file persists across runs, so expired rows are purged on open.
func openStore(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (cache.Store, error) {
	switch cfg.Backend {
	case config.CacheSQLite:
		db, err := cache.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		purged, err := db.Purge(ctx)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Debug().Str("path", cfg.Path).Int64("purged", purged).Msg("opened cache")
		return db, nil
	case config.CacheRedis:
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return cache.DialRedis(dialCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return cache.NewMemory(), nil
	}
}

// newLogger logs to stderr, as console output when verbose and JSON
// otherwise. While the TUI owns the terminal, logs go to a file under the
// XDG state directory.
func newLogger(cfg *config.Config, verbose, useTUI bool) (zerolog.Logger, func(), error) {
	var out io.Writer = os.Stderr
	closeFn := func() {}

	if useTUI {
		path, err := xdg.StateFile(config.AppName + "/" + config.AppName + ".log")
		if err != nil {
			return zerolog.Nop(), closeFn, fmt.Errorf("log file: %w", err)
		}
		fh, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path under XDG state dir
		if err != nil {
			return zerolog.Nop(), closeFn, fmt.Errorf("open log file: %w", err)
		}
		out = fh
		closeFn = func() { _ = fh.Close() }
	} else if verbose {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(out).Level(cfg.LogLevel()).With().Timestamp().Logger()
	return logger, closeFn, nil
}

// serveMetrics exposes m on addr/metrics until the returned stop is called.
func serveMetrics(addr string, m *metrics.Metrics, logger zerolog.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
