// Package main provides the siteprobe CLI entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lukemcguire/siteprobe/config"
)

// errBrokenLinks makes the process exit non-zero without printing anything
// beyond the report.
var errBrokenLinks = errors.New("broken links found")

// Output formats accepted by --output.
const (
	outputText     = "text"
	outputJSON     = "json"
	outputCSV      = "csv"
	outputMarkdown = "markdown"
)

type options struct {
	configPath string
	output     string
	noTUI      bool
	verbose    bool
	noCheck    bool

	maxPages       int
	maxDepth       int
	batchSize      int
	delay          time.Duration
	include        []string
	exclude        []string
	followExternal bool
	formats        []string

	timeout       time.Duration
	stealth       bool
	device        string
	respectRobots bool
	pageCache     bool

	concurrency int
	cacheKind   string
	redisAddr   string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "siteprobe [flags] <url>",
		Short: "Crawl a website and report broken links",
		Long: heredoc.Doc(`
			siteprobe crawls a website breadth-first from a start URL, bounded by
			link depth and a page budget, then checks every discovered link and
			reports the broken ones.

			Settings are read from the config file (by default under the XDG
			config directory) and overridden by flags.
		`),
		Example: heredoc.Doc(`
			$ siteprobe https://example.com
			$ siteprobe --max-pages 50 --max-depth 3 --output json https://example.com
			$ siteprobe --exclude '/blog/' --formats text,links --no-check https://example.com
			$ siteprobe --cache redis --redis-addr localhost:6379 https://example.com
		`),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			opts.apply(cmd.Flags(), cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), args[0], cfg, opts)
		},
	}

	opts.register(cmd.Flags())
	return cmd
}

// register binds the flags to o. Defaults mirror config.Default; only flags
// the user sets override the config file.
func (o *options) register(flags *pflag.FlagSet) {
	def := config.Default()
	flags.StringVarP(&o.configPath, "config", "c", config.DefaultPath(), "path to the YAML config file")
	flags.StringVarP(&o.output, "output", "o", outputText, "output format: text, json, csv or markdown")
	flags.BoolVar(&o.noTUI, "no-tui", false, "disable the interactive progress display")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "log debug output to stderr")
	flags.BoolVar(&o.noCheck, "no-check", false, "crawl only, skip link checking")

	flags.IntVar(&o.maxPages, "max-pages", def.Crawl.MaxPages, "maximum number of pages to fetch")
	flags.IntVar(&o.maxDepth, "max-depth", def.Crawl.MaxDepth, "maximum link depth from the start URL")
	flags.IntVar(&o.batchSize, "batch-size", def.Crawl.BatchSize, "pages fetched concurrently per batch")
	flags.DurationVar(&o.delay, "delay", def.Crawl.PolitenessDelay.Duration, "pause between batches")
	flags.StringSliceVar(&o.include, "include", nil, "only crawl URLs matching these regular expressions")
	flags.StringSliceVar(&o.exclude, "exclude", nil, "skip URLs matching these regular expressions")
	flags.BoolVar(&o.followExternal, "follow-external", false, "crawl pages outside the start domain")
	flags.StringSliceVar(&o.formats, "formats", def.Crawl.Formats, "page content to keep: text, html, links, metadata, full")

	flags.DurationVar(&o.timeout, "timeout", def.Fetch.Timeout.Duration, "per-page fetch timeout")
	flags.BoolVar(&o.stealth, "stealth", false, "send browser-like request headers")
	flags.StringVar(&o.device, "device", def.Fetch.Device, "device profile for stealth requests: desktop, mobile, tablet")
	flags.BoolVar(&o.respectRobots, "respect-robots", false, "skip pages disallowed by robots.txt")
	flags.BoolVar(&o.pageCache, "page-cache", false, "reuse cached page fetches")

	flags.IntVar(&o.concurrency, "concurrency", def.LinkCheck.Concurrency, "concurrent link checks")
	flags.StringVar(&o.cacheKind, "cache", def.Cache.Backend, "cache backend: memory, sqlite or redis")
	flags.StringVar(&o.redisAddr, "redis-addr", "", "redis address for the redis cache backend")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
}

// loadConfig reads the config file. A missing file is only an error when the
// path was given explicitly.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrConfigNotFound) && !explicit {
		def := config.Default()
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply overrides cfg with the flags the user set.
func (o *options) apply(flags *pflag.FlagSet, cfg *config.Config) {
	set := flags.Changed
	if set("max-pages") {
		cfg.Crawl.MaxPages = o.maxPages
	}
	if set("max-depth") {
		cfg.Crawl.MaxDepth = o.maxDepth
	}
	if set("batch-size") {
		cfg.Crawl.BatchSize = o.batchSize
	}
	if set("delay") {
		cfg.Crawl.PolitenessDelay = config.DurationFrom(o.delay)
	}
	if set("include") {
		cfg.Crawl.Include = o.include
	}
	if set("exclude") {
		cfg.Crawl.Exclude = o.exclude
	}
	if set("follow-external") {
		cfg.Crawl.FollowExternal = o.followExternal
	}
	if set("formats") {
		cfg.Crawl.Formats = o.formats
	}
	if set("timeout") {
		cfg.Fetch.Timeout = config.DurationFrom(o.timeout)
	}
	if set("stealth") {
		cfg.Fetch.Stealth = o.stealth
	}
	if set("device") {
		cfg.Fetch.Device = o.device
	}
	if set("respect-robots") {
		cfg.Fetch.RespectRobots = o.respectRobots
	}
	if set("page-cache") {
		cfg.Fetch.Cache = o.pageCache
	}
	if set("concurrency") {
		cfg.LinkCheck.Concurrency = o.concurrency
	}
	if o.noCheck {
		cfg.LinkCheck.Enabled = false
	}
	if set("cache") {
		cfg.Cache.Backend = o.cacheKind
	}
	if set("redis-addr") {
		cfg.Cache.RedisAddr = o.redisAddr
	}
	if set("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
}

func validateOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputCSV, outputMarkdown:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want text, json, csv or markdown)", format)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errBrokenLinks) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
