package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/lukemcguire/siteprobe/urlutil"
)

// Format names a piece of page content to keep in each PageResult.
type Format string

const (
	FormatText     Format = "text"
	FormatHTML     Format = "html"
	FormatLinks    Format = "links"
	FormatMetadata Format = "metadata"
	// FormatFull implies every other format.
	FormatFull Format = "full"
)

// Defaults applied by DefaultRequest and, for zero values, by Run.
const (
	DefaultMaxPages        = 10
	DefaultMaxDepth        = 2
	DefaultBatchSize       = 5
	DefaultPolitenessDelay = time.Second
	DefaultFetchTimeout    = 30 * time.Second
)

var (
	errMissingHost   = errors.New("must have a host")
	errBadScheme     = errors.New("scheme must be http or https")
	errNegative      = errors.New("must not be negative")
	errUnknownFormat = errors.New("unknown output format")
	errWaitUntil     = errors.New("must be one of domcontentloaded, load, networkidle")
)

// Request describes one crawl.
type Request struct {
	StartURL string
	MaxPages int
	// MaxDepth is the link distance from StartURL. Zero crawls only StartURL.
	MaxDepth        int
	Formats         []Format
	IncludePatterns []string
	ExcludePatterns []string
	// FollowExternal lifts the restriction to StartURL's domain.
	FollowExternal bool
	BatchSize      int
	// PolitenessDelay is waited between batches. Zero disables it.
	PolitenessDelay time.Duration
	Fetch           FetchOptions
	Progress        ProgressFunc
}

// DefaultRequest returns a Request for startURL with the standard limits:
// 10 pages, depth 2, batches of 5, one second between batches, text output,
// and crawling restricted to the start domain.
func DefaultRequest(startURL string) Request {
	return Request{
		StartURL:        startURL,
		MaxPages:        DefaultMaxPages,
		MaxDepth:        DefaultMaxDepth,
		Formats:         []Format{FormatText},
		BatchSize:       DefaultBatchSize,
		PolitenessDelay: DefaultPolitenessDelay,
		Fetch:           FetchOptions{Timeout: DefaultFetchTimeout},
	}
}

// plan is a validated Request with defaults filled in.
type plan struct {
	startURL  string
	startHost string
	maxPages  int
	maxDepth  int
	batchSize int
	delay     time.Duration
	keep      map[Format]bool
	external  bool
	patterns  urlutil.Patterns
	fetch     FetchOptions
	progress  ProgressFunc
}

func prepare(req Request) (plan, error) {
	raw := strings.TrimSpace(req.StartURL)
	parsed, err := url.Parse(raw)
	switch {
	case raw == "":
		return plan{}, &ConfigError{Field: "start_url", Value: req.StartURL, Err: urlutil.ErrEmptyURL}
	case err != nil:
		return plan{}, &ConfigError{Field: "start_url", Value: req.StartURL, Err: err}
	case parsed.Scheme != "http" && parsed.Scheme != "https":
		return plan{}, &ConfigError{Field: "start_url", Value: req.StartURL, Err: errBadScheme}
	case parsed.Hostname() == "":
		return plan{}, &ConfigError{Field: "start_url", Value: req.StartURL, Err: errMissingHost}
	}
	startURL, err := urlutil.Normalize(raw)
	if err != nil {
		return plan{}, &ConfigError{Field: "start_url", Value: req.StartURL, Err: err}
	}

	if req.MaxDepth < 0 {
		return plan{}, &ConfigError{Field: "max_depth", Value: fmt.Sprint(req.MaxDepth), Err: errNegative}
	}

	keep, err := formatSet(req.Formats)
	if err != nil {
		return plan{}, err
	}

	switch req.Fetch.WaitUntil {
	case "", "domcontentloaded", "load", "networkidle":
	default:
		return plan{}, &ConfigError{Field: "wait_until", Value: req.Fetch.WaitUntil, Err: errWaitUntil}
	}

	patterns, err := urlutil.CompilePatterns(req.IncludePatterns, req.ExcludePatterns)
	if err != nil {
		return plan{}, &ConfigError{Field: "patterns", Err: err}
	}

	p := plan{
		startURL:  startURL,
		startHost: urlutil.Hostname(startURL),
		maxPages:  req.MaxPages,
		maxDepth:  req.MaxDepth,
		batchSize: req.BatchSize,
		delay:     max(req.PolitenessDelay, 0),
		keep:      keep,
		external:  req.FollowExternal,
		patterns:  patterns,
		fetch:     req.Fetch,
		progress:  req.Progress,
	}
	if p.maxPages <= 0 {
		p.maxPages = DefaultMaxPages
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if p.fetch.Timeout <= 0 {
		p.fetch.Timeout = DefaultFetchTimeout
	}
	// Links are always needed to expand the frontier, whatever is kept.
	p.fetch.Formats = []Format{FormatLinks}
	for f := range keep {
		if f != FormatLinks {
			p.fetch.Formats = append(p.fetch.Formats, f)
		}
	}
	slices.Sort(p.fetch.Formats)
	return p, nil
}

func formatSet(formats []Format) (map[Format]bool, error) {
	if len(formats) == 0 {
		formats = []Format{FormatText}
	}
	keep := make(map[Format]bool, 4)
	for _, f := range formats {
		switch Format(strings.ToLower(string(f))) {
		case FormatText:
			keep[FormatText] = true
		case FormatHTML:
			keep[FormatHTML] = true
		case FormatLinks:
			keep[FormatLinks] = true
		case FormatMetadata:
			keep[FormatMetadata] = true
		case FormatFull:
			keep[FormatText], keep[FormatHTML], keep[FormatLinks], keep[FormatMetadata] = true, true, true, true
		default:
			return nil, &ConfigError{Field: "formats", Value: string(f), Err: errUnknownFormat}
		}
	}
	return keep, nil
}

// inScope applies the domain restriction and the include/exclude patterns.
func (p plan) inScope(rawURL string) bool {
	if !p.external && !urlutil.IsSameDomain(rawURL, p.startHost) {
		return false
	}
	return p.patterns.Allow(rawURL)
}
