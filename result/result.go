// Package result holds the crawl and link-check data model shared by the
// crawler, the link checker and the report writers.
package result

import "time"

// Status is the overall report status. Once a report exists its status is
// always StatusSuccess; partial runs are described by Outcome and Warnings.
type Status string

// StatusSuccess is the only status a produced report carries.
const StatusSuccess Status = "success"

// Outcome is the terminal state the crawl engine reached.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeAbortedErrors    Outcome = "aborted_errors"
	OutcomeStoppedSafetyCap Outcome = "stopped_safety_cap"
	OutcomeCancelled        Outcome = "cancelled"
)

// PageResult is the outcome of fetching one crawled page. Content fields are
// only populated for the output formats that were requested.
type PageResult struct {
	URL         string            `json:"url"`
	Depth       int               `json:"depth"`
	Success     bool              `json:"success"`
	StatusCode  int               `json:"status_code,omitempty"`
	Text        string            `json:"text,omitempty"`
	HTML        string            `json:"html,omitempty"`
	CleanedHTML string            `json:"cleaned_html,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Links       []string          `json:"links,omitempty"`
	Error       string            `json:"error,omitempty"`
	FetchedAt   time.Time         `json:"fetched_at"`
}

// LinkEdge is a hyperlink from a crawled page to a target URL.
type LinkEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// LinkCheckResult is the health verdict for one target URL.
type LinkCheckResult struct {
	URL           string        `json:"url"`
	IsBroken      bool          `json:"is_broken"`
	StatusCode    int           `json:"status_code,omitempty"`
	Error         string        `json:"error,omitempty"`
	ErrorCategory ErrorCategory `json:"error_type,omitempty"`
	Lenient       bool          `json:"lenient,omitempty"`
	Strategy      string        `json:"strategy,omitempty"`
	CheckedAt     time.Time     `json:"checked_at"`
}

// BrokenLink is a broken target together with the page that links to it.
type BrokenLink struct {
	Source        string        `json:"source_page"`
	Target        string        `json:"url"`
	StatusCode    int           `json:"status_code,omitempty"`
	Error         string        `json:"error,omitempty"`
	ErrorCategory ErrorCategory `json:"error_type,omitempty"`
}

// Stats holds summary counters for a run.
type Stats struct {
	PagesCrawled int           `json:"pages_crawled"`
	PagesFailed  int           `json:"pages_failed"`
	LinksChecked int           `json:"links_checked"`
	BrokenCount  int           `json:"broken_count"`
	Duration     time.Duration `json:"duration_ns"`
}

// Report is the combined output of a crawl and, once aggregated, its link
// health checks.
type Report struct {
	RunID       string            `json:"run_id"`
	StartURL    string            `json:"start_url"`
	Status      Status            `json:"status"`
	Outcome     Outcome           `json:"outcome"`
	TotalPages  int               `json:"total_pages"`
	Pages       []PageResult      `json:"results"`
	Edges       []LinkEdge        `json:"edges,omitempty"`
	LinkChecks  []LinkCheckResult `json:"link_checks,omitempty"`
	BrokenLinks []BrokenLink      `json:"broken_links"`
	Warnings    []string          `json:"warnings,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	Stats       Stats             `json:"stats"`
}
