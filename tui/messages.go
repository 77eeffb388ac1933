package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/siteprobe/crawler"
	"github.com/lukemcguire/siteprobe/result"
)

// Phase is the stage of a probe run.
type Phase string

const (
	PhaseCrawl Phase = "crawl"
	PhaseCheck Phase = "check"
)

// Event is a progress update delivered over a channel.
type Event struct {
	Phase     Phase
	Processed int
	Total     int
	URL       string
}

// CrawlProgress returns a crawler.ProgressFunc forwarding to ch. Updates are
// dropped rather than blocking the crawl when ch is full.
func CrawlProgress(ch chan<- Event) crawler.ProgressFunc {
	return func(processed, maxPages int, currentURL string) {
		send(ch, Event{Phase: PhaseCrawl, Processed: processed, Total: maxPages, URL: currentURL})
	}
}

// CheckProgress is the link-check counterpart of CrawlProgress.
func CheckProgress(ch chan<- Event) func(checked, total int, target string) {
	return func(checked, total int, target string) {
		send(ch, Event{Phase: PhaseCheck, Processed: checked, Total: total, URL: target})
	}
}

func send(ch chan<- Event, evt Event) {
	select {
	case ch <- evt:
	default:
	}
}

// CrawlProgressMsg reports progress in the current phase.
type CrawlProgressMsg Event

// CrawlDoneMsg signals the run has completed.
type CrawlDoneMsg struct {
	Report *result.Report
	Err    error
}

// waitForProgress returns a tea.Cmd that reads one event from the progress
// channel. A closed channel yields nil; the final report comes from
// startRun.
func waitForProgress(ch <-chan Event) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return nil
		}
		return CrawlProgressMsg(evt)
	}
}
