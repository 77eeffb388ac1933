package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/siteprobe/result"
)

func stubRun(rep *result.Report, err error) RunFunc {
	return func(context.Context) (*result.Report, error) { return rep, err }
}

func TestNewModel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	progressCh := make(chan Event, 10)
	model := NewModel(ctx, cancel, stubRun(nil, nil), progressCh)

	if model.ctx != ctx {
		t.Error("expected ctx to be stored in model")
	}
	if model.cancel == nil || model.run == nil {
		t.Error("expected cancel and run to be stored in model")
	}
	if model.progressCh != progressCh {
		t.Error("expected progressCh to be stored in model")
	}
	if model.phase != PhaseCrawl || model.processed != 0 {
		t.Error("expected a fresh model in the crawl phase")
	}
	if model.done {
		t.Error("expected done to be false initially")
	}
}

func TestProgressFuncs(t *testing.T) {
	ch := make(chan Event, 1)

	CrawlProgress(ch)(2, 10, "https://example.com/a")
	if evt := <-ch; evt.Phase != PhaseCrawl || evt.Processed != 2 || evt.Total != 10 {
		t.Errorf("crawl event = %+v", evt)
	}

	check := CheckProgress(ch)
	check(1, 4, "https://example.com/x")
	// A full channel drops the update instead of blocking.
	check(2, 4, "https://example.com/y")
	if evt := <-ch; evt.Phase != PhaseCheck || evt.Processed != 1 {
		t.Errorf("check event = %+v", evt)
	}
	select {
	case evt := <-ch:
		t.Errorf("expected the second update to be dropped, got %+v", evt)
	default:
	}
}

func TestHasBrokenLinks(t *testing.T) {
	tests := []struct {
		name   string
		report *result.Report
		want   bool
	}{
		{
			name:   "nil report",
			report: nil,
			want:   false,
		},
		{
			name:   "no broken links",
			report: &result.Report{BrokenLinks: []result.BrokenLink{}},
			want:   false,
		},
		{
			name: "has broken links",
			report: &result.Report{
				BrokenLinks: []result.BrokenLink{
					{Target: "https://example.com/missing", StatusCode: 404},
				},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := Model{report: tt.report}
			if got := model.HasBrokenLinks(); got != tt.want {
				t.Errorf("HasBrokenLinks() = %v, want %v", got, tt.want)
			}
			if model.Report() != tt.report {
				t.Error("Report() should return the stored report")
			}
		})
	}
}

func TestRenderSummary_NilReport(t *testing.T) {
	if output := RenderSummary(nil); output == "" {
		t.Error("expected non-empty output for nil report")
	}
}

func TestRenderSummary_NoBrokenLinks(t *testing.T) {
	rep := &result.Report{
		TotalPages:  4,
		BrokenLinks: []result.BrokenLink{},
		Stats:       result.Stats{LinksChecked: 10, Duration: 2 * time.Second},
	}
	output := RenderSummary(rep)
	if !strings.Contains(output, "No broken links found") {
		t.Errorf("expected success message, got: %s", output)
	}
	if !strings.Contains(output, "10 links") || !strings.Contains(output, "4 pages") {
		t.Errorf("expected counts in output, got: %s", output)
	}
}

func TestRenderSummary_WithBrokenLinks(t *testing.T) {
	rep := &result.Report{
		TotalPages: 3,
		BrokenLinks: []result.BrokenLink{
			{Target: "https://example.com/dead", StatusCode: 404, Source: "https://example.com", ErrorCategory: result.Category4xx},
			{Target: "https://gone.example/", Error: "DNS resolution failed for gone.example", Source: "https://example.com/about", ErrorCategory: result.CategoryDNSFailure},
		},
		Warnings: []string{"crawl stopped after 50 batches: iteration limit reached"},
		Stats:    result.Stats{LinksChecked: 25, BrokenCount: 2, Duration: 3 * time.Second},
	}
	output := RenderSummary(rep)
	for _, want := range []string{
		"example.com/dead",
		"404",
		"DNS resolution failed",
		"2 broken links",
		"iteration limit reached",
		result.FormatCategory(result.CategoryDNSFailure),
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Index(output, "example.com/dead") > strings.Index(output, "gone.example") {
		t.Error("4xx links should be listed before DNS failures")
	}
}

func TestInit_ReturnsBatchCmd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := NewModel(ctx, cancel, stubRun(&result.Report{}, nil), make(chan Event, 10))
	if cmd := model.Init(); cmd == nil {
		t.Error("Init() should return a non-nil batch command")
	}
}

func TestStartRun(t *testing.T) {
	rep := &result.Report{TotalPages: 1}
	model := NewModel(context.Background(), func() {}, stubRun(rep, nil), nil)
	msg, ok := model.startRun()().(CrawlDoneMsg)
	if !ok || msg.Report != rep || msg.Err != nil {
		t.Errorf("startRun() = %#v", msg)
	}

	failing := NewModel(context.Background(), func() {}, stubRun(nil, errors.New("boom")), nil)
	msg = failing.startRun()().(CrawlDoneMsg)
	if msg.Err == nil || !strings.Contains(msg.Err.Error(), "boom") {
		t.Errorf("expected wrapped error, got %v", msg.Err)
	}
}

func TestWaitForProgress(t *testing.T) {
	ch := make(chan Event, 1)
	ch <- Event{Phase: PhaseCheck, Processed: 3, Total: 9}
	if msg, ok := waitForProgress(ch)().(CrawlProgressMsg); !ok || msg.Processed != 3 {
		t.Errorf("waitForProgress() = %#v", msg)
	}
	close(ch)
	if msg := waitForProgress(ch)(); msg != nil {
		t.Errorf("closed channel should yield nil, got %#v", msg)
	}
}

func TestUpdate_CrawlProgressMsg(t *testing.T) {
	model := Model{progressCh: make(chan Event, 10)}

	msg := CrawlProgressMsg{Phase: PhaseCheck, Processed: 5, Total: 20, URL: "https://example.com/page"}
	updatedModel, cmd := model.Update(msg)
	updated := updatedModel.(Model)

	if updated.phase != PhaseCheck || updated.processed != 5 || updated.total != 20 {
		t.Errorf("unexpected progress state: %+v", updated)
	}
	if updated.current != "https://example.com/page" {
		t.Errorf("expected current URL to be set, got %s", updated.current)
	}
	if cmd == nil {
		t.Error("expected non-nil cmd to re-subscribe to progress channel")
	}
}

func TestUpdate_CrawlDoneMsg(t *testing.T) {
	rep := &result.Report{
		BrokenLinks: []result.BrokenLink{{Target: "https://example.com/404", StatusCode: 404}},
		Stats:       result.Stats{LinksChecked: 10, BrokenCount: 1},
	}

	updatedModel, _ := Model{}.Update(CrawlDoneMsg{Report: rep})
	updated := updatedModel.(Model)

	if !updated.done {
		t.Error("expected done=true after CrawlDoneMsg")
	}
	if updated.report != rep {
		t.Error("expected report to be stored")
	}
}

func TestUpdate_QuitCancels(t *testing.T) {
	cancelled := false
	model := Model{cancel: func() { cancelled = true }}

	updatedModel, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled || !updatedModel.(Model).quitting || cmd == nil {
		t.Error("q should cancel the run and quit")
	}
}

func TestUpdate_SpinnerTickMsg(t *testing.T) {
	updatedModel, _ := Model{}.Update(spinner.TickMsg{})
	_ = updatedModel.(Model) // should not panic
}

func TestUpdate_WindowSizeMsg(t *testing.T) {
	updatedModel, _ := Model{}.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	if updated := updatedModel.(Model); updated.width != 120 {
		t.Errorf("expected width=120, got %d", updated.width)
	}
}

func TestView_InProgress(t *testing.T) {
	model := Model{
		phase:     PhaseCrawl,
		processed: 3,
		total:     10,
		current:   "https://example.com/checking",
	}
	output := model.View()
	if !strings.Contains(output, "Crawling") || !strings.Contains(output, "3/10") {
		t.Errorf("unexpected crawl view: %s", output)
	}

	model.phase = PhaseCheck
	if output := model.View(); !strings.Contains(output, "Checking links") {
		t.Errorf("unexpected check view: %s", output)
	}
}

func TestView_DoneWithReport(t *testing.T) {
	model := Model{
		done:   true,
		report: &result.Report{BrokenLinks: []result.BrokenLink{}, Stats: result.Stats{Duration: time.Second}},
	}
	if output := model.View(); !strings.Contains(output, "No broken links found") {
		t.Errorf("expected success message in done view, got: %s", output)
	}
}

func TestView_DoneWithError(t *testing.T) {
	model := Model{done: true, err: context.Canceled}
	if output := model.View(); !strings.Contains(output, "Error") {
		t.Errorf("expected error message in done view, got: %s", output)
	}
}
