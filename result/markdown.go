package result

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
)

// WriteMarkdown renders the report as GitHub-flavored Markdown.
func WriteMarkdown(w io.Writer, rep *Report) error {
	md := markdown.NewMarkdown(w)

	md.H1("Site Probe Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Field", "Value"},
		Rows: [][]string{
			{"Start URL", rep.StartURL},
			{"Run ID", rep.RunID},
			{"Outcome", string(rep.Outcome)},
			{"Pages crawled", strconv.Itoa(rep.TotalPages)},
			{"Pages failed", strconv.Itoa(rep.Stats.PagesFailed)},
			{"Links checked", strconv.Itoa(rep.Stats.LinksChecked)},
			{"Broken links", strconv.Itoa(rep.Stats.BrokenCount)},
			{"Duration", rep.Stats.Duration.Round(1_000_000).String()},
		},
	})
	md.PlainText("")

	if len(rep.Warnings) > 0 {
		md.Warningf("%d warning(s) were raised during the crawl.", len(rep.Warnings))
		md.PlainText("")
		md.BulletList(rep.Warnings...)
		md.PlainText("")
	}

	md.H2("Broken Links")
	md.PlainText("")
	if len(rep.BrokenLinks) == 0 {
		md.Tip("No broken links found.")
		md.PlainText("")
	} else {
		rows := make([][]string, len(rep.BrokenLinks))
		for i, link := range rep.BrokenLinks {
			status := statusCodeStr(link.StatusCode)
			if status == "" {
				status = "-"
			}
			rows[i] = []string{link.Target, status, FormatCategory(link.ErrorCategory), link.Source}
		}
		md.Table(markdown.TableSet{
			Header: []string{"URL", "Status", "Category", "Found On"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	md.H2("Pages")
	md.PlainText("")
	if len(rep.Pages) == 0 {
		md.PlainText("No pages were crawled.")
	} else {
		rows := make([][]string, len(rep.Pages))
		for i, page := range rep.Pages {
			state := "ok"
			if !page.Success {
				state = page.Error
			}
			rows[i] = []string{page.URL, strconv.Itoa(page.Depth), state}
		}
		md.Table(markdown.TableSet{
			Header: []string{"URL", "Depth", "Result"},
			Rows:   rows,
		})
	}

	if err := md.Build(); err != nil {
		return fmt.Errorf("write markdown output: %w", err)
	}
	return nil
}
