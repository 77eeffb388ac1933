package result

import (
	"fmt"
	"io"
)

// PrintResults writes broken link details and a summary to w.
func PrintResults(w io.Writer, rep *Report) {
	writef := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	if len(rep.BrokenLinks) == 0 {
		writef("No broken links found!\n")
	} else {
		writef("Broken Links:\n")
		for i, link := range rep.BrokenLinks {
			writef("  URL: %s\n", link.Target)
			if link.Error != "" {
				writef("  Error: %s\n", link.Error)
			} else {
				writef("  Status: %d\n", link.StatusCode)
			}
			writef("  Found on: %s\n", link.Source)
			if i < len(rep.BrokenLinks)-1 {
				writef("\n")
			}
		}
	}
	for _, warning := range rep.Warnings {
		writef("Warning: %s\n", warning)
	}
	writef("Crawled %d pages (%s), checked %d links, found %d broken links\n",
		rep.TotalPages, rep.Outcome, rep.Stats.LinksChecked, rep.Stats.BrokenCount)
}
