package result

import (
	"cmp"
	"slices"
)

// Aggregate merges link check results into rep. Every edge whose target
// check is broken becomes a BrokenLink. Link checks are sorted by URL and
// broken links by source then target. Edges without a check are ignored.
func Aggregate(rep *Report, checks map[string]LinkCheckResult) *Report {
	if rep == nil {
		return nil
	}

	rep.LinkChecks = make([]LinkCheckResult, 0, len(checks))
	for _, check := range checks {
		rep.LinkChecks = append(rep.LinkChecks, check)
	}
	slices.SortFunc(rep.LinkChecks, func(a, b LinkCheckResult) int {
		return cmp.Compare(a.URL, b.URL)
	})

	rep.BrokenLinks = make([]BrokenLink, 0)
	for _, edge := range rep.Edges {
		check, ok := checks[edge.Target]
		if !ok || !check.IsBroken {
			continue
		}
		rep.BrokenLinks = append(rep.BrokenLinks, BrokenLink{
			Source:        edge.Source,
			Target:        edge.Target,
			StatusCode:    check.StatusCode,
			Error:         check.Error,
			ErrorCategory: check.ErrorCategory,
		})
	}
	slices.SortFunc(rep.BrokenLinks, func(a, b BrokenLink) int {
		if c := cmp.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return cmp.Compare(a.Target, b.Target)
	})

	rep.Stats.LinksChecked = len(checks)
	rep.Stats.BrokenCount = len(rep.BrokenLinks)
	return rep
}
