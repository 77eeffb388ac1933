package urlutil

import (
	"fmt"
	"regexp"
)

// Patterns holds compiled include and exclude expressions for URL filtering.
// The zero value allows everything.
type Patterns struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// CompilePatterns compiles include and exclude regular expressions.
// The first invalid expression aborts compilation.
func CompilePatterns(include, exclude []string) (Patterns, error) {
	inc, err := compileAll(include)
	if err != nil {
		return Patterns{}, fmt.Errorf("compile include patterns: %w", err)
	}
	exc, err := compileAll(exclude)
	if err != nil {
		return Patterns{}, fmt.Errorf("compile exclude patterns: %w", err)
	}
	return Patterns{include: inc, exclude: exc}, nil
}

func compileAll(exprs []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		if expr == "" {
			continue
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", expr, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Allow reports whether rawURL passes the filters. Any exclude match rejects
// the URL, even when an include pattern also matches. With a non-empty
// include list, at least one include pattern must match.
func (p Patterns) Allow(rawURL string) bool {
	for _, re := range p.exclude {
		if re.MatchString(rawURL) {
			return false
		}
	}
	if len(p.include) == 0 {
		return true
	}
	for _, re := range p.include {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}
