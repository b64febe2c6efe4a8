// Package worker runs the OCR fleet loop for one browser profile: scan the
// source directory, claim files through the store, push each one through a
// browser round trip, and persist what comes back.
package worker

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Scanner lists candidate input files in deterministic order.
type Scanner struct {
	sourcePath string
	pattern    glob.Glob
}

// NewScanner compiles the filename pattern. Patterns use glob syntax with
// brace alternatives, e.g. "*.{png,jpg,jpeg,webp}".
func NewScanner(sourcePath, pattern string) (*Scanner, error) {
	g, err := glob.Compile(strings.ToLower(pattern))
	if err != nil {
		return nil, fmt.Errorf("compile file glob %q: %w", pattern, err)
	}
	return &Scanner{sourcePath: sourcePath, pattern: g}, nil
}

// Candidates returns matching file names sorted lexicographically. A
// non-empty resumeAfter skips everything up to and including that name,
// which lets a restarted worker jump past finished work without loading the
// whole done set.
func (s *Scanner) Candidates(resumeAfter string) ([]string, error) {
	entries, err := os.ReadDir(s.sourcePath)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !s.pattern.Match(strings.ToLower(name)) {
			continue
		}
		if resumeAfter != "" && name <= resumeAfter {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
