package policy

import (
	"fmt"

	"github.com/gobwas/glob"
)

// ToolMatcher selects which tool invocations get screened, by glob
// patterns over the envelope's tool name. The stock configuration is the
// single exact name "Bash"; a pattern like "Bash*" covers clients that
// suffix the tool name.
type ToolMatcher struct {
	globs    []glob.Glob
	patterns []string
}

// NewToolMatcher compiles the given patterns. An empty list matches no
// tool at all.
func NewToolMatcher(patterns []string) (*ToolMatcher, error) {
	m := &ToolMatcher{
		globs:    make([]glob.Glob, 0, len(patterns)),
		patterns: make([]string, 0, len(patterns)),
	}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("tool pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// Matches reports whether invocations of the named tool get screened.
func (m *ToolMatcher) Matches(name string) bool {
	for _, g := range m.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Patterns returns the raw pattern list the matcher was built from.
func (m *ToolMatcher) Patterns() []string {
	return m.patterns
}
