package policy

import (
	"fmt"
	"os"
	"strings"

	"github.com/apollo-com-ph/apollo-claude/internal/tui"
)

// LintSeverity grades a lint finding.
type LintSeverity string

const (
	LintError   LintSeverity = "error"
	LintWarning LintSeverity = "warning"
	LintInfo    LintSeverity = "info"
)

// LintIssue is one problem found in a rule document.
type LintIssue struct {
	Entry    string       `json:"entry"` // e.g. "deny[3]"
	Field    string       `json:"field"`
	Severity LintSeverity `json:"severity"`
	Message  string       `json:"message"`
}

// LintResult collects every issue found in one document.
type LintResult struct {
	Issues []LintIssue `json:"issues"`
	Errors int         `json:"errors"`
	Warns  int         `json:"warnings"`
}

func (r *LintResult) add(issue LintIssue) {
	r.Issues = append(r.Issues, issue)
	switch issue.Severity {
	case LintError:
		r.Errors++
	case LintWarning:
		r.Warns++
	case LintInfo:
		// info items don't increment counters
	}
}

// Linter checks rule documents for entries that will be skipped at load
// time and for patterns that are technically valid but almost certainly
// not what the author meant.
type Linter struct {
	// probes are harmless everyday commands. A deny pattern that matches
	// one of them is overbroad and will block routine work.
	probes []string
}

// NewLinter creates a linter with the stock probe commands.
func NewLinter() *Linter {
	return &Linter{
		probes: []string{
			"git status",
			"ls -la",
			"pwd",
			"echo hello",
		},
	}
}

// LintDocument checks every entry in doc.
func (l *Linter) LintDocument(doc *Document) LintResult {
	var result LintResult

	if doc.Version > CurrentVersion {
		result.add(LintIssue{
			Entry:    "document",
			Field:    "version",
			Severity: LintWarning,
			Message:  fmt.Sprintf("version %d is newer than this build understands (%d)", doc.Version, CurrentVersion),
		})
	}

	l.lintEntries(&result, "deny", doc.Deny, SourceUserDeny)
	l.lintEntries(&result, "allow", doc.Allow, SourceUserAllow)
	return result
}

func (l *Linter) lintEntries(result *LintResult, list string, entries []Rule, source Source) {
	seen := make(map[string]int)
	for i, entry := range entries {
		name := fmt.Sprintf("%s[%d]", list, i)
		entry.Source = source

		if prev, dup := seen[entry.Pattern]; dup && entry.Pattern != "" {
			result.add(LintIssue{
				Entry:    name,
				Field:    "pattern",
				Severity: LintWarning,
				Message:  fmt.Sprintf("duplicate of %s[%d]", list, prev),
			})
		} else {
			seen[entry.Pattern] = i
		}

		compiled, err := compileRule(entry)
		if err != nil {
			// The loader will skip this entry; that is an error here.
			result.add(LintIssue{
				Entry:    name,
				Field:    "pattern",
				Severity: LintError,
				Message:  err.Error(),
			})
			continue
		}

		l.lintCompiled(result, name, source, &compiled)
	}
}

func (l *Linter) lintCompiled(result *LintResult, name string, source Source, c *CompiledRule) {
	if c.re.MatchString("") {
		msg := "pattern matches the empty string, so it matches every command"
		if source == SourceUserAllow {
			msg += "; deny rules in this document will never fire"
		}
		result.add(LintIssue{
			Entry:    name,
			Field:    "pattern",
			Severity: LintWarning,
			Message:  msg,
		})
		return
	}

	switch source {
	case SourceUserDeny:
		if c.Rule.Reason == "" {
			result.add(LintIssue{
				Entry:    name,
				Field:    "reason",
				Severity: LintWarning,
				Message:  "no reason; blocked commands will report the raw pattern",
			})
		}
		for _, probe := range l.probes {
			if c.Matches(probe) {
				result.add(LintIssue{
					Entry:    name,
					Field:    "pattern",
					Severity: LintWarning,
					Message:  fmt.Sprintf("also matches %q; this will block routine commands", probe),
				})
				break
			}
		}
	case SourceUserAllow:
		if c.Rule.Reason != "" {
			result.add(LintIssue{
				Entry:    name,
				Field:    "reason",
				Severity: LintInfo,
				Message:  "reason on an allow rule is never shown",
			})
		}
	}
}

// LintFile loads and lints the rule document at path. Unlike the lenient
// runtime loader, a document that does not parse is reported as an error
// here rather than silently replaced with an empty set.
func (l *Linter) LintFile(path string) (LintResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LintResult{}, fmt.Errorf("failed to read file: %w", err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return LintResult{}, err
	}
	return l.LintDocument(doc), nil
}

// LintBuiltin lints the embedded deny set. A finding here is a bug in
// this binary, not in any user file.
func (l *Linter) LintBuiltin() LintResult {
	doc := &Document{Version: CurrentVersion}
	for _, c := range BuiltinRules() {
		doc.Deny = append(doc.Deny, c.Rule)
	}
	return l.LintDocument(doc)
}

// FormatIssues renders the result for terminal output, one line per
// issue. Info findings only appear when showInfo is set.
func (r LintResult) FormatIssues(showInfo bool) string {
	if len(r.Issues) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, issue := range r.Issues {
		if issue.Severity == LintInfo && !showInfo {
			continue
		}

		var line string
		if tui.IsPlainMode() {
			var icon string
			switch issue.Severity {
			case LintError:
				icon = "X"
			case LintWarning:
				icon = "!"
			case LintInfo:
				icon = "i"
			default:
				icon = "?"
			}
			line = fmt.Sprintf("  %s [%s] %s: %s - %s\n",
				icon, issue.Severity, issue.Entry, issue.Field, issue.Message)
		} else {
			var icon string
			switch issue.Severity {
			case LintError:
				icon = tui.StyleError.Render(tui.IconCross)
			case LintWarning:
				icon = tui.StyleWarning.Render(tui.IconWarning)
			case LintInfo:
				icon = tui.StyleInfo.Render(tui.IconInfo)
			default:
				icon = "?"
			}
			severity := tui.SeverityBadge(string(issue.Severity))
			line = fmt.Sprintf("  %s %s %s: %s - %s\n",
				icon, severity, tui.StyleBold.Render(issue.Entry), issue.Field, issue.Message)
		}
		sb.WriteString(line)
	}
	return sb.String()
}
