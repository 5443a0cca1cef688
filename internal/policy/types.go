// Package policy decides whether a shell command may run. It layers an
// embedded builtin deny set under a user-maintained rule document and
// evaluates both against the whole command and against each pipeline
// segment, so an allowed segment can never drag a denied one through.
package policy

import "regexp"

// Verdict is the outcome of an evaluation. There is no third state: every
// code path ends in an explicit allow or an explicit deny.
type Verdict int

const (
	// VerdictAllow lets the command through.
	VerdictAllow Verdict = iota
	// VerdictDeny blocks the command.
	VerdictDeny
)

// String returns the lowercase name of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the verdict by name, so API consumers see "allow"
// or "deny" rather than an enum ordinal.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// Allowed reports whether the verdict permits the command.
func (v Verdict) Allowed() bool { return v == VerdictAllow }

// Denied reports whether the verdict blocks the command.
func (v Verdict) Denied() bool { return v == VerdictDeny }

// Source identifies the rule layer a decision came from.
type Source string

const (
	// SourceBuiltin is the embedded deny set compiled into the binary.
	SourceBuiltin Source = "builtin"
	// SourceUserDeny is a deny entry from the user rule document.
	SourceUserDeny Source = "user-deny"
	// SourceUserAllow is an allow entry from the user rule document.
	SourceUserAllow Source = "user-allow"
)

// Rule is a single pattern entry. Pattern is an RE2 regular expression
// matched as a substring: anchors are honored but never implied. Case
// sensitivity is chosen per rule with an inline (?i) flag. Exclude, when
// set, carves an exception out of Pattern: text matching both is treated
// as not matching the rule at all.
type Rule struct {
	Pattern string `json:"pattern"`
	Reason  string `json:"reason,omitempty"`
	Exclude string `json:"exclude,omitempty"`
	Source  Source `json:"source,omitempty"`
}

// CompiledRule pairs a Rule with its compiled patterns.
type CompiledRule struct {
	Rule    Rule
	re      *regexp.Regexp
	exclude *regexp.Regexp
}

// Matches reports whether text triggers the rule: the pattern must match
// somewhere in text and the exclude pattern, when present, must not.
func (c *CompiledRule) Matches(text string) bool {
	if !c.re.MatchString(text) {
		return false
	}
	if c.exclude != nil && c.exclude.MatchString(text) {
		return false
	}
	return true
}

// DenyReason returns the human-readable reason reported when the rule
// blocks a command, falling back to the pattern when none was written.
func (c *CompiledRule) DenyReason() string {
	if c.Rule.Reason != "" {
		return c.Rule.Reason
	}
	return "matches deny pattern " + c.Rule.Pattern
}

// Decision is the full result of evaluating one command.
type Decision struct {
	Verdict Verdict `json:"verdict"`
	// Reason is the denial message shown to the caller. Empty on allow;
	// a matching allow rule is reported through Rule instead.
	Reason string `json:"reason,omitempty"`
	// Rule is the pattern of the entry that decided, empty for the
	// default allow.
	Rule string `json:"rule,omitempty"`
	// Source is the layer the deciding rule came from.
	Source Source `json:"source,omitempty"`
	// Segment is the pipeline segment that matched, empty when the whole
	// command matched or nothing did.
	Segment string `json:"segment,omitempty"`
}

// Allowed reports whether the decision permits the command.
func (d Decision) Allowed() bool { return d.Verdict.Allowed() }

// Denied reports whether the decision blocks the command.
func (d Decision) Denied() bool { return d.Verdict.Denied() }

// allowDecision builds the default allow with no deciding rule.
func allowDecision() Decision {
	return Decision{Verdict: VerdictAllow}
}

// allowedBy builds an allow attributed to a matching allow rule.
func allowedBy(c *CompiledRule, segment string) Decision {
	return Decision{
		Verdict: VerdictAllow,
		Rule:    c.Rule.Pattern,
		Source:  c.Rule.Source,
		Segment: segment,
	}
}

// deniedBy builds a deny attributed to a matching deny rule.
func deniedBy(c *CompiledRule, segment string) Decision {
	return Decision{
		Verdict: VerdictDeny,
		Reason:  c.DenyReason(),
		Rule:    c.Rule.Pattern,
		Source:  c.Rule.Source,
		Segment: segment,
	}
}
