package policy

import "regexp"

// builtinSpec is one row of the embedded deny table.
type builtinSpec struct {
	pattern string
	exclude string
	reason  string
}

// builtinSpecs is the embedded deny table. Order matters: the first match
// supplies the reason, so the most specific rows of a family come first.
// Patterns are RE2 and matched as substrings against the whole command and
// against every segment; case-insensitive rows opt in with (?i), rows
// where casing carries meaning (git branch -D, kill -9 -1) stay
// case-sensitive.
var builtinSpecs = []builtinSpec{
	// Recursive and forced file deletion. The leading context class keeps
	// command words quoted as data (grep 'rm -rf' docs/) from matching,
	// while still catching path-prefixed invocations like /bin/rm.
	{
		pattern: `(?i)(?:^|[\s;|&])\s*(?:\S*/)?rm\s+(-\S*r\S*f\S*|-\S*f\S*r\S*)\b`,
		reason:  "Destructive: rm -rf",
	},
	{
		pattern: `(?i)(?:^|[\s;|&])\s*(?:\S*/)?rm\s+-r\b`,
		reason:  "Destructive: rm -r",
	},
	{pattern: `(?i)\brmdir\b`, reason: "Destructive: rmdir"},
	{pattern: `(?i)\bfind\s+(.*\s)?-delete\b`, reason: "Destructive: find -delete"},
	{pattern: `(?i)\bshred\b`, reason: "Destructive: shred (secure file deletion)"},

	// Disk and filesystem overwrites.
	{pattern: `(?i)\bmkfs\b`, reason: "Destructive: mkfs (overwrites filesystem)"},
	{pattern: `(?i)\bdd\s+if=`, reason: "Destructive: dd if= (disk write)"},

	// History-rewriting and work-discarding git. Force push exempts
	// --force-with-lease, which refuses to clobber unseen remote work.
	{
		pattern: `(?i)\bgit\s+push\s+(.*\s)?(-f|--force)(\s|$)`,
		reason:  "Destructive: git force push",
	},
	{
		pattern: `(?i)\bgit\s+push\s+(.*\s)?\+\S+`,
		reason:  "Destructive: git push +refspec (force push)",
	},
	{pattern: `(?i)\bgit\s+reset\s+--hard\b`, reason: "Destructive: git reset --hard"},
	{pattern: `(?i)\bgit\s+clean\b`, reason: "Destructive: git clean"},
	{pattern: `(?i)\bgit\s+checkout\s+--\s`, reason: "Destructive: git checkout -- (discards changes)"},
	{pattern: `(?i)\bgit\s+restore\b`, reason: "Destructive: git restore (discards changes)"},
	// Case-sensitive: -d (delete merged) is routine, -D (force) is not.
	{pattern: `\bgit\s+branch\s+(-D|--delete\s+-f)\b`, reason: "Destructive: git branch -D"},

	// Permission bombs.
	{pattern: `(?i)\bchmod\s+-R\s+777\b`, reason: "Dangerous: chmod -R 777"},
	{pattern: `(?i)\bchmod\s+777\s+/`, reason: "Dangerous: chmod 777 on root path"},

	// Nested interpreters running destructive bodies, and eval anywhere.
	{
		pattern: `(?i)\b(bash|sh|zsh|ksh|dash)\s+-c\s+["']?[^"']*\brm\s+-(rf|fr|r)\b`,
		reason:  "Shell injection: rm inside shell -c",
	},
	{
		pattern: `(?i)\b(bash|sh|zsh|ksh|dash)\s+-c\s+["']?[^"']*\b(mkfs\b|dd\s+if=|shred\b)`,
		reason:  "Shell injection: destructive command inside shell -c",
	},
	{pattern: `(?i)\beval\s+`, reason: "Dangerous: eval execution"},
	{pattern: `(?i)\|\s*(bash|sh|zsh|ksh|dash)\b`, reason: "Shell injection: pipe to shell"},

	// Data leaving the machine.
	{pattern: `(?i)\|\s*curl\s+.*-X\s+POST\b`, reason: "Exfiltration: pipe to curl POST"},
	{pattern: `(?i)\|\s*curl\b`, reason: "Exfiltration: pipe to curl"},
	{pattern: `(?i)\b(nc|netcat)\s+`, reason: "Exfiltration: netcat"},

	// Credential and secret reads.
	{
		pattern: `(?i)\b(cat|head|tail|less|more|bat)\s+.*~?/?\.?ssh/`,
		reason:  "Sensitive: reading SSH key",
	},
	{
		pattern: `(?i)\b(cat|head|tail|less|more|bat)\s+.*~?/?\.?aws/`,
		reason:  "Sensitive: reading AWS credentials",
	},
	{
		pattern: `(?i)\b(cat|head|tail|less|more|bat)\s+.*\.env\b`,
		reason:  "Sensitive: reading .env file",
	},
	{
		pattern: `(?i)\b(cat|head|tail|less|more|bat)\s+.*\.env\.`,
		reason:  "Sensitive: reading .env.* file",
	},
	{pattern: `(?i)\bprintenv\b`, reason: "Sensitive: dumping environment variables"},

	// Mutating GitHub API calls.
	{pattern: `(?i)\bgh\s+api\s+.*-X\s+DELETE\b`, reason: "Destructive: gh api DELETE"},
	{pattern: `(?i)\bgh\s+api\s+.*-X\s+PUT\b`, reason: "Dangerous: gh api PUT"},
	{pattern: `(?i)\bgh\s+api\s+.*-X\s+POST\b`, reason: "Dangerous: gh api POST"},

	// Truncation: a bare > file empties it, whether leading or chained.
	// Redirects that follow a producing command (echo x > file) pass.
	{pattern: `(?m)^\s*>\s*\S`, reason: "Destructive: file truncation (> file)"},
	{pattern: `;\s*>\s*\S`, reason: "Destructive: file truncation in chain"},
	{pattern: `&&\s*>\s*\S`, reason: "Destructive: file truncation in chain"},
	{pattern: `(?i)\btruncate\b`, reason: "Destructive: truncate"},
	{
		pattern: `(?i)\btee\s+\S`,
		exclude: `(?i)\btee\s+(-a|--append)\b`,
		reason:  "Destructive: tee overwrite (use tee -a to append)",
	},
	{
		pattern: `(?i)\bsed\s+(-[a-zA-Z]*i[a-zA-Z]*|--in-place)\b`,
		reason:  "Destructive: sed -i (in-place edit)",
	},

	// Machine-level damage.
	{pattern: `:\(\)\s*\{.*:\s*\|.*:.*&`, reason: "System: fork bomb"},
	{pattern: `(?i)\bshutdown\b`, reason: "System: shutdown"},
	{pattern: `(?i)\breboot\b`, reason: "System: reboot"},
	{pattern: `\bkill\s+-9\s+-1\b`, reason: "System: kill -9 -1 (kills all processes)"},
	{pattern: `\bpkill\s+-9\s+-1\b`, reason: "System: pkill -9 -1 (kills all processes)"},
}

// builtinRules is compiled once at init and shared read-only for the life
// of the process. A pattern that fails to compile is a bug in this file,
// so compilation panics rather than degrading.
var builtinRules = compileBuiltin()

func compileBuiltin() []CompiledRule {
	rules := make([]CompiledRule, 0, len(builtinSpecs))
	for _, spec := range builtinSpecs {
		cr := CompiledRule{
			Rule: Rule{
				Pattern: spec.pattern,
				Exclude: spec.exclude,
				Reason:  spec.reason,
				Source:  SourceBuiltin,
			},
			re: regexp.MustCompile(spec.pattern),
		}
		if spec.exclude != "" {
			cr.exclude = regexp.MustCompile(spec.exclude)
		}
		rules = append(rules, cr)
	}
	return rules
}

// BuiltinRules returns the embedded deny set. The slice is shared across
// the process; callers must treat it as read-only.
func BuiltinRules() []CompiledRule {
	return builtinRules
}
