package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// CurrentVersion is the rule document schema version this build writes.
// Newer versions load with a warning; the known fields still apply.
const CurrentVersion = 1

// maxRegexLen caps user pattern length. RE2 has no catastrophic
// backtracking, but compiled program size still grows with the pattern.
const maxRegexLen = 4096

// Document is the persisted user rule set: a schema version plus deny and
// allow pattern lists. Every field is optional; a missing file and an
// empty document behave the same.
type Document struct {
	Version int    `json:"version"`
	Deny    []Rule `json:"deny"`
	Allow   []Rule `json:"allow"`
}

// EmptyDocument returns a document with no rules at the current version.
func EmptyDocument() *Document {
	return &Document{Version: CurrentVersion}
}

// ParseDocument parses raw bytes as a rule document. Unknown fields are
// ignored and a missing version defaults to 1, so older feeds keep
// loading. The refresher calls this to vet a download before it replaces
// the live file.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid rule document: %w", err)
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	return &doc, nil
}

// LoadDocument reads the rule document at path. Absence is normal and
// yields an empty document; unreadable or malformed content warns and
// yields an empty document too, so screening continues on the builtin
// set alone rather than failing closed on config trouble.
func LoadDocument(path string) *Document {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("Cannot read rule document %s: %v", path, err)
		} else {
			log.Trace("No rule document at %s", path)
		}
		return EmptyDocument()
	}

	doc, err := ParseDocument(data)
	if err != nil {
		log.Warn("Malformed rule document %s: %v", path, err)
		return EmptyDocument()
	}
	if doc.Version > CurrentVersion {
		log.Warn("Rule document %s is version %d, this build understands %d; loading anyway", path, doc.Version, CurrentVersion)
	}
	log.Trace("Loaded rule document %s: %d deny, %d allow", path, len(doc.Deny), len(doc.Allow))
	return doc
}

// CompileDocument compiles a document's entries into matchable rules.
// Compilation is lenient: an invalid entry is skipped with one warning
// and the remaining entries stay in force.
func CompileDocument(doc *Document) (deny, allow []CompiledRule) {
	deny = compileEntries(doc.Deny, SourceUserDeny)
	allow = compileEntries(doc.Allow, SourceUserAllow)
	return deny, allow
}

func compileEntries(entries []Rule, source Source) []CompiledRule {
	compiled := make([]CompiledRule, 0, len(entries))
	for i, entry := range entries {
		entry.Source = source
		cr, err := compileRule(entry)
		if err != nil {
			log.Warn("Skipping %s rule %d (%q): %v", source, i, clipPattern(entry.Pattern), err)
			continue
		}
		compiled = append(compiled, cr)
	}
	return compiled
}

// compileRule compiles a single entry, validating both its pattern and
// its optional exclude.
func compileRule(entry Rule) (CompiledRule, error) {
	if strings.TrimSpace(entry.Pattern) == "" {
		return CompiledRule{}, errors.New("empty pattern")
	}
	re, err := compilePattern(entry.Pattern)
	if err != nil {
		return CompiledRule{}, err
	}
	cr := CompiledRule{Rule: entry, re: re}
	if entry.Exclude != "" {
		ex, err := compilePattern(entry.Exclude)
		if err != nil {
			return CompiledRule{}, fmt.Errorf("exclude: %w", err)
		}
		cr.exclude = ex
	}
	return cr, nil
}

// compilePattern sanitizes and compiles one regex.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if err := sanitizePattern(pattern); err != nil {
		return nil, err
	}
	if len(pattern) > maxRegexLen {
		return nil, fmt.Errorf("pattern too long (%d bytes, max %d)", len(pattern), maxRegexLen)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return re, nil
}

// sanitizePattern rejects bytes that have no business in a pattern: null
// bytes and control characters other than tab. These only appear when a
// feed is corrupt or actively hostile.
func sanitizePattern(pattern string) error {
	for i, r := range pattern {
		if r == 0 {
			return fmt.Errorf("null byte at position %d", i)
		}
		if r < 32 && r != '\t' {
			return fmt.Errorf("control character 0x%02x at position %d", r, i)
		}
	}
	return nil
}

// clipPattern shortens a pattern for log output.
func clipPattern(pattern string) string {
	const max = 64
	if len(pattern) <= max {
		return pattern
	}
	return pattern[:max] + "..."
}
