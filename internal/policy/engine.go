package policy

import (
	"sync"
	"sync/atomic"

	"github.com/apollo-com-ph/apollo-claude/internal/logger"
)

var log = logger.New("policy")

// Options configures an Engine.
type Options struct {
	// DocumentPath locates the user rule document. Empty runs on the
	// builtin set alone.
	DocumentPath string
	// DisableBuiltin drops the embedded deny set. Screening then rests
	// entirely on the user document.
	DisableBuiltin bool
	// Normalize rewrites Unicode disguises (fullwidth forms, zero-width
	// characters, homoglyphs) to ASCII before matching.
	Normalize bool
	// DeepScan additionally parses the command with a shell grammar and
	// screens nested sh -c and eval bodies against the builtin deny set.
	DeepScan bool
}

// Engine screens commands against the layered rule set. The builtin layer
// is fixed at construction; the user layer swaps atomically on Reload, so
// a long-lived engine follows document edits without restarting.
type Engine struct {
	mu        sync.RWMutex
	builtin   []CompiledRule
	userDeny  []CompiledRule
	userAllow []CompiledRule
	version   int

	opts Options

	hitMu sync.Mutex
	hits  map[string]*int64

	cbMu      sync.Mutex
	reloadCbs []func()
}

// NewEngine builds an engine and loads the user document once. It cannot
// fail: builtin rules compile at process init, and document trouble
// degrades to an empty user layer with warnings.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		opts: opts,
		hits: make(map[string]*int64),
	}
	if opts.DisableBuiltin {
		log.Warn("Builtin deny rules disabled; screening uses the user document only")
	} else {
		e.builtin = BuiltinRules()
		log.Debug("Loaded %d builtin deny rules", len(e.builtin))
	}
	e.Reload()
	return e
}

// NewTestEngine builds an engine over an in-memory document, bypassing
// the filesystem.
func NewTestEngine(doc *Document, opts Options) *Engine {
	e := &Engine{
		opts: opts,
		hits: make(map[string]*int64),
	}
	if !opts.DisableBuiltin {
		e.builtin = BuiltinRules()
	}
	if doc == nil {
		doc = EmptyDocument()
	}
	e.ApplyDocument(doc)
	return e
}

// Reload re-reads the user document from disk and swaps the user layer.
// Invalid entries are dropped with warnings; screening continues on what
// remains.
func (e *Engine) Reload() {
	if e.opts.DocumentPath == "" {
		e.ApplyDocument(EmptyDocument())
		return
	}
	e.ApplyDocument(LoadDocument(e.opts.DocumentPath))
}

// ApplyDocument compiles doc and makes it the live user layer.
func (e *Engine) ApplyDocument(doc *Document) {
	deny, allow := CompileDocument(doc)

	e.mu.Lock()
	e.userDeny = deny
	e.userAllow = allow
	e.version = doc.Version
	e.mu.Unlock()

	log.Debug("User rules active: %d deny, %d allow (document version %d)", len(deny), len(allow), doc.Version)
	e.notifyReload()
}

// Evaluate screens one command and returns an explicit Decision on every
// path. It never errors and never panics on any input.
//
// The order of checks is a security contract:
//
//  1. builtin deny, against the whole command and then every segment;
//     nothing later can override it
//  2. a user allow match on the whole command ends evaluation
//  3. user deny against the whole command
//  4. per segment: a segment matching user allow is exempt, any other
//     segment matching user deny blocks
//  5. default allow
//
// A per-segment allow exempts only its own segment; it never leaks to
// the rest of the pipeline.
func (e *Engine) Evaluate(command string) Decision {
	text := command
	if e.opts.Normalize {
		text = NormalizeCommand(text)
	}
	segments := SplitSegments(text)

	e.mu.RLock()
	builtin := e.builtin
	userDeny := e.userDeny
	userAllow := e.userAllow
	e.mu.RUnlock()

	// Step 1: builtin deny is absolute.
	if c := firstMatch(builtin, text); c != nil {
		e.bumpHit(c)
		return deniedBy(c, "")
	}
	for _, seg := range segments {
		if c := firstMatch(builtin, seg); c != nil {
			e.bumpHit(c)
			return deniedBy(c, seg)
		}
	}
	if e.opts.DeepScan {
		for _, inner := range InnerCommands(text) {
			if c := firstMatch(builtin, inner); c != nil {
				e.bumpHit(c)
				return deniedBy(c, inner)
			}
		}
	}

	// Step 2: a whole-command allow ends evaluation.
	if c := firstMatch(userAllow, text); c != nil {
		e.bumpHit(c)
		return allowedBy(c, "")
	}

	// Step 3: whole-command user deny.
	if c := firstMatch(userDeny, text); c != nil {
		e.bumpHit(c)
		return deniedBy(c, "")
	}

	// Step 4: segments. The allow check exempts one segment, nothing more.
	for _, seg := range segments {
		if a := firstMatch(userAllow, seg); a != nil {
			e.bumpHit(a)
			continue
		}
		if c := firstMatch(userDeny, seg); c != nil {
			e.bumpHit(c)
			return deniedBy(c, seg)
		}
	}

	// Step 5: nothing objected.
	return allowDecision()
}

// firstMatch returns the first rule in document order that text triggers.
func firstMatch(rules []CompiledRule, text string) *CompiledRule {
	for i := range rules {
		if rules[i].Matches(text) {
			return &rules[i]
		}
	}
	return nil
}

// RuleCount returns the sizes of the live layers.
func (e *Engine) RuleCount() (builtin, deny, allow int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.builtin), len(e.userDeny), len(e.userAllow)
}

// Version returns the loaded document's schema version.
func (e *Engine) Version() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// DocumentPath returns the configured user document location.
func (e *Engine) DocumentPath() string {
	return e.opts.DocumentPath
}

// RuleStat is one rule plus its observed match count.
type RuleStat struct {
	Rule
	Hits int64 `json:"hits"`
}

// Snapshot captures the live rule layers for status surfaces.
type Snapshot struct {
	Version   int        `json:"version"`
	Builtin   []RuleStat `json:"builtin"`
	UserDeny  []RuleStat `json:"user_deny"`
	UserAllow []RuleStat `json:"user_allow"`
}

// Snapshot returns the current layers with hit counts. The result is a
// copy and safe to hold across reloads.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		Version:   e.version,
		Builtin:   e.stats(e.builtin),
		UserDeny:  e.stats(e.userDeny),
		UserAllow: e.stats(e.userAllow),
	}
}

func (e *Engine) stats(rules []CompiledRule) []RuleStat {
	out := make([]RuleStat, 0, len(rules))
	for i := range rules {
		out = append(out, RuleStat{
			Rule: rules[i].Rule,
			Hits: e.hitCount(&rules[i]),
		})
	}
	return out
}

// OnReload registers cb to run after every user layer swap. Callbacks run
// on their own goroutine and must not call back into the engine's write
// paths.
func (e *Engine) OnReload(cb func()) {
	e.cbMu.Lock()
	e.reloadCbs = append(e.reloadCbs, cb)
	e.cbMu.Unlock()
}

func (e *Engine) notifyReload() {
	e.cbMu.Lock()
	cbs := make([]func(), len(e.reloadCbs))
	copy(cbs, e.reloadCbs)
	e.cbMu.Unlock()
	for _, cb := range cbs {
		go cb()
	}
}

func hitKey(c *CompiledRule) string {
	return string(c.Rule.Source) + "|" + c.Rule.Pattern
}

func (e *Engine) bumpHit(c *CompiledRule) {
	e.hitMu.Lock()
	ctr, ok := e.hits[hitKey(c)]
	if !ok {
		ctr = new(int64)
		e.hits[hitKey(c)] = ctr
	}
	e.hitMu.Unlock()
	atomic.AddInt64(ctr, 1)
}

func (e *Engine) hitCount(c *CompiledRule) int64 {
	e.hitMu.Lock()
	ctr, ok := e.hits[hitKey(c)]
	e.hitMu.Unlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(ctr)
}

// Global engine for surfaces that cannot thread one through, set once at
// startup.
var (
	globalEngine   *Engine
	globalEngineMu sync.RWMutex
)

// SetGlobalEngine installs the process-wide engine.
func SetGlobalEngine(e *Engine) {
	globalEngineMu.Lock()
	globalEngine = e
	globalEngineMu.Unlock()
}

// GetGlobalEngine returns the process-wide engine, or nil before startup
// installs one.
func GetGlobalEngine() *Engine {
	globalEngineMu.RLock()
	defer globalEngineMu.RUnlock()
	return globalEngine
}
