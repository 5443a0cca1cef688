// Package hook implements the PreToolUse gate protocol. The agent CLI
// writes one JSON envelope describing a pending tool call to the hook's
// stdin; the exit code is the verdict: 0 lets the call proceed, 2 blocks
// it with a "Blocked: <reason>" line on stderr. Anything the hook cannot
// make sense of (unreadable stdin, malformed JSON, a missing or non-text
// command) passes with exit 0: the gate only blocks what it positively
// screened and denied.
package hook

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/apollo-com-ph/apollo-claude/internal/config"
	"github.com/apollo-com-ph/apollo-claude/internal/history"
	"github.com/apollo-com-ph/apollo-claude/internal/logger"
	"github.com/apollo-com-ph/apollo-claude/internal/policy"
	"github.com/apollo-com-ph/apollo-claude/internal/refresh"
)

var log = logger.New("hook")

const (
	// ExitAllow is the exit code that lets the tool call through.
	ExitAllow = 0
	// ExitDeny is the exit code the agent treats as a block.
	ExitDeny = 2

	// maxEnvelopeSize caps the stdin read. A truncated envelope fails the
	// JSON parse and passes through like any other unreadable input.
	maxEnvelopeSize = 8 << 20

	// recordTimeout bounds the history write. The hook sits on the agent's
	// critical path, so a wedged database must not stall the verdict.
	recordTimeout = 2 * time.Second
)

// Envelope is the JSON object the agent writes to the hook's stdin.
// ToolInput stays raw until the tool name has been matched; its shape
// varies per tool and only the command-execution tools are screened.
type Envelope struct {
	SessionID string          `json:"session_id,omitempty"`
	ToolName  string          `json:"tool_name"`
	ToolInput json.RawMessage `json:"tool_input"`
}

// BashInput is the tool_input shape of the command-execution tool.
type BashInput struct {
	Command string `json:"command"`
}

// Result is the outcome of one hook invocation. Screened reports whether
// the envelope reached the policy engine at all; pass-throughs (wrong
// tool, no command, garbage input) leave it false with a default allow.
type Result struct {
	Decision policy.Decision
	Command  string
	Screened bool
	ExitCode int
}

// Runner evaluates hook envelopes. The store and refresher are optional:
// nil disables history recording and background updates respectively.
type Runner struct {
	cfg       *config.Config
	engine    *policy.Engine
	matcher   *policy.ToolMatcher
	store     *history.Store
	refresher *refresh.Refresher
}

// NewRunner wires the hook path. Pass a nil store when history is
// disabled and a nil refresher when updates are disabled.
func NewRunner(cfg *config.Config, engine *policy.Engine, matcher *policy.ToolMatcher, store *history.Store, refresher *refresh.Refresher) *Runner {
	return &Runner{
		cfg:       cfg,
		engine:    engine,
		matcher:   matcher,
		store:     store,
		refresher: refresher,
	}
}

// Run processes one envelope from stdin and returns the verdict the
// process should exit with. It never returns an error: every structural
// failure is a pass-through allow, and a deny carries its reason in
// Decision for the caller to print.
func (r *Runner) Run(stdin io.Reader) Result {
	data, err := io.ReadAll(io.LimitReader(stdin, maxEnvelopeSize))
	if err != nil {
		log.Warn("Cannot read hook input: %v", err)
		return passThrough()
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug("Hook input is not an envelope: %v", err)
		return passThrough()
	}

	if !r.matcher.Matches(env.ToolName) {
		log.Trace("Tool %q is not screened", env.ToolName)
		return passThrough()
	}

	var input BashInput
	if err := json.Unmarshal(env.ToolInput, &input); err != nil {
		log.Debug("Envelope for %q has no usable tool_input: %v", env.ToolName, err)
		return passThrough()
	}
	if input.Command == "" {
		return passThrough()
	}

	// Poke the refresher before deciding. Kick never blocks and never
	// fails the invocation; at worst this verdict runs on yesterday's
	// document and the next one runs on today's.
	if r.refresher != nil {
		r.refresher.Kick()
	}

	decision := r.engine.Evaluate(input.Command)
	r.record(env, input.Command, decision)

	res := Result{
		Decision: decision,
		Command:  input.Command,
		Screened: true,
		ExitCode: ExitAllow,
	}
	if decision.Denied() {
		res.ExitCode = ExitDeny
		log.Info("Blocked %q: %s", input.Command, decision.Reason)
	}
	return res
}

// record writes the decision to the audit store. Failures are logged and
// swallowed; the verdict already stands.
func (r *Runner) record(env Envelope, command string, d policy.Decision) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err := r.store.Record(ctx, history.Entry{
		SessionID: env.SessionID,
		Tool:      env.ToolName,
		Command:   command,
		Verdict:   d.Verdict.String(),
		Reason:    d.Reason,
		Rule:      d.Rule,
		Source:    string(d.Source),
		Segment:   d.Segment,
	})
	if err != nil {
		log.Warn("Cannot record decision: %v", err)
	}
}

// passThrough is the allow returned when the envelope never reached the
// engine.
func passThrough() Result {
	return Result{
		Decision: policy.Decision{Verdict: policy.VerdictAllow},
		ExitCode: ExitAllow,
	}
}
