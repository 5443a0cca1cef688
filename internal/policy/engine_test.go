package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// userOnly returns an engine with the builtin layer off and the given
// document live, so tests exercise the user layers in isolation.
func userOnly(t *testing.T, doc *Document) *Engine {
	t.Helper()
	return NewTestEngine(doc, Options{DisableBuiltin: true})
}

func TestEngine_EmptyCommandAllowed(t *testing.T) {
	engine := builtinOnly(t)
	for _, command := range []string{"", "   ", "\t"} {
		if d := engine.Evaluate(command); !d.Allowed() {
			t.Errorf("Evaluate(%q) = deny (%s), want allow", command, d.Reason)
		}
	}
}

func TestEngine_DefaultAllowHasNoRule(t *testing.T) {
	engine := builtinOnly(t)
	d := engine.Evaluate("ls -la")
	if !d.Allowed() {
		t.Fatalf("want allow, got deny (%s)", d.Reason)
	}
	if d.Rule != "" || d.Source != "" || d.Reason != "" {
		t.Errorf("default allow should carry no rule attribution, got %+v", d)
	}
}

func TestEngine_UserDenyWholeCommand(t *testing.T) {
	engine := userOnly(t, &Document{Version: 1, Deny: []Rule{
		{Pattern: `(?i)\bnpm\s+publish\b`, Reason: "no releases from agents"},
	}})

	d := engine.Evaluate("npm publish --access public")
	if !d.Denied() {
		t.Fatal("want deny")
	}
	if d.Reason != "no releases from agents" {
		t.Errorf("Reason = %q", d.Reason)
	}
	if d.Source != SourceUserDeny {
		t.Errorf("Source = %q, want %q", d.Source, SourceUserDeny)
	}
}

func TestEngine_UserAllowCannotOverrideBuiltin(t *testing.T) {
	// The broadest possible allow rule must still lose to the builtin
	// layer.
	engine := NewTestEngine(&Document{Version: 1, Allow: []Rule{
		{Pattern: `.*`},
	}}, Options{})

	d := engine.Evaluate("rm -rf /")
	if !d.Denied() {
		t.Fatal("builtin deny must not be overridable by user allow")
	}
	if d.Source != SourceBuiltin {
		t.Errorf("Source = %q, want %q", d.Source, SourceBuiltin)
	}
	if d.Reason != "Destructive: rm -rf" {
		t.Errorf("Reason = %q", d.Reason)
	}
}

func TestEngine_UserAllowBeatsUserDeny(t *testing.T) {
	// Allow is checked against the whole command before deny, so a
	// user can punch a hole through their own deny rules.
	engine := userOnly(t, &Document{
		Version: 1,
		Deny:    []Rule{{Pattern: `(?i)\bterraform\b`, Reason: "no infra changes"}},
		Allow:   []Rule{{Pattern: `^terraform plan\b`}},
	})

	d := engine.Evaluate("terraform plan -out=tfplan")
	if !d.Allowed() {
		t.Fatalf("want allow via allow rule, got deny (%s)", d.Reason)
	}
	if d.Source != SourceUserAllow {
		t.Errorf("Source = %q, want %q", d.Source, SourceUserAllow)
	}

	d = engine.Evaluate("terraform apply")
	if !d.Denied() {
		t.Fatal("non-exempt terraform should still be denied")
	}
}

func TestEngine_SegmentAllowDoesNotLeak(t *testing.T) {
	// An allow that matches one segment exempts that segment only. The
	// other segment must still be screened and denied.
	engine := userOnly(t, &Document{
		Version: 1,
		Deny:    []Rule{{Pattern: `(?i)\bcurl\b`, Reason: "no outbound fetches"}},
		Allow:   []Rule{{Pattern: `^git status$`}},
	})

	d := engine.Evaluate("git status && curl https://evil.example")
	if !d.Denied() {
		t.Fatal("allowed segment must not excuse the denied one")
	}
	if d.Reason != "no outbound fetches" {
		t.Errorf("Reason = %q", d.Reason)
	}
	if d.Segment != "" {
		// The deny matched at the whole-command stage, before segments.
		t.Errorf("Segment = %q, want whole-command match", d.Segment)
	}

	// Alone, each side behaves as expected.
	if d := engine.Evaluate("git status"); !d.Allowed() {
		t.Errorf("git status alone should be allowed, got deny (%s)", d.Reason)
	}
	if d := engine.Evaluate("curl https://evil.example"); !d.Denied() {
		t.Error("curl alone should be denied")
	}
}

func TestEngine_SegmentAllowSkipsOnlyItsSegment(t *testing.T) {
	// Anchored patterns only ever match at the segment stage. Without the
	// allow the deny fires there; with it, that one segment is exempt.
	denyOnly := userOnly(t, &Document{
		Version: 1,
		Deny:    []Rule{{Pattern: `^make deploy$`, Reason: "no deploys"}},
	})
	d := denyOnly.Evaluate("make build && make deploy")
	if !d.Denied() {
		t.Fatal("segment-anchored deny should fire")
	}
	if d.Segment != "make deploy" {
		t.Errorf("Segment = %q, want %q", d.Segment, "make deploy")
	}

	exempted := userOnly(t, &Document{
		Version: 1,
		Deny:    []Rule{{Pattern: `^make deploy$`, Reason: "no deploys"}},
		Allow:   []Rule{{Pattern: `^make deploy$`}},
	})
	if d := exempted.Evaluate("make build && make deploy"); !d.Allowed() {
		t.Fatalf("allow-exempted segment should pass, got deny (%s)", d.Reason)
	}
}

func TestEngine_SegmentDenyReportsSegment(t *testing.T) {
	engine := userOnly(t, &Document{
		Version: 1,
		Deny:    []Rule{{Pattern: `^scp\b`, Reason: "no file copies out"}},
	})

	d := engine.Evaluate("tar czf out.tgz . && scp out.tgz host:")
	if !d.Denied() {
		t.Fatal("want deny")
	}
	if d.Segment != "scp out.tgz host:" {
		t.Errorf("Segment = %q, want the scp segment", d.Segment)
	}
}

func TestEngine_PipeMarkerReachesUserRules(t *testing.T) {
	// The "|" kept on a piped segment lets an anchored pipe rule fire at
	// the segment stage, where the split would otherwise have eaten the
	// operator. The anchor keeps it from matching the whole command.
	engine := userOnly(t, &Document{
		Version: 1,
		Deny:    []Rule{{Pattern: `^\|\s*mail\b`, Reason: "no piping to mail"}},
	})

	d := engine.Evaluate("cat report.txt | mail ops@example.com")
	if !d.Denied() {
		t.Fatal("want deny via pipe marker")
	}
	if d.Segment != "| mail ops@example.com" {
		t.Errorf("Segment = %q, want the marked pipe segment", d.Segment)
	}
}

func TestEngine_FirstMatchingDenyWins(t *testing.T) {
	engine := userOnly(t, &Document{
		Version: 1,
		Deny: []Rule{
			{Pattern: `(?i)\bdocker\b`, Reason: "first"},
			{Pattern: `(?i)\bdocker\s+push\b`, Reason: "second"},
		},
	})

	d := engine.Evaluate("docker push registry/image")
	if d.Reason != "first" {
		t.Errorf("Reason = %q, want document order to decide", d.Reason)
	}
}

func TestEngine_CaseSensitivityPerRule(t *testing.T) {
	engine := userOnly(t, &Document{
		Version: 1,
		Deny: []Rule{
			{Pattern: `(?i)\bdrop\s+table\b`, Reason: "insensitive"},
			{Pattern: `\bKUBECTL\b`, Reason: "sensitive"},
		},
	})

	if d := engine.Evaluate("psql -c 'DROP TABLE users'"); !d.Denied() {
		t.Error("(?i) rule should match any case")
	}
	if d := engine.Evaluate("psql -c 'drop table users'"); !d.Denied() {
		t.Error("(?i) rule should match lowercase")
	}
	if d := engine.Evaluate("kubectl get pods"); !d.Allowed() {
		t.Error("case-sensitive rule must not match lowercase")
	}
	if d := engine.Evaluate("KUBECTL get pods"); !d.Denied() {
		t.Error("case-sensitive rule should match exact case")
	}
}

func TestEngine_SubstringMatchIsUnanchored(t *testing.T) {
	engine := userOnly(t, &Document{
		Version: 1,
		Deny:    []Rule{{Pattern: `secrets\.ya?ml`, Reason: "secrets file"}},
	})

	if d := engine.Evaluate("kubectl apply -f config/secrets.yaml --dry-run"); !d.Denied() {
		t.Error("pattern should match anywhere in the command")
	}
}

func TestEngine_InvalidUserEntriesDegrade(t *testing.T) {
	// A bad entry is dropped; the rest keep working.
	engine := userOnly(t, &Document{
		Version: 1,
		Deny: []Rule{
			{Pattern: `([broken`, Reason: "never compiles"},
			{Pattern: `(?i)\bhelm\s+delete\b`, Reason: "keeps working"},
		},
	})

	if d := engine.Evaluate("helm delete prod-release"); !d.Denied() {
		t.Fatal("valid entry should survive a broken sibling")
	}
	if d := engine.Evaluate("echo fine"); !d.Allowed() {
		t.Error("broken entry must not deny anything")
	}
}

func TestEngine_DisableBuiltin(t *testing.T) {
	engine := NewTestEngine(nil, Options{DisableBuiltin: true})
	if d := engine.Evaluate("rm -rf /"); !d.Allowed() {
		t.Error("with builtin disabled and no user rules, everything passes")
	}
	builtin, _, _ := engine.RuleCount()
	if builtin != 0 {
		t.Errorf("builtin count = %d, want 0", builtin)
	}
}

func TestEngine_ReloadFollowsDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.json")
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	write(`{"version": 1, "deny": [{"pattern": "\\bfoo\\b", "reason": "v1"}]}`)
	engine := NewEngine(Options{DocumentPath: path, DisableBuiltin: true})

	if d := engine.Evaluate("run foo now"); !d.Denied() {
		t.Fatal("initial document should be live")
	}

	write(`{"version": 1, "deny": [{"pattern": "\\bbar\\b", "reason": "v2"}]}`)
	engine.Reload()

	if d := engine.Evaluate("run foo now"); !d.Allowed() {
		t.Error("old rule should be gone after reload")
	}
	if d := engine.Evaluate("run bar now"); !d.Denied() {
		t.Error("new rule should be live after reload")
	}
}

func TestEngine_ReloadNotifies(t *testing.T) {
	engine := userOnly(t, EmptyDocument())

	notified := make(chan struct{}, 1)
	engine.OnReload(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})

	engine.ApplyDocument(EmptyDocument())

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestEngine_NormalizeOptIn(t *testing.T) {
	// Fullwidth characters disguise rm from the plain matcher.
	disguised := "ｒｍ -rf /" // ｒｍ -rf /

	plain := NewTestEngine(nil, Options{})
	if d := plain.Evaluate(disguised); !d.Allowed() {
		t.Fatalf("without normalize the disguise passes the lexical rules, got deny (%s)", d.Reason)
	}

	normalizing := NewTestEngine(nil, Options{Normalize: true})
	if d := normalizing.Evaluate(disguised); !d.Denied() {
		t.Error("normalize should fold the disguise and deny")
	}
}

func TestEngine_DeepScanOptIn(t *testing.T) {
	// Adjacent quoted chunks hide the body from the lexical rules; only
	// the shell grammar sees the joined "rm -rf /".
	hidden := `bash -c 'rm'' -rf /'`

	plain := NewTestEngine(nil, Options{})
	if d := plain.Evaluate(hidden); !d.Allowed() {
		t.Fatalf("lexical rules should miss the split body, got deny (%s)", d.Reason)
	}

	deep := NewTestEngine(nil, Options{DeepScan: true})
	d := deep.Evaluate(hidden)
	if !d.Denied() {
		t.Fatal("deep scan should reassemble and deny the inner command")
	}
	if d.Source != SourceBuiltin {
		t.Errorf("Source = %q, want %q", d.Source, SourceBuiltin)
	}
}

func TestEngine_SnapshotCounts(t *testing.T) {
	engine := NewTestEngine(&Document{
		Version: 3,
		Deny:    []Rule{{Pattern: `\ba\b`}, {Pattern: `\bb\b`}},
		Allow:   []Rule{{Pattern: `\bc\b`}},
	}, Options{})

	snap := engine.Snapshot()
	if snap.Version != 3 {
		t.Errorf("Version = %d, want 3", snap.Version)
	}
	if len(snap.Builtin) != len(BuiltinRules()) {
		t.Errorf("Builtin = %d, want %d", len(snap.Builtin), len(BuiltinRules()))
	}
	if len(snap.UserDeny) != 2 || len(snap.UserAllow) != 1 {
		t.Errorf("user layers = %d/%d, want 2/1", len(snap.UserDeny), len(snap.UserAllow))
	}
}

func TestEngine_HitCounts(t *testing.T) {
	engine := userOnly(t, &Document{
		Version: 1,
		Deny:    []Rule{{Pattern: `\bwget\b`, Reason: "no downloads"}},
	})

	engine.Evaluate("wget https://example.com/a")
	engine.Evaluate("wget https://example.com/b")
	engine.Evaluate("echo untouched")

	snap := engine.Snapshot()
	if len(snap.UserDeny) != 1 {
		t.Fatalf("want 1 deny rule, got %d", len(snap.UserDeny))
	}
	if snap.UserDeny[0].Hits != 2 {
		t.Errorf("Hits = %d, want 2", snap.UserDeny[0].Hits)
	}
}

func TestGlobalEngine(t *testing.T) {
	prev := GetGlobalEngine()
	t.Cleanup(func() { SetGlobalEngine(prev) })

	engine := builtinOnly(t)
	SetGlobalEngine(engine)
	if GetGlobalEngine() != engine {
		t.Error("global engine not returned after set")
	}
}
