package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, retentionDays int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"), retentionDays)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	entries := []Entry{
		{Tool: "Bash", Command: "git status", Verdict: "allow"},
		{Tool: "Bash", Command: "rm -rf /", Verdict: "deny",
			Reason: "Destructive: rm -rf", Source: "builtin", SessionID: "sess-1"},
		{Tool: "Bash", Command: "ls -la", Verdict: "allow", SessionID: "sess-1"},
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := s.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(got))
	}

	// Newest first.
	if got[0].Command != "ls -la" {
		t.Errorf("first entry = %q, want the most recent command", got[0].Command)
	}
	if got[1].Verdict != "deny" || got[1].Reason != "Destructive: rm -rf" {
		t.Errorf("denied entry came back as %+v", got[1])
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp not recorded")
	}
}

func TestList_OnlyDenied(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	for i := range 5 {
		verdict := "allow"
		if i%2 == 0 {
			verdict = "deny"
		}
		e := Entry{Tool: "Bash", Command: fmt.Sprintf("cmd-%d", i), Verdict: verdict}
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := s.List(ctx, ListOptions{OnlyDenied: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List returned %d denied entries, want 3", len(got))
	}
	for _, e := range got {
		if e.Verdict != "deny" {
			t.Errorf("entry %q has verdict %q", e.Command, e.Verdict)
		}
	}
}

func TestList_BySession(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	for _, e := range []Entry{
		{Tool: "Bash", Command: "a", Verdict: "allow", SessionID: "one"},
		{Tool: "Bash", Command: "b", Verdict: "allow", SessionID: "two"},
		{Tool: "Bash", Command: "c", Verdict: "allow", SessionID: "one"},
	} {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := s.List(ctx, ListOptions{SessionID: "one"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d entries for session one, want 2", len(got))
	}
}

func TestList_Limit(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	for i := range 30 {
		e := Entry{Tool: "Bash", Command: fmt.Sprintf("cmd-%d", i), Verdict: "allow"}
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := s.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("default limit returned %d entries, want 20", len(got))
	}

	got, err = s.List(ctx, ListOptions{Limit: 5})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("limit 5 returned %d entries", len(got))
	}
	if got[0].Command != "cmd-29" {
		t.Errorf("first entry = %q, want cmd-29", got[0].Command)
	}
}

func TestRetentionPruning(t *testing.T) {
	s := newTestStore(t, 7)
	ctx := context.Background()

	// Insert directly so the seed row itself does not trigger a prune.
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO decisions (timestamp, tool_name, command, verdict) VALUES (?, 'Bash', 'ancient', 'allow')`,
		time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	// The write of a fresh entry prunes the ancient one.
	fresh := Entry{Tool: "Bash", Command: "current", Verdict: "allow"}
	if err := s.Record(ctx, fresh); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("List returned %d entries, want only the fresh one", len(got))
	}
	if got[0].Command != "current" {
		t.Errorf("surviving entry = %q, want current", got[0].Command)
	}
}

func TestCountStats(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	for _, e := range []Entry{
		{Tool: "Bash", Command: "a", Verdict: "allow"},
		{Tool: "Bash", Command: "b", Verdict: "deny", Reason: "blocked"},
		{Tool: "Bash", Command: "c", Verdict: "deny", Reason: "blocked"},
	} {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	st, err := s.CountStats(ctx)
	if err != nil {
		t.Fatalf("CountStats: %v", err)
	}
	if st.Total != 3 || st.Denied != 2 {
		t.Errorf("stats = %+v, want total 3 denied 2", st)
	}
}

func TestOpen_CreatesParentDir(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "absent", "history.db"), 0)
	if err != nil {
		t.Fatalf("Open should create a missing parent directory: %v", err)
	}
	s.Close()
}

func TestOpen_ParentNotDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(filepath.Join(blocker, "history.db"), 0); err == nil {
		t.Fatal("expected an error when the parent path is a regular file")
	}
}
