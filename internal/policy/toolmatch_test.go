package policy

import "testing"

func TestToolMatcher_ExactName(t *testing.T) {
	m, err := NewToolMatcher([]string{"Bash"})
	if err != nil {
		t.Fatalf("NewToolMatcher: %v", err)
	}

	if !m.Matches("Bash") {
		t.Error("expected Bash to match")
	}
	if m.Matches("bash") {
		t.Error("matching is case-sensitive; bash should not match Bash")
	}
	if m.Matches("Read") {
		t.Error("Read should not match Bash")
	}
	if m.Matches("BashOutput") {
		t.Error("BashOutput should not match the exact pattern Bash")
	}
}

func TestToolMatcher_Glob(t *testing.T) {
	m, err := NewToolMatcher([]string{"Bash*"})
	if err != nil {
		t.Fatalf("NewToolMatcher: %v", err)
	}

	for _, name := range []string{"Bash", "BashOutput", "Bash_v2"} {
		if !m.Matches(name) {
			t.Errorf("expected %q to match Bash*", name)
		}
	}
	if m.Matches("Read") {
		t.Error("Read should not match Bash*")
	}
}

func TestToolMatcher_MultiplePatterns(t *testing.T) {
	m, err := NewToolMatcher([]string{"Bash", "Shell*"})
	if err != nil {
		t.Fatalf("NewToolMatcher: %v", err)
	}

	if !m.Matches("Bash") {
		t.Error("expected Bash to match")
	}
	if !m.Matches("ShellExec") {
		t.Error("expected ShellExec to match Shell*")
	}
	if m.Matches("Write") {
		t.Error("Write should match neither pattern")
	}

	if got := len(m.Patterns()); got != 2 {
		t.Errorf("Patterns() returned %d entries, want 2", got)
	}
}

func TestToolMatcher_EmptyListMatchesNothing(t *testing.T) {
	m, err := NewToolMatcher(nil)
	if err != nil {
		t.Fatalf("NewToolMatcher: %v", err)
	}

	if m.Matches("Bash") {
		t.Error("an empty matcher must match no tool")
	}
}

func TestToolMatcher_InvalidPattern(t *testing.T) {
	_, err := NewToolMatcher([]string{"Bash", "[unterminated"})
	if err == nil {
		t.Fatal("expected an error for an unterminated glob class")
	}
}
