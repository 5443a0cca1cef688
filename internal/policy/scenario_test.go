package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// ScenarioCase is a single command scenario loaded from YAML.
type ScenarioCase struct {
	Command     string `yaml:"command"`
	Expect      string `yaml:"expect,omitempty"` // "BLOCKED" or empty for allow
	Reason      string `yaml:"reason,omitempty"` // expected substring of the deny reason
	Description string `yaml:"description,omitempty"`
}

// ScenarioFile is the structure of the scenario YAML files.
type ScenarioFile struct {
	Scenarios []ScenarioCase `yaml:"scenarios"`
}

func getTestDataPath() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "testdata")
}

func loadScenarios(t *testing.T, filename string) []ScenarioCase {
	t.Helper()

	path := filepath.Join(getTestDataPath(), filename)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read scenario file %s: %v", filename, err)
	}

	var file ScenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("Failed to parse scenario file %s: %v", filename, err)
	}

	return file.Scenarios
}

// TestRoutineCommandScenarios checks that everyday commands are NOT blocked.
func TestRoutineCommandScenarios(t *testing.T) {
	scenarios := loadScenarios(t, "routine_commands.yaml")
	engine := builtinOnly(t)

	builtin, _, _ := engine.RuleCount()
	t.Logf("Loaded %d routine command scenarios against %d builtin rules", len(scenarios), builtin)

	var passed, failed int
	var failures []string

	for i, scenario := range scenarios {
		t.Run(fmt.Sprintf("%02d_%s", i+1, scenario.Description), func(t *testing.T) {
			d := engine.Evaluate(scenario.Command)

			if d.Denied() {
				failed++
				failMsg := fmt.Sprintf("FAIL: %s - Expected ALLOWED but got BLOCKED: %s (pattern %s)",
					scenario.Description, d.Reason, d.Rule)
				failures = append(failures, failMsg)
				t.Errorf("%s", failMsg)
			} else {
				passed++
				t.Logf("PASS: %s - Allowed as expected", scenario.Description)
			}
		})
	}

	t.Logf("\n=== Routine Command Scenarios Summary ===")
	t.Logf("Passed: %d/%d", passed, len(scenarios))
	t.Logf("Failed: %d/%d", failed, len(scenarios))

	if failed > 0 {
		t.Logf("\nFailures (false positives - blocking routine commands):")
		for _, f := range failures {
			t.Logf("  - %s", f)
		}
	}
}

// TestDangerousCommandScenarios checks that dangerous commands ARE blocked,
// each with the expected reason family.
func TestDangerousCommandScenarios(t *testing.T) {
	scenarios := loadScenarios(t, "dangerous_commands.yaml")
	engine := builtinOnly(t)

	builtin, _, _ := engine.RuleCount()
	t.Logf("Loaded %d dangerous command scenarios against %d builtin rules", len(scenarios), builtin)

	var passed, failed int
	var failures []string

	for i, scenario := range scenarios {
		t.Run(fmt.Sprintf("%02d_%s", i+1, scenario.Description), func(t *testing.T) {
			d := engine.Evaluate(scenario.Command)

			if scenario.Expect != "BLOCKED" {
				t.Fatalf("scenario %q in dangerous_commands.yaml does not expect BLOCKED", scenario.Description)
			}

			switch {
			case !d.Denied():
				failed++
				failMsg := fmt.Sprintf("FAIL: %s - Expected BLOCKED but was ALLOWED (command=%q)",
					scenario.Description, scenario.Command)
				failures = append(failures, failMsg)
				t.Errorf("%s", failMsg)
			case scenario.Reason != "" && !strings.Contains(d.Reason, scenario.Reason):
				failed++
				failMsg := fmt.Sprintf("FAIL: %s - Blocked with reason %q, want substring %q",
					scenario.Description, d.Reason, scenario.Reason)
				failures = append(failures, failMsg)
				t.Errorf("%s", failMsg)
			default:
				passed++
				t.Logf("PASS: %s - Blocked: %s", scenario.Description, d.Reason)
			}
		})
	}

	t.Logf("\n=== Dangerous Command Scenarios Summary ===")
	t.Logf("Passed: %d/%d", passed, len(scenarios))
	t.Logf("Failed: %d/%d", failed, len(scenarios))

	if failed > 0 {
		t.Logf("\nFailures (gaps - dangerous commands not blocked as expected):")
		for _, f := range failures {
			t.Logf("  - %s", f)
		}
	}
}

// TestBuiltinRuleCoverage reports which builtin rules the dangerous corpus
// actually exercises.
func TestBuiltinRuleCoverage(t *testing.T) {
	scenarios := loadScenarios(t, "dangerous_commands.yaml")
	engine := builtinOnly(t)

	for _, scenario := range scenarios {
		if scenario.Expect == "BLOCKED" {
			engine.Evaluate(scenario.Command)
		}
	}

	snap := engine.Snapshot()
	var rulesWithHits, rulesWithoutHits int
	var uncovered []string

	t.Logf("\n=== Builtin Rule Coverage ===")
	for _, stat := range snap.Builtin {
		if stat.Hits > 0 {
			rulesWithHits++
			t.Logf("  [%d hits] %s", stat.Hits, stat.Rule.Reason)
		} else {
			rulesWithoutHits++
			uncovered = append(uncovered, stat.Rule.Reason)
		}
	}

	t.Logf("\nRules exercised by the corpus: %d/%d", rulesWithHits, len(snap.Builtin))
	t.Logf("Rules not exercised: %d/%d", rulesWithoutHits, len(snap.Builtin))

	if len(uncovered) > 0 {
		t.Logf("\nRules not hit by any dangerous scenario:")
		for _, reason := range uncovered {
			t.Logf("  - %s", reason)
		}
	}
}
