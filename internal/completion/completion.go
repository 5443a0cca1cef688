// Package completion provides CLI tab-completion for safe-bash.
//
// The binary itself handles completions: when invoked with COMP_LINE set
// (by the shell), it outputs matching completions and exits.
// Works across bash, zsh, and fish with a one-time install.
package completion

import (
	"os"

	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/install"
	"github.com/posener/complete/v2/predict"
)

// command defines the full safe-bash CLI completion tree.
var command = &complete.Command{
	Sub: map[string]*complete.Command{
		"hook": {},
		"check": {
			Flags: map[string]complete.Predictor{"json": predict.Nothing},
			Args:  predict.Something,
		},
		"list-rules": {Flags: map[string]complete.Predictor{"json": predict.Nothing}},
		"lint-rules": {
			Flags: map[string]complete.Predictor{"info": predict.Nothing},
			Args:  predict.Files("*.json"),
		},
		"update": {Flags: map[string]complete.Predictor{"force": predict.Nothing, "detached": predict.Nothing}},
		"history": {
			Flags: map[string]complete.Predictor{
				"n":       predict.Nothing,
				"blocked": predict.Nothing,
				"json":    predict.Nothing,
			},
		},
		"serve":      {Flags: map[string]complete.Predictor{"addr": predict.Nothing}},
		"init":       {Flags: map[string]complete.Predictor{"force": predict.Nothing}},
		"version":    {Flags: map[string]complete.Predictor{"json": predict.Nothing}},
		"completion": {Flags: map[string]complete.Predictor{"install": predict.Nothing, "uninstall": predict.Nothing}},
		"help":       {},
	},
}

// Run checks if the binary was invoked for shell completion.
// If COMP_LINE is set, it outputs completions and exits (never returns).
// Otherwise it returns false and the program continues normally.
func Run() bool {
	if os.Getenv("COMP_LINE") != "" || os.Getenv("COMP_INSTALL") != "" || os.Getenv("COMP_UNINSTALL") != "" {
		command.Complete("safe-bash")
		return true
	}
	return false
}

// Install sets up shell completion for the detected shells.
// Returns nil on success. The caller handles user-facing output.
func Install() error {
	return install.Install("safe-bash")
}

// Uninstall removes shell completion for the detected shells.
// Returns nil on success. The caller handles user-facing output.
func Uninstall() error {
	return install.Uninstall("safe-bash")
}

// IsInstalled reports whether shell completion is already set up.
func IsInstalled() bool {
	return install.IsInstalled("safe-bash")
}
