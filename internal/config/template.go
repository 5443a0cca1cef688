package config

import (
	"fmt"
	"os"

	"github.com/apollo-com-ph/apollo-claude/internal/fileutil"
)

// defaultTemplate is the commented config written by `safe-bash init`.
// Values match DefaultConfig(); keep the two in sync.
const defaultTemplate = `# safe-bash configuration.
# All settings are optional; omitted keys use the defaults shown here.

hook:
  # Glob patterns matched against the hook envelope's tool_name.
  # Invocations for non-matching tools are allowed without evaluation.
  tools: ["Bash"]

rules:
  # Override the path of the user rule document (JSON).
  patterns_file: ""
  # Skip the embedded builtin deny set (destructive commands, force pushes,
  # credential reads). Leave off unless you maintain an equivalent list.
  disable_builtin: false
  # Apply NFKC + homoglyph normalization to command text before matching.
  normalize: false
  # Parse commands with a shell grammar and screen nested command bodies
  # (bash -c "...", eval) against the builtin deny set.
  deep_scan: false

update:
  enabled: true
  url: https://raw.githubusercontent.com/apollo-com-ph/apollo-claude/main/safe-bash-patterns.json
  interval_minutes: 60

history:
  enabled: true
  # db_path: /path/to/history.db
  retention_days: 30

serve:
  addr: 127.0.0.1:9130

log:
  # trace, debug, info, warn, error
  level: warn
  no_color: false
`

// WriteDefault writes the commented default config to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	return fileutil.SecureWriteFile(path, []byte(defaultTemplate))
}
