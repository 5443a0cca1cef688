//go:build unix

package refresh

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/apollo-com-ph/apollo-claude/internal/config"
)

// spawnDetached re-executes this binary as `update --detached` in its own
// session, so the download outlives the hook process that kicked it off.
func spawnDetached() (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %w", err)
	}

	// SECURITY: Validate executable path is absolute
	if !filepath.IsAbs(executable) {
		return 0, fmt.Errorf("executable path must be absolute: %s", executable)
	}

	cmd := exec.CommandContext(context.Background(), executable, "update", "--detached")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	// SECURITY: Use restricted environment to prevent injection attacks
	// Only propagate essential environment variables
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
		"USER=" + os.Getenv("USER"),
	}
	for _, key := range []string{
		config.EnvStateDir,
		"SAFE_BASH_UPDATE_TOKEN",
		"SAFE_BASH_UPDATE_URL",
		"SAFE_BASH_LOG_LEVEL",
		"HTTP_PROXY", "http_proxy",
		"HTTPS_PROXY", "https_proxy",
		"NO_PROXY", "no_proxy",
		"ALL_PROXY", "all_proxy",
	} {
		if v := os.Getenv(key); v != "" {
			cmd.Env = append(cmd.Env, key+"="+v)
		}
	}

	// Start in new session (detach from terminal)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start update process: %w", err)
	}

	pid := cmd.Process.Pid

	// Don't wait for the process - it runs on its own
	_ = cmd.Process.Release()

	return pid, nil
}
