//go:build windows

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

// spawnDetached re-executes this binary as `update --detached` detached
// from the console, so the download outlives the hook process.
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
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"USERPROFILE=" + os.Getenv("USERPROFILE"),
		"LOCALAPPDATA=" + os.Getenv("LOCALAPPDATA"),
		"USERNAME=" + os.Getenv("USERNAME"),
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

	// Detach from console: CREATE_NEW_PROCESS_GROUP
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start update process: %w", err)
	}

	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	return pid, nil
}
