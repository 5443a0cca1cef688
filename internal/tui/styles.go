package tui

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/apollo-com-ph/apollo-claude/internal/tui/terminal"
)

// plainMode disables all styling: no colors, no icons. Output becomes clean
// plain text suitable for CI, piped output, or --no-color.
var (
	plainMode bool
	plainOnce sync.Once
	plainMu   sync.RWMutex
)

// initPlainMode auto-detects plain mode from environment on first call.
// Precedence: NO_COLOR > TTY detection > terminal capability detection.
func initPlainMode() {
	plainOnce.Do(func() {
		// NO_COLOR wins — https://no-color.org
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			plainMode = true
			return
		}
		// Not a terminal (piped, redirected, hook invocation) → plain mode
		if !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec // Fd() fits in int on all supported platforms
			plainMode = true
			return
		}
		// Unknown terminal with no detected capabilities → plain mode.
		if terminal.Detect().Caps == terminal.CapNone {
			plainMode = true
		}
	})
}

// SetPlainMode explicitly enables or disables plain mode.
// Call this early (e.g. when parsing --no-color) before any styled output.
func SetPlainMode(plain bool) {
	plainMu.Lock()
	defer plainMu.Unlock()
	plainMode = plain
	// Mark as initialized so auto-detect doesn't override
	plainOnce.Do(func() {})
}

// IsPlainMode returns true if styling is disabled.
func IsPlainMode() bool {
	initPlainMode()
	plainMu.RLock()
	defer plainMu.RUnlock()
	return plainMode
}

// Color palette — cool steel tones with signal colors for verdicts.
// Adapts to OS theme.
var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#2B5F8A", Dark: "#6FA8DC"} // Steel Blue
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#4A6B8A", Dark: "#8FB8D8"} // Slate
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#4A7A3A", Dark: "#7FB069"} // Green
	ColorError   = lipgloss.AdaptiveColor{Light: "#A83228", Dark: "#D95E40"} // Signal Red
	ColorWarning = lipgloss.AdaptiveColor{Light: "#9A7B0A", Dark: "#E6B450"} // Amber
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#3A6B8A", Dark: "#82AAC7"} // Sky
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#8A9199"} // Gray
)

// Reusable styles.
var (
	StyleTitle    = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	StyleSubtitle = lipgloss.NewStyle().Foreground(ColorAccent)
	StyleSuccess  = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleError    = lipgloss.NewStyle().Foreground(ColorError)
	StyleWarning  = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleInfo     = lipgloss.NewStyle().Foreground(ColorInfo)
	StyleMuted    = lipgloss.NewStyle().Foreground(ColorMuted)
	StyleBold     = lipgloss.NewStyle().Bold(true)
	StyleCommand  = lipgloss.NewStyle().Foreground(ColorPrimary)

	// Branded prefix: [safe-bash] (unexported — use Prefix() instead)
	stylePrefix = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
)

// Prefix returns the branded [safe-bash] prefix string.
func Prefix() string {
	if IsPlainMode() {
		return "[safe-bash]"
	}
	return stylePrefix.Render("[safe-bash]")
}

// SeverityStyle returns the style for a lint severity level.
func SeverityStyle(severity string) lipgloss.Style {
	switch severity {
	case "error":
		return StyleError
	case "warning":
		return StyleWarning
	case "info":
		return StyleInfo
	default:
		return StyleMuted
	}
}

// SeverityBadge returns a styled severity badge like "▪ ERROR".
func SeverityBadge(severity string) string {
	label := severityLabel(severity)
	if IsPlainMode() {
		return "[" + label + "]"
	}
	return SeverityStyle(severity).Render(IconSquare + " " + label)
}

func severityLabel(severity string) string {
	switch severity {
	case "error":
		return "ERROR"
	case "warning":
		return "WARNING"
	case "info":
		return "INFO"
	default:
		return severity
	}
}

// hasCapability reports whether the current terminal supports the given capability.
// Always returns false in plain mode (no styled output).
func hasCapability(c terminal.Capability) bool {
	if IsPlainMode() {
		return false
	}
	return terminal.Detect().Caps.Has(c)
}

// Hyperlink wraps text in an OSC 8 clickable link if the terminal supports it.
// Falls back to plain text when unsupported or in plain mode.
func Hyperlink(url, text string) string {
	if url == "" || !hasCapability(terminal.CapHyperlinks) {
		return text
	}
	return termenv.Hyperlink(url, text)
}

var styleFaint = lipgloss.NewStyle().Faint(true)

// Faint returns text with faint/dim formatting if supported.
func Faint(text string) string {
	if !hasCapability(terminal.CapFaint) {
		return text
	}
	return styleFaint.Render(text)
}
