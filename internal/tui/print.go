package tui

import (
	"fmt"
	"os"
)

// PrintSuccess prints a styled success message with the [safe-bash] prefix.
func PrintSuccess(msg string) {
	if IsPlainMode() {
		fmt.Printf("[safe-bash] OK: %s\n", msg)
		return
	}
	fmt.Printf("%s %s %s\n", Prefix(), StyleSuccess.Render(IconCheck), msg)
}

// PrintError prints a styled error message with the [safe-bash] prefix.
func PrintError(msg string) {
	if IsPlainMode() {
		fmt.Fprintf(os.Stderr, "[safe-bash] ERROR: %s\n", msg)
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s %s\n", Prefix(), StyleError.Render(IconCross), msg)
}

// PrintWarning prints a styled warning message with the [safe-bash] prefix.
func PrintWarning(msg string) {
	if IsPlainMode() {
		fmt.Printf("[safe-bash] WARNING: %s\n", msg)
		return
	}
	fmt.Printf("%s %s %s\n", Prefix(), StyleWarning.Render(IconWarning), msg)
}

// PrintInfo prints a styled info message with the [safe-bash] prefix.
func PrintInfo(msg string) {
	if IsPlainMode() {
		fmt.Printf("[safe-bash] %s\n", msg)
		return
	}
	fmt.Printf("%s %s %s\n", Prefix(), StyleInfo.Render(IconInfo), msg)
}

// PrintDenied prints the styled verdict line for a denied command.
func PrintDenied(reason string) {
	if IsPlainMode() {
		fmt.Printf("[safe-bash] DENIED: %s\n", reason)
		return
	}
	fmt.Printf("%s %s %s %s\n", Prefix(), StyleError.Render(IconBlock), StyleError.Render("DENIED"), reason)
}

// PrintAllowed prints the styled verdict line for an allowed command.
func PrintAllowed() {
	if IsPlainMode() {
		fmt.Printf("[safe-bash] ALLOWED\n")
		return
	}
	fmt.Printf("%s %s %s\n", Prefix(), StyleSuccess.Render(IconCheck), StyleSuccess.Render("ALLOWED"))
}
