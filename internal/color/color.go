// Package color provides ANSI terminal colors.
package color

import (
	"os"

	"golang.org/x/sys/unix"
)

// ANSI color codes
const (
	reset  = "\033[0m"
	cyan   = "\033[36m"
	bold   = "\033[1m"
	dimmed = "\033[2m"
)

// enabled tracks whether color output is active.
var enabled = isTerminal()

// isTerminal returns true if stdout is a terminal.
func isTerminal() bool {
	_, err := unix.IoctlGetTermios(int(os.Stdout.Fd()), unix.TCGETS)
	return err == nil
}

// Disable turns off color output (useful for piped/redirected output).
func Disable() { enabled = false }

func wrap(c, s string) string {
	if !enabled {
		return s
	}
	return c + s + reset
}

// Bold formats text as bold.
func Bold(s string) string { return wrap(bold, s) }

// Dim formats text as dimmed.
func Dim(s string) string { return wrap(dimmed, s) }

// Header formats a section header.
func Header(s string) string { return wrap(bold+cyan, "--- "+s+" ---") }
