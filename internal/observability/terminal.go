package observability

import (
	"os"

	"golang.org/x/term"
)

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// IsTerminal reports whether stdout is attached to a terminal. Commands use
// it to pick table output over JSONL.
func IsTerminal() bool {
	return isTerminal(os.Stdout)
}
