package progress

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether f is a terminal. On Windows it also turns on
// ANSI escape handling so bars render.
func IsTerminal(f *os.File) bool {
	if f == nil || !term.IsTerminal(int(f.Fd())) {
		return false
	}
	enableWindowsANSI(f)
	return true
}
