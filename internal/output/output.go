// Package output handles formatting CLI output as text or JSON.
package output

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Format represents an output format.
type Format int

const (
	// FormatAuto uses the default format (styled text).
	FormatAuto Format = iota
	// FormatJSON outputs JSON.
	FormatJSON
	// FormatText outputs human-readable text.
	FormatText
)

// Detect returns the appropriate format based on flags and environment.
// Default is text when no explicit format is set.
func Detect(jsonFlag bool) Format {
	if jsonFlag {
		return FormatJSON
	}
	switch os.Getenv("RALPHY_OUTPUT") {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	}
	return FormatText
}

// ColorEnabled reports whether styled output should be used: stdout must
// be a terminal, NO_COLOR unset, and the terminal must advertise color
// support.
func ColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}
