package ui

import (
	"fmt"

	"github.com/alfredjeanlab/timegate/internal/model"
)

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorMuted  = 245 // medium gray
	colorOpen   = 114 // green
	colorClosed = 203 // red
	colorWarn   = 221 // yellow
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderWarn returns s in the warning (yellow) color.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderState returns the state name colored green for open and red for
// closed.
func RenderState(s model.GateState) string {
	if s == model.StateOpen {
		return paint(colorOpen, string(s))
	}
	return paint(colorClosed, string(s))
}

// RenderAllowed returns "allow" or "deny" colored like RenderState.
func RenderAllowed(allowed bool) string {
	if allowed {
		return paint(colorOpen, "allow")
	}
	return paint(colorClosed, "deny")
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// ColorEnabled reports whether Render functions emit ANSI escapes.
func ColorEnabled() bool {
	return !noColor
}
