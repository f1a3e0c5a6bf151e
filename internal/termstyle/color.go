// SPDX-License-Identifier: MIT
// Package termstyle colors table cells for terminal output.
package termstyle

import (
	"strings"

	"github.com/liggitt/tabwriter"
)

const (
	Reset = "\x1b[0m"
	Green = "\x1b[32m"
	Brown = "\x1b[33m"
	Red   = "\x1b[31m"
	Blue  = "\x1b[34m"

	// Semantic aliases used by table/status output.
	Healthy = Green
	Warn    = Brown
	Error   = Red
	Info    = Blue
)

// Colorize wraps a value in ANSI escapes when color output is enabled.
func Colorize(enabled bool, value, color string) string {
	if !enabled || value == "" || color == "" {
		return value
	}
	// Hide ANSI sequences from tabwriter width calculations so columns align.
	esc := string([]byte{tabwriter.Escape})
	return esc + color + esc + value + esc + Reset + esc
}

// Paint wraps a value in ANSI escapes for output that does not pass
// through a tabwriter.
func Paint(enabled bool, value, color string) string {
	if !enabled || value == "" || color == "" {
		return value
	}
	return color + value + Reset
}

// ForStatus picks the color of a patch set or build status.
func ForStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case s == "":
		return ""
	case strings.HasPrefix(s, "degraded"), strings.HasPrefix(s, "failed"), strings.HasPrefix(s, "partial"):
		return Error
	case strings.HasPrefix(s, "skipped"), s == "no-matches":
		return Warn
	case strings.HasPrefix(s, "applied"), s == "succeeded":
		return Healthy
	default:
		return Info
	}
}

// Status colors a status with ForStatus.
func Status(enabled bool, status string) string {
	return Colorize(enabled, status, ForStatus(status))
}
