// SPDX-License-Identifier: MIT
package strutil

import "strings"

// SplitCSV splits a comma-separated list, trimming whitespace and dropping
// empty items.
func SplitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SplitCSVAll flattens repeated comma-separated flag values.
func SplitCSVAll(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, SplitCSV(v)...)
	}
	return out
}
