// Package tableutil builds the aligned tables forksmith prints.
package tableutil

import (
	"fmt"
	"io"
	"strings"

	"github.com/liggitt/tabwriter"
)

// New creates a tabwriter with forksmith's column spacing. With stripEscape
// set, escaped ANSI sequences are excluded from column widths.
func New(out io.Writer, stripEscape bool) *tabwriter.Writer {
	var flags uint
	if stripEscape {
		flags = tabwriter.StripEscape
	}
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', flags)
}

// PrintHeaders writes a tab-separated header row unless disabled.
func PrintHeaders(w io.Writer, noHeaders bool, headers ...string) error {
	if noHeaders || len(headers) == 0 {
		return nil
	}
	_, err := fmt.Fprintln(w, strings.Join(headers, "\t"))
	return err
}

// PrintRow writes one tab-separated row. Empty cells render as "-".
func PrintRow(w io.Writer, cells ...string) error {
	out := make([]string, len(cells))
	for i, c := range cells {
		if strings.TrimSpace(c) == "" {
			c = "-"
		}
		out[i] = c
	}
	_, err := fmt.Fprintln(w, strings.Join(out, "\t"))
	return err
}
