package forksmith

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/skaphos/forksmith/internal/cliio"
)

type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
	outputYAML  outputFormat = "yaml"
)

const noHeadersUsage = "when using table format, do not print headers"

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", "table", "output format: table, json, yaml")
}

func addNoHeadersFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("no-headers", false, noHeadersUsage)
}

func parseOutputFormat(raw string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case "", outputTable:
		return outputTable, nil
	case outputJSON, outputYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (expected table, json, or yaml)", raw)
	}
}

// formatFlag parses --format and sets the color mode for the command.
func formatFlag(cmd *cobra.Command) (outputFormat, error) {
	raw, _ := cmd.Flags().GetString("format")
	format, err := parseOutputFormat(raw)
	if err != nil {
		return "", err
	}
	setColorOutputMode(cmd, string(format))
	return format, nil
}

// writeStructured handles the json and yaml formats. It returns false for
// table output, which each command renders itself.
func writeStructured(cmd *cobra.Command, format outputFormat, v any) (bool, error) {
	switch format {
	case outputJSON:
		return true, cliio.WriteJSON(cmd.OutOrStdout(), v)
	case outputYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return true, err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return true, err
	default:
		return false, nil
	}
}

// logOutputWriteFailure records non-fatal output write/flush failures.
// CLI consumers frequently pipe to tools that close early (for example `head`),
// so we log and continue instead of treating these as command failures.
func logOutputWriteFailure(cmd *cobra.Command, context string, err error) {
	if err == nil {
		return
	}
	debugf(cmd, "ignored output write failure (%s): %v", context, err)
}

func truncateASCII(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
