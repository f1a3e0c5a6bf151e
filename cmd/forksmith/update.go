// SPDX-License-Identifier: MIT
package forksmith

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/skaphos/forksmith/internal/cliio"
	"github.com/skaphos/forksmith/internal/engine"
	"github.com/skaphos/forksmith/internal/model"
	"github.com/skaphos/forksmith/internal/registry"
	"github.com/skaphos/forksmith/internal/termstyle"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Sync the vendor tree, re-apply patch sets and build",
	Long: "Runs the fork sync, applies every enabled patch set in id order, saves the registry " +
		"and runs the build. --dry-run previews patches without touching the tree and skips the build; " +
		"the registry still records the previewed statuses.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		skipBuild, _ := cmd.Flags().GetBool("skip-build")
		noHeaders, _ := cmd.Flags().GetBool("no-headers")
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		ws, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		eng := newEngine(cmd, ws)
		infof(cmd, "forksmith update: workspace %s, vendor %s, dry-run %t", ws.root, eng.VendorDir(), dryRun)

		summary, err := eng.Update(cmd.Context(), engine.UpdateOptions{DryRun: dryRun, SkipBuild: skipBuild})
		if err != nil {
			for _, w := range summary.Warnings {
				infof(cmd, "warning: %s", w)
			}
			return err
		}
		raiseExitCode(updateExitCode(summary))

		if ok, err := writeStructured(cmd, format, summary); ok {
			return err
		}
		logOutputWriteFailure(cmd, "update table", writeUpdateTable(cmd, summary, noHeaders))
		return nil
	},
}

func init() {
	updateCmd.Flags().Bool("dry-run", false, "preview patch sets without modifying the tree or building (statuses are still recorded)")
	updateCmd.Flags().Bool("skip-build", false, "do not run the build command")
	addFormatFlag(updateCmd)
	addNoHeadersFlag(updateCmd)

	rootCmd.AddCommand(updateCmd)
}

// updateExitCode maps a summary to 0 (clean), 1 (warnings or degraded
// patch sets) or 2 (failed rules or a failed build).
func updateExitCode(summary *model.UpdateSummary) int {
	code := 0
	if len(summary.Warnings) > 0 {
		code = 1
	}
	for _, p := range summary.Patches {
		if registry.IsDegraded(p.Status) && code < 1 {
			code = 1
		}
		for _, r := range p.Rules {
			if !r.OK {
				code = 2
			}
		}
	}
	if engine.BuildFailed(summary.BuildStatus) {
		code = 2
	}
	return code
}

func writeUpdateTable(cmd *cobra.Command, summary *model.UpdateSummary, noHeaders bool) error {
	out := cmd.OutOrStdout()
	mode := "apply"
	if summary.DryRun {
		mode = "dry-run"
	}
	if err := cliio.WriteLines(out,
		fmt.Sprintf("run:    %s (%s)", summary.RunID, mode),
		fmt.Sprintf("vendor: %s -> %s", shortCommit(summary.HeadBefore), shortCommit(summary.HeadAfter)),
		"",
	); err != nil {
		return err
	}

	rows := make([][]string, 0, len(summary.Patches))
	for _, p := range summary.Patches {
		rows = append(rows, []string{
			p.ID,
			p.Engine,
			termstyle.Status(colorOutputEnabled, p.Status),
			matchesCell(p.Matches),
		})
	}
	if len(rows) == 0 {
		if err := cliio.WriteLines(out, "no patch sets registered"); err != nil {
			return err
		}
	} else if err := cliio.WriteTable(out, colorOutputEnabled, noHeaders, []string{"PATCH_SET", "ENGINE", "STATUS", "MATCHES"}, rows); err != nil {
		return err
	}

	lines := []string{""}
	if len(summary.Notes) > 0 {
		lines = append(lines, "notes:")
		for _, n := range summary.Notes {
			lines = append(lines, "  - "+n)
		}
	}
	if len(summary.Warnings) > 0 {
		lines = append(lines, "warnings:")
		for _, w := range summary.Warnings {
			lines = append(lines, "  - "+w)
		}
	}
	lines = append(lines, "build:  "+termstyle.Paint(colorOutputEnabled, summary.BuildStatus, termstyle.ForStatus(summary.BuildStatus)))
	return cliio.WriteLines(out, lines...)
}

func matchesCell(matches *int) string {
	if matches == nil {
		return "-"
	}
	return strconv.Itoa(*matches)
}

func shortCommit(commit string) string {
	if commit == "" {
		return "-"
	}
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
