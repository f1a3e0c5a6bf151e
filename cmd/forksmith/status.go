// SPDX-License-Identifier: MIT
package forksmith

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/skaphos/forksmith/internal/cliio"
	"github.com/skaphos/forksmith/internal/model"
	"github.com/skaphos/forksmith/internal/termstyle"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the vendor tree relative to its fork-of-record and upstream",
	RunE: func(cmd *cobra.Command, args []string) error {
		noHeaders, _ := cmd.Flags().GetBool("no-headers")
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		ws, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		st, err := newEngine(cmd, ws).Status(cmd.Context())
		if err != nil {
			return err
		}
		raiseExitCode(statusExitCode(st))

		if ok, err := writeStructured(cmd, format, st); ok {
			return err
		}
		logOutputWriteFailure(cmd, "status table", writeStatusTable(cmd, st, noHeaders))
		return nil
	},
}

func init() {
	addFormatFlag(statusCmd)
	addNoHeadersFlag(statusCmd)

	rootCmd.AddCommand(statusCmd)
}

// statusExitCode is 1 when the tree needs attention before an update.
func statusExitCode(st *model.ForkStatus) int {
	if len(st.Warnings) > 0 || st.UnmergedPaths || (st.Worktree != nil && st.Worktree.Dirty) {
		return 1
	}
	return 0
}

func writeStatusTable(cmd *cobra.Command, st *model.ForkStatus, noHeaders bool) error {
	out := cmd.OutOrStdout()
	clean := "clean"
	color := termstyle.Healthy
	if st.Worktree != nil && st.Worktree.Dirty {
		clean = fmt.Sprintf("dirty (%d staged, %d unstaged, %d untracked)", st.Worktree.Staged, st.Worktree.Unstaged, st.Worktree.Untracked)
		color = termstyle.Warn
	}
	if st.UnmergedPaths {
		clean = "unmerged paths"
		color = termstyle.Error
	}
	if err := cliio.WriteLines(out,
		"repo:     "+st.Path,
		"branch:   "+st.Branch,
		"head:     "+st.Head,
		"worktree: "+termstyle.Paint(colorOutputEnabled, clean, color),
		"",
	); err != nil {
		return err
	}

	rows := make([][]string, 0, 2)
	for _, ref := range []struct {
		role string
		rs   model.RefStatus
	}{{"local", st.Local}, {"upstream", st.Upstream}} {
		ahead, behind := "-", "-"
		if ref.rs.Divergence != nil && ref.rs.Error == "" {
			ahead = strconv.Itoa(ref.rs.Divergence.Ahead)
			behind = strconv.Itoa(ref.rs.Divergence.Behind)
			if ref.rs.Divergence.Behind > 0 {
				behind = termstyle.Colorize(colorOutputEnabled, behind, termstyle.Warn)
			}
		}
		rows = append(rows, []string{ref.role, ref.rs.Ref, ahead, behind})
	}
	if err := cliio.WriteTable(out, colorOutputEnabled, noHeaders, []string{"ROLE", "REF", "AHEAD", "BEHIND"}, rows); err != nil {
		return err
	}
	for _, w := range st.Warnings {
		if _, err := fmt.Fprintln(out, "warning: "+w); err != nil {
			return err
		}
	}
	return nil
}
