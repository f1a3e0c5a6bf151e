package forksmith

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/skaphos/forksmith/internal/cliio"
	"github.com/skaphos/forksmith/internal/engine"
	"github.com/skaphos/forksmith/internal/termstyle"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the workspace, registry, remotes and engine binaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		ws, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		report, err := newEngine(cmd, ws).Doctor(cmd.Context())
		if err != nil {
			return err
		}
		if !report.Healthy() {
			raiseExitCode(1)
		}
		if ok, err := writeStructured(cmd, format, report); ok {
			return err
		}
		logOutputWriteFailure(cmd, "doctor table", writeDoctorTable(cmd, report))
		return nil
	},
}

func init() {
	addFormatFlag(doctorCmd)

	rootCmd.AddCommand(doctorCmd)
}

func writeDoctorTable(cmd *cobra.Command, report *engine.DoctorReport) error {
	out := cmd.OutOrStdout()
	rows := [][]string{
		{"workspace", report.Workspace, ""},
		{"vendor", report.VendorDir, yesNo(report.VendorExists)},
		{"vendor repo", "", yesNo(report.VendorIsRepo)},
		{"registry", report.RegistryPath, yesNo(report.RegistryExists)},
		{"patch sets", strconv.Itoa(report.PatchSets) + " registered, " + strconv.Itoa(report.EnabledPatchSets) + " enabled", ""},
	}
	for _, tool := range report.Tools {
		where := tool.Path
		if !tool.Found {
			where = tool.Binary + " (not on PATH)"
		}
		rows = append(rows, []string{"tool " + tool.Name, where, yesNo(tool.Found)})
	}
	if err := cliio.WriteTable(out, colorOutputEnabled, false, []string{"CHECK", "DETAIL", "OK"}, rows); err != nil {
		return err
	}
	for _, p := range report.Problems {
		if _, err := fmt.Fprintln(out, termstyle.Paint(colorOutputEnabled, "problem: "+p, termstyle.Error)); err != nil {
			return err
		}
	}
	return nil
}

func yesNo(ok bool) string {
	if ok {
		return termstyle.Colorize(colorOutputEnabled, "yes", termstyle.Healthy)
	}
	return termstyle.Colorize(colorOutputEnabled, "no", termstyle.Error)
}
