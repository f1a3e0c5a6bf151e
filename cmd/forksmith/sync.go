package forksmith

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run only the fork sync step",
	Long:  "Fetches and merges (or, outside fork mode, resets) the vendor tree without applying patch sets or building.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		res, err := newEngine(cmd, ws).Sync(cmd.Context())
		for _, note := range res.Notes {
			infof(cmd, "%s", note)
		}
		for _, w := range res.Warnings {
			infof(cmd, "warning: %s", w)
		}
		if err != nil {
			return err
		}
		if len(res.Warnings) > 0 {
			raiseExitCode(1)
		}
		infof(cmd, "fork sync complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
