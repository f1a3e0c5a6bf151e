// SPDX-License-Identifier: MIT
package forksmith

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/skaphos/forksmith/internal/cliio"
	"github.com/skaphos/forksmith/internal/config"
	"github.com/skaphos/forksmith/internal/registry"
)

// stdinIsTerminal is overridable in tests.
var stdinIsTerminal = func() bool { return isTerminalFD(int(os.Stdin.Fd())) }

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap a forksmith workspace",
	Long:  "Writes a .forksmith.yaml in the current directory by default and creates an empty patch registry.",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		vendorRoot, _ := cmd.Flags().GetString("vendor")
		branch, _ := cmd.Flags().GetString("branch")
		forkMode, _ := cmd.Flags().GetBool("fork")

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		cfgPath, err := config.InitConfigPath(configOverride(cmd), cwd)
		if err != nil {
			return err
		}
		if _, err := os.Stat(cfgPath); err == nil && !force {
			if !stdinIsTerminal() {
				return fmt.Errorf("config already exists at %q (use --force to overwrite)", cfgPath)
			}
			ok, err := cliio.PromptYesNo(cmd.ErrOrStderr(), cmd.InOrStdin(), fmt.Sprintf("Overwrite %s? [y/N]: ", cfgPath))
			if err != nil {
				return err
			}
			if !ok {
				infof(cmd, "left %s unchanged", cfgPath)
				return nil
			}
		}

		cfg := config.DefaultConfig()
		if vendorRoot != "" {
			cfg.Vendor.Root = vendorRoot
		}
		if branch != "" {
			cfg.Vendor.Branch = branch
		}
		cfg.Fork.Enabled = forkMode
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote config to %s\n", cfgPath); err != nil {
			return err
		}

		regPath := cfg.RegistryPath(config.WorkspaceRoot(cfgPath))
		if _, err := os.Stat(regPath); errors.Is(err, fs.ErrNotExist) {
			if err := registry.Save(registry.New("forksmith "+Version), regPath); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Created empty registry at %s\n", regPath); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite existing config without prompting")
	initCmd.Flags().String("vendor", "", "vendor tree path relative to the workspace (default "+config.DefaultVendorRoot+")")
	initCmd.Flags().String("branch", "", "vendor branch (default "+config.DefaultBranch+")")
	initCmd.Flags().Bool("fork", false, "enable fork mode (merge fork-of-record and upstream instead of resetting)")

	rootCmd.AddCommand(initCmd)
}
