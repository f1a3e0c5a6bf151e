package forksmith

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/skaphos/forksmith/internal/cliio"
	"github.com/skaphos/forksmith/internal/registry"
	"github.com/skaphos/forksmith/internal/strutil"
	"github.com/skaphos/forksmith/internal/termstyle"
)

var patchesCmd = &cobra.Command{
	Use:     "patches",
	Aliases: []string{"patch", "ps"},
	Short:   "Inspect and edit the patch registry",
}

var patchesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered patch sets",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawTags, _ := cmd.Flags().GetStringSlice("tag")
		enabledOnly, _ := cmd.Flags().GetBool("enabled")
		noHeaders, _ := cmd.Flags().GetBool("no-headers")
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		reg, _, err := loadRegistryForCommand(cmd)
		if err != nil {
			return err
		}
		sets := reg.FilterByTags(strutil.SplitCSVAll(rawTags))
		if enabledOnly {
			sets = lo.Filter(sets, func(ps registry.PatchSet, _ int) bool { return ps.Enabled })
		}

		if ok, err := writeStructured(cmd, format, sets); ok {
			return err
		}
		limit := adaptiveCellLimit(cmd, 60, 40, 24)
		rows := make([][]string, 0, len(sets))
		for _, ps := range sets {
			rows = append(rows, []string{
				ps.ID,
				ps.Engine.String(),
				enabledCell(ps.Enabled),
				strconv.Itoa(len(ps.Rules)),
				termstyle.Status(colorOutputEnabled, ps.LastStatus),
				truncateASCII(ps.Description, limit),
			})
		}
		logOutputWriteFailure(cmd, "patches table", cliio.WriteTable(cmd.OutOrStdout(), colorOutputEnabled, noHeaders,
			[]string{"ID", "ENGINE", "ENABLED", "RULES", "LAST_STATUS", "DESCRIPTION"}, rows))
		return nil
	},
}

var patchesExplainCmd = &cobra.Command{
	Use:   "explain <id>",
	Short: "Show everything recorded about one patch set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		reg, _, err := loadRegistryForCommand(cmd)
		if err != nil {
			return err
		}
		ps := reg.Find(args[0])
		if ps == nil {
			return fmt.Errorf("no patch set with id %q", args[0])
		}
		if ok, err := writeStructured(cmd, format, ps); ok {
			return err
		}
		logOutputWriteFailure(cmd, "patch set details", cliio.WriteLines(cmd.OutOrStdout(), explainLines(ps)...))
		return nil
	},
}

func explainLines(ps *registry.PatchSet) []string {
	confidence := "-"
	if ps.EngineConfidence != nil {
		confidence = strconv.FormatFloat(*ps.EngineConfidence, 'f', 2, 64)
	}
	lastRun := "-"
	if ps.LastRunTS != nil {
		lastRun = ps.LastRunTS.UTC().Format(time.RFC3339)
	}
	lastMatches := "-"
	if ps.LastMatchCount != nil {
		lastMatches = strconv.Itoa(*ps.LastMatchCount)
	}
	lines := []string{
		"id:                  " + ps.ID,
		"description:         " + dashIfEmpty(ps.Description),
		"engine:              " + ps.Engine.String(),
		"enabled:             " + strconv.FormatBool(ps.Enabled),
		"engine_confidence:   " + confidence,
		"tags:                " + dashIfEmpty(strings.Join(ps.Tags, ", ")),
		"last_applied_commit: " + dashIfEmpty(ps.LastAppliedCommit),
		"last_match_count:    " + lastMatches,
		"last_status:         " + dashIfEmpty(ps.LastStatus),
		"last_run_ts:         " + lastRun,
		"rules:",
	}
	for _, rule := range ps.Rules {
		lines = append(lines, "  - "+rule)
	}
	return lines
}

func newToggleCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, save, err := loadRegistryForCommand(cmd)
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := reg.SetEnabled(id, enabled); err != nil {
					if errors.Is(err, registry.ErrNotFound) {
						return fmt.Errorf("no patch set with id %q", id)
					}
					return err
				}
			}
			if err := save(reg); err != nil {
				return err
			}
			for _, id := range args {
				infof(cmd, "%s: %s", id, enabledWord(enabled))
			}
			return nil
		},
	}
}

var patchesAddCmd = &cobra.Command{
	Use:   "add <id> <rule>...",
	Short: "Register a new patch set",
	Long:  "Rule paths are stored as given and resolved against the workspace root when applied.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawEngine, _ := cmd.Flags().GetString("engine")
		description, _ := cmd.Flags().GetString("description")
		rawTags, _ := cmd.Flags().GetStringSlice("tag")
		disabled, _ := cmd.Flags().GetBool("disabled")

		kind, err := registry.ParseEngineKind(rawEngine)
		if err != nil {
			return err
		}
		reg, save, err := loadRegistryForCommand(cmd)
		if err != nil {
			return err
		}
		ps := registry.PatchSet{
			ID:          args[0],
			Description: description,
			Engine:      kind,
			Enabled:     !disabled,
			Rules:       args[1:],
			Tags:        strutil.SplitCSVAll(rawTags),
		}
		if err := reg.Add(ps); err != nil {
			return err
		}
		if err := save(reg); err != nil {
			return err
		}
		infof(cmd, "registered %s (%s, %d rule(s))", ps.ID, kind, len(ps.Rules))
		return nil
	},
}

func init() {
	patchesListCmd.Flags().StringSlice("tag", nil, "only list patch sets carrying any of these tags (comma-separated)")
	patchesListCmd.Flags().Bool("enabled", false, "only list enabled patch sets")
	addFormatFlag(patchesListCmd)
	addNoHeadersFlag(patchesListCmd)
	addFormatFlag(patchesExplainCmd)

	patchesAddCmd.Flags().String("engine", string(registry.EngineRawDiff), "engine: patch, ast_grep or coccinelle")
	patchesAddCmd.Flags().String("description", "", "human-readable description")
	patchesAddCmd.Flags().StringSlice("tag", nil, "tags (comma-separated)")
	patchesAddCmd.Flags().Bool("disabled", false, "register the patch set disabled")

	patchesCmd.AddCommand(
		patchesListCmd,
		patchesExplainCmd,
		patchesAddCmd,
		newToggleCmd("enable", "Enable patch sets", true),
		newToggleCmd("disable", "Disable patch sets", false),
	)
	rootCmd.AddCommand(patchesCmd)
}

// loadRegistryForCommand loads the workspace registry and returns a saver
// bound to the same path.
func loadRegistryForCommand(cmd *cobra.Command) (*registry.Registry, func(*registry.Registry) error, error) {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return nil, nil, err
	}
	eng := newEngine(cmd, ws)
	reg, err := eng.LoadRegistry()
	if err != nil {
		return nil, nil, err
	}
	debugf(cmd, "registry %s: %d patch set(s)", eng.RegistryPath(), len(reg.PatchSets))
	return reg, eng.SaveRegistry, nil
}

func enabledCell(enabled bool) string {
	if enabled {
		return termstyle.Colorize(colorOutputEnabled, "yes", termstyle.Healthy)
	}
	return termstyle.Colorize(colorOutputEnabled, "no", termstyle.Warn)
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
