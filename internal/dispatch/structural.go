package dispatch

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/skaphos/forksmith/internal/discovery"
	"github.com/skaphos/forksmith/internal/execx"
	"github.com/skaphos/forksmith/internal/model"
	"github.com/skaphos/forksmith/internal/registry"
)

// Structural runs ast-grep rules. A missing binary or rules directory
// skips the patch set; a failing rule is recorded and the rest still run.
type Structural struct {
	Runner   execx.Runner
	Binary   string
	RulesDir string
	// Target is scanned relative to the tree; empty scans the whole tree.
	Target string
	Logger *zap.Logger
}

func (e *Structural) Kind() registry.EngineKind { return registry.EngineStructural }

// Apply previews every rule to count matches, then rewrites in place unless
// dryRun is set. Matches is the number of preview result lines.
func (e *Structural) Apply(ctx context.Context, ps registry.PatchSet, target Target, dryRun bool) (Outcome, error) {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := e.Binary
	if name == "" {
		name = "ast-grep"
	}
	bin, err := e.Runner.LookPath(name)
	if err != nil {
		logger.Warn("structural engine unavailable", zap.String("binary", name), zap.Error(err))
		return skipped(name + " binary not found"), nil
	}
	rulesDir := resolve(target.Workspace, e.RulesDir)
	if !discovery.DirExists(rulesDir) {
		return skipped(fmt.Sprintf("rule config %s missing", rulesDir)), nil
	}

	rules := ps.Rules
	if len(rules) == 0 {
		found, err := discovery.Rules(ctx, discovery.Options{
			Dir:     rulesDir,
			Include: discovery.ExtensionPatterns(".yml", ".yaml"),
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("patch set %s: discover rules: %w", ps.ID, err)
		}
		for _, f := range found {
			rules = append(rules, displayRule(target.Workspace, f))
		}
	}

	scan := resolve(target.Tree, e.Target)
	if scan == "" {
		scan = target.Tree
	}
	out := Outcome{Label: modeLabel(dryRun)}
	total := 0
	for _, rule := range rules {
		path := resolve(target.Workspace, rule)
		count, err := e.runRule(ctx, bin, target.Tree, path, scan, dryRun)
		if err != nil {
			report := ruleFailure(rule, err)
			out.Rules = append(out.Rules, report)
			out.Warnings = append(out.Warnings, fmt.Sprintf("ast-grep rule %s failed in %s: %s", rule, ps.ID, report.Error))
			logger.Warn("structural rule failed", zap.String("patch_set", ps.ID), zap.String("rule", rule), zap.Error(err))
			continue
		}
		total += count
		out.Rules = append(out.Rules, model.RuleReport{Rule: rule, OK: true, Matches: model.IntPtr(count)})
	}
	out.Matches = model.IntPtr(total)
	if failed := out.FailedRules(); failed > 0 {
		out.Label = partialLabel(failed, len(rules))
	}
	return out, nil
}

func (e *Structural) runRule(ctx context.Context, bin, dir, rule, scan string, dryRun bool) (int, error) {
	if _, err := os.Stat(rule); err != nil {
		return 0, fmt.Errorf("rule config %s missing", rule)
	}
	res, err := e.Runner.Run(ctx, dir, bin, "scan", "--rule", rule, "--json=stream", scan)
	if err != nil {
		return 0, err
	}
	count := countLines(res.Stdout)
	if dryRun {
		return count, nil
	}
	if _, err := e.Runner.Run(ctx, dir, bin, "scan", "--rule", rule, "--update-all", scan); err != nil {
		return 0, err
	}
	return count, nil
}

func countLines(out string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
