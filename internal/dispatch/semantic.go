package dispatch

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/skaphos/forksmith/internal/discovery"
	"github.com/skaphos/forksmith/internal/execx"
	"github.com/skaphos/forksmith/internal/model"
	"github.com/skaphos/forksmith/internal/registry"
)

// Semantic runs coccinelle semantic patches, once per rule file. Each rule
// succeeds or fails on its own.
type Semantic struct {
	Runner    execx.Runner
	Binary    string
	RulesDir  string
	Extension string
	Target    string
	Logger    *zap.Logger
}

func (e *Semantic) Kind() registry.EngineKind { return registry.EngineSemantic }

// Apply runs every rule in preview or apply mode. Matches is the number of
// rules that succeeded.
func (e *Semantic) Apply(ctx context.Context, ps registry.PatchSet, target Target, dryRun bool) (Outcome, error) {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := e.Binary
	if name == "" {
		name = "coccinelle-for-rust"
	}
	bin, err := e.Runner.LookPath(name)
	if err != nil {
		logger.Warn("semantic engine unavailable", zap.String("binary", name), zap.Error(err))
		return skipped(name + " binary not found"), nil
	}

	rules := ps.Rules
	if len(rules) == 0 {
		rulesDir := resolve(target.Workspace, e.RulesDir)
		if !discovery.DirExists(rulesDir) {
			return skipped(fmt.Sprintf("rule directory %s missing", rulesDir)), nil
		}
		ext := e.Extension
		if ext == "" {
			ext = ".cocci"
		}
		found, err := discovery.Rules(ctx, discovery.Options{
			Dir:     rulesDir,
			Include: discovery.ExtensionPatterns(ext),
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
	succeeded := 0
	for _, rule := range rules {
		path := resolve(target.Workspace, rule)
		res, err := e.runRule(ctx, bin, target.Tree, path, scan, dryRun)
		if err != nil {
			report := ruleFailure(rule, err)
			out.Rules = append(out.Rules, report)
			out.Warnings = append(out.Warnings, fmt.Sprintf("coccinelle rule %s failed in %s: %s", rule, ps.ID, report.Error))
			logger.Warn("semantic rule failed", zap.String("patch_set", ps.ID), zap.String("rule", rule), zap.Error(err))
			continue
		}
		succeeded++
		out.Rules = append(out.Rules, model.RuleReport{Rule: rule, OK: true, ExitCode: res.ExitCode})
	}
	out.Matches = model.IntPtr(succeeded)
	if failed := len(rules) - succeeded; failed > 0 {
		out.Label = partialLabel(failed, len(rules))
	}
	return out, nil
}

func (e *Semantic) runRule(ctx context.Context, bin, dir, rule, scan string, dryRun bool) (execx.Result, error) {
	if _, err := os.Stat(rule); err != nil {
		return execx.Result{}, fmt.Errorf("semantic patch %s missing", rule)
	}
	args := []string{"--patch", rule, scan}
	if !dryRun {
		args = append(args, "--apply")
	}
	return e.Runner.Run(ctx, dir, bin, args...)
}
