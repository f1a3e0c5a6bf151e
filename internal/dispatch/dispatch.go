// Package dispatch routes patch sets to the engine that applies them and
// normalizes each engine's result into a common Outcome.
//
// Every engine honors the same dry-run contract: a dry run never mutates
// the tree and reports the match count an apply of the same rules would.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/skaphos/forksmith/internal/config"
	"github.com/skaphos/forksmith/internal/execx"
	"github.com/skaphos/forksmith/internal/model"
	"github.com/skaphos/forksmith/internal/registry"
	"github.com/skaphos/forksmith/internal/vcs"
)

const (
	LabelApplied = "applied"
	LabelDryRun  = "dry-run"
)

// ErrUnsupportedEngine is returned for a patch set whose engine kind has no
// implementation.
var ErrUnsupportedEngine = errors.New("unsupported engine")

// Target is where a patch set is applied.
type Target struct {
	// Workspace is the root relative rule references resolve against.
	Workspace string
	// Tree is the vendor working tree being transformed.
	Tree string
}

// Outcome is the normalized result of applying one patch set.
type Outcome struct {
	// Matches is nil when the engine reported no count (skips).
	Matches  *int
	Label    string
	Skipped  bool
	Reason   string
	Rules    []model.RuleReport
	Warnings []string
}

// FailedRules counts rule reports that did not succeed.
func (o Outcome) FailedRules() int {
	n := 0
	for _, r := range o.Rules {
		if !r.OK {
			n++
		}
	}
	return n
}

func skipped(reason string) Outcome {
	return Outcome{
		Label:    "skipped: " + reason,
		Skipped:  true,
		Reason:   reason,
		Warnings: []string{reason},
	}
}

// ApplyError is a fatal failure applying one rule of a patch set.
type ApplyError struct {
	PatchSet string
	Rule     string
	Err      error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("patch set %s: rule %s: %v", e.PatchSet, e.Rule, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Engine applies the rules of a patch set to a target tree.
type Engine interface {
	Kind() registry.EngineKind
	Apply(ctx context.Context, ps registry.PatchSet, target Target, dryRun bool) (Outcome, error)
}

// Dispatcher holds one engine per supported kind.
type Dispatcher struct {
	RawDiff    Engine
	Structural Engine
	Semantic   Engine
}

// New wires the three engines from configuration.
func New(adapter vcs.Adapter, runner execx.Runner, engines config.EnginesConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = execx.OSRunner{}
	}
	if adapter == nil {
		adapter = vcs.NewGitAdapter(nil)
	}
	return &Dispatcher{
		RawDiff: &RawDiff{Adapter: adapter, Logger: logger.Named("patch")},
		Structural: &Structural{
			Runner:   runner,
			Binary:   engines.AstGrep.Binary,
			RulesDir: engines.AstGrep.RulesDir,
			Target:   engines.AstGrep.Target,
			Logger:   logger.Named("ast_grep"),
		},
		Semantic: &Semantic{
			Runner:    runner,
			Binary:    engines.Coccinelle.Binary,
			RulesDir:  engines.Coccinelle.RulesDir,
			Extension: engines.Coccinelle.Extension,
			Target:    engines.Coccinelle.Target,
			Logger:    logger.Named("coccinelle"),
		},
	}
}

// Engine returns the engine registered for kind.
func (d *Dispatcher) Engine(kind registry.EngineKind) (Engine, error) {
	var engine Engine
	switch kind {
	case registry.EngineRawDiff:
		engine = d.RawDiff
	case registry.EngineStructural:
		engine = d.Structural
	case registry.EngineSemantic:
		engine = d.Semantic
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedEngine, kind)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w %q: no engine configured", ErrUnsupportedEngine, kind)
	}
	return engine, nil
}

// Apply routes ps to its engine.
func (d *Dispatcher) Apply(ctx context.Context, ps registry.PatchSet, target Target, dryRun bool) (Outcome, error) {
	engine, err := d.Engine(ps.Engine)
	if err != nil {
		return Outcome{}, fmt.Errorf("patch set %s: %w", ps.ID, err)
	}
	return engine.Apply(ctx, ps, target, dryRun)
}

func resolve(base, rel string) string {
	return config.ResolvePath(base, rel)
}

// displayRule shortens an absolute rule path to be workspace-relative when
// possible.
func displayRule(workspace, path string) string {
	if workspace == "" {
		return path
	}
	rel, err := filepath.Rel(workspace, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

func ruleFailure(rule string, err error) model.RuleReport {
	report := model.RuleReport{Rule: rule, ExitCode: -1, Error: err.Error()}
	var cmdErr *execx.CommandError
	if errors.As(err, &cmdErr) {
		report.ExitCode = cmdErr.ExitCode
		if cmdErr.Stderr != "" {
			report.Error = cmdErr.Stderr
		}
	}
	return report
}

func modeLabel(dryRun bool) string {
	if dryRun {
		return LabelDryRun
	}
	return LabelApplied
}

func partialLabel(failed, total int) string {
	return fmt.Sprintf("partial: %d of %d rules failed", failed, total)
}
