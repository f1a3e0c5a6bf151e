package dispatch

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/skaphos/forksmith/internal/model"
	"github.com/skaphos/forksmith/internal/registry"
	"github.com/skaphos/forksmith/internal/vcs"
)

// RawDiff applies unified diff files with a three-way, whitespace-lenient
// git apply. Any rule failing is fatal for the whole patch set.
type RawDiff struct {
	Adapter vcs.Adapter
	Logger  *zap.Logger
}

func (e *RawDiff) Kind() registry.EngineKind { return registry.EngineRawDiff }

// Apply validates (dry run) or applies every rule in order. Matches is the
// number of rules that applied.
func (e *RawDiff) Apply(ctx context.Context, ps registry.PatchSet, target Target, dryRun bool) (Outcome, error) {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := Outcome{Label: modeLabel(dryRun)}
	for _, rule := range ps.Rules {
		path := resolve(target.Workspace, rule)
		if _, err := os.Stat(path); err != nil {
			return Outcome{}, &ApplyError{PatchSet: ps.ID, Rule: rule, Err: fmt.Errorf("patch file: %w", err)}
		}
		if err := e.Adapter.ApplyPatch(ctx, target.Tree, path, dryRun); err != nil {
			return Outcome{}, &ApplyError{PatchSet: ps.ID, Rule: rule, Err: err}
		}
		logger.Debug("patch applied", zap.String("patch_set", ps.ID), zap.String("rule", rule), zap.Bool("check", dryRun))
		out.Rules = append(out.Rules, model.RuleReport{Rule: rule, OK: true})
	}
	out.Matches = model.IntPtr(len(out.Rules))
	return out, nil
}
