// Package engine orchestrates the core operations: update, sync, status and
// doctor. It coordinates between forksync, registry, dispatch and build.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skaphos/forksmith/internal/build"
	"github.com/skaphos/forksmith/internal/config"
	"github.com/skaphos/forksmith/internal/discovery"
	"github.com/skaphos/forksmith/internal/dispatch"
	"github.com/skaphos/forksmith/internal/execx"
	"github.com/skaphos/forksmith/internal/forksync"
	"github.com/skaphos/forksmith/internal/model"
	"github.com/skaphos/forksmith/internal/registry"
	"github.com/skaphos/forksmith/internal/vcs"
)

// Build status values recorded in the update summary.
const (
	BuildSkippedDryRun = "skipped (dry-run)"
	BuildSkippedFlag   = "skipped (--skip-build)"
	BuildSucceeded     = "succeeded"
)

// ErrVendorMissing is returned when the vendor tree does not exist.
var ErrVendorMissing = errors.New("vendor directory does not exist")

// Options wires an Engine. Only Config and Workspace are required.
type Options struct {
	Config     *config.Config
	Workspace  string
	Adapter    vcs.Adapter
	Runner     execx.Runner
	Dispatcher *dispatch.Dispatcher
	Builder    *build.Builder
	Logger     *zap.Logger
	Now        func() time.Time
	// GeneratedBy stamps registries created by this engine.
	GeneratedBy string
}

// Engine is the core orchestrator for forksmith operations.
type Engine struct {
	cfg         *config.Config
	workspace   string
	adapter     vcs.Adapter
	runner      execx.Runner
	dispatcher  *dispatch.Dispatcher
	builder     *build.Builder
	logger      *zap.Logger
	now         func() time.Time
	generatedBy string
}

// New creates an Engine, filling unset collaborators with the git CLI, the
// OS process runner and the configured engines.
func New(opts Options) *Engine {
	e := &Engine{
		cfg:         opts.Config,
		workspace:   opts.Workspace,
		adapter:     opts.Adapter,
		runner:      opts.Runner,
		dispatcher:  opts.Dispatcher,
		builder:     opts.Builder,
		logger:      opts.Logger,
		now:         opts.Now,
		generatedBy: opts.GeneratedBy,
	}
	if e.cfg == nil {
		cfg := config.DefaultConfig()
		e.cfg = &cfg
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.adapter == nil {
		e.adapter = vcs.NewGitAdapter(nil)
	}
	if e.runner == nil {
		e.runner = execx.OSRunner{}
	}
	if e.dispatcher == nil {
		e.dispatcher = dispatch.New(e.adapter, e.runner, e.cfg.Engines, e.logger)
	}
	if e.builder == nil {
		dir := e.VendorDir()
		if e.cfg.Build.Dir != "" {
			dir = config.ResolvePath(dir, e.cfg.Build.Dir)
		}
		e.builder = &build.Builder{
			Runner:  e.runner,
			Command: e.cfg.Build.Command,
			Dir:     dir,
			Logger:  e.logger.Named("build"),
		}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.generatedBy == "" {
		e.generatedBy = "forksmith"
	}
	return e
}

// Config returns the engine configuration reference.
func (e *Engine) Config() *config.Config { return e.cfg }

// VendorDir is the absolute vendor tree.
func (e *Engine) VendorDir() string { return e.cfg.VendorDir(e.workspace) }

// RegistryPath is the absolute registry file.
func (e *Engine) RegistryPath() string { return e.cfg.RegistryPath(e.workspace) }

// LoadRegistry loads the registry, or an empty one when the file is absent.
func (e *Engine) LoadRegistry() (*registry.Registry, error) {
	return registry.LoadOrInit(e.RegistryPath(), e.generatedBy)
}

// SaveRegistry writes reg to the configured registry path.
func (e *Engine) SaveRegistry(reg *registry.Registry) error {
	return registry.Save(reg, e.RegistryPath())
}

func (e *Engine) synchronizer(logger *zap.Logger) *forksync.Synchronizer {
	return &forksync.Synchronizer{
		Adapter: e.adapter,
		Policy:  e.cfg.Fork,
		Dir:     e.VendorDir(),
		Logger:  logger.Named("forksync"),
	}
}

func (e *Engine) requireVendor() error {
	if !discovery.DirExists(e.VendorDir()) {
		return fmt.Errorf("%w: %s", ErrVendorMissing, e.VendorDir())
	}
	return nil
}

// Sync runs only the fork synchronizer.
func (e *Engine) Sync(ctx context.Context) (forksync.Result, error) {
	if err := e.requireVendor(); err != nil {
		return forksync.Result{}, err
	}
	return e.synchronizer(e.logger).Run(ctx)
}

// Status snapshots the vendor tree against both tracked refs.
func (e *Engine) Status(ctx context.Context) (*model.ForkStatus, error) {
	if err := e.requireVendor(); err != nil {
		return nil, err
	}
	st, err := e.synchronizer(e.logger).Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// UpdateOptions configures an update run.
type UpdateOptions struct {
	DryRun    bool
	SkipBuild bool
}

// Update runs sync, the patch phase and the build, in that order. The
// registry is saved after the patch phase on dry runs too, so previews
// record their statuses. On a fatal error the partially filled summary is
// returned with the error and the registry is left unsaved.
func (e *Engine) Update(ctx context.Context, opts UpdateOptions) (*model.UpdateSummary, error) {
	summary := &model.UpdateSummary{
		RunID:     uuid.NewString(),
		DryRun:    opts.DryRun,
		StartedAt: e.now().UTC(),
		Patches:   []model.PatchReport{},
		Warnings:  []string{},
		Notes:     []string{},
	}
	logger := e.logger.With(zap.String("run_id", summary.RunID))
	defer func() { summary.FinishedAt = e.now().UTC() }()

	if err := e.requireVendor(); err != nil {
		return summary, err
	}
	tree := e.VendorDir()
	if head, err := e.adapter.HeadCommit(ctx, tree); err == nil {
		summary.HeadBefore = head
	}

	logger.Info("fork sync", zap.Bool("fork_mode", e.cfg.Fork.Enabled), zap.String("vendor", tree))
	res, err := e.synchronizer(logger).Run(ctx)
	summary.AddWarnings(res.Warnings...)
	summary.AddNotes(res.Notes...)
	for _, note := range res.Notes {
		logger.Info(note)
	}
	if err != nil {
		return summary, err
	}
	commit, err := e.adapter.HeadCommit(ctx, tree)
	if err != nil {
		return summary, fmt.Errorf("read vendor head: %w", err)
	}
	summary.HeadAfter = commit

	reg, err := e.LoadRegistry()
	if err != nil {
		return summary, err
	}
	logger.Info("registry loaded", zap.String("path", e.RegistryPath()), zap.Int("patch_sets", len(reg.PatchSets)))

	target := dispatch.Target{Workspace: e.workspace, Tree: tree}
	for _, ps := range reg.PatchSets {
		report, err := e.applyPatchSet(ctx, logger, reg, ps, target, commit, opts.DryRun, summary)
		if err != nil {
			return summary, err
		}
		summary.Patches = append(summary.Patches, report)
	}

	if err := e.SaveRegistry(reg); err != nil {
		return summary, fmt.Errorf("save registry: %w", err)
	}

	summary.BuildStatus = e.runBuild(ctx, logger, opts)
	return summary, nil
}

func (e *Engine) applyPatchSet(ctx context.Context, logger *zap.Logger, reg *registry.Registry, ps registry.PatchSet, target dispatch.Target, commit string, dryRun bool, summary *model.UpdateSummary) (model.PatchReport, error) {
	report := model.PatchReport{ID: ps.ID, Engine: string(ps.Engine)}
	if !ps.Enabled {
		if err := reg.RecordSkipped(ps.ID, registry.StatusSkippedDisabled, e.now()); err != nil {
			return report, err
		}
		report.Status = registry.StatusSkippedDisabled
		report.SkipReason = "disabled"
		logger.Debug("patch set disabled", zap.String("patch_set", ps.ID))
		return report, nil
	}

	out, err := e.dispatcher.Apply(ctx, ps, target, dryRun)
	if err != nil {
		logger.Error("patch set failed", zap.String("patch_set", ps.ID), zap.Error(err))
		return report, err
	}
	status, err := reg.UpdateAfterRun(ps.ID, commit, out.Matches, out.Label, e.now())
	if err != nil {
		return report, err
	}
	summary.AddWarnings(out.Warnings...)
	report.Status = status
	report.Matches = out.Matches
	report.Rules = out.Rules
	fields := []zap.Field{zap.String("patch_set", ps.ID), zap.String("engine", string(ps.Engine)), zap.String("status", status)}
	switch {
	case out.Skipped:
		report.SkipReason = out.Reason
		logger.Warn("patch set skipped", append(fields, zap.String("reason", out.Reason))...)
	case registry.IsDegraded(status):
		logger.Warn("patch set degraded", fields...)
	default:
		logger.Info("patch set processed", fields...)
	}
	return report, nil
}

func (e *Engine) runBuild(ctx context.Context, logger *zap.Logger, opts UpdateOptions) string {
	switch {
	case opts.DryRun:
		return BuildSkippedDryRun
	case opts.SkipBuild:
		return BuildSkippedFlag
	}
	if err := e.builder.Run(ctx); err != nil {
		logger.Warn("build failed", zap.Error(err))
		return "failed: " + err.Error()
	}
	return BuildSucceeded
}

// BuildFailed reports whether a build status records a failure.
func BuildFailed(status string) bool {
	return strings.HasPrefix(status, "failed")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
