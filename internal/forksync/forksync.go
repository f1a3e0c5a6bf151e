// SPDX-License-Identifier: MIT
// Package forksync brings a vendor working tree in line with its
// fork-of-record branch and the upstream branch it tracks.
package forksync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/skaphos/forksmith/internal/gitx"
	"github.com/skaphos/forksmith/internal/model"
	"github.com/skaphos/forksmith/internal/vcs"
)

// StashMessage labels the stash entry created before an automatic merge.
const StashMessage = "forksmith auto-merge backup"

// Synchronizer runs the fork policy against one working tree.
type Synchronizer struct {
	Adapter vcs.Adapter
	Policy  model.ForkPolicy
	Dir     string
	Logger  *zap.Logger
}

// Result collects the non-fatal outcome of a sync run.
type Result struct {
	// Warnings are survivable conditions the operator should see.
	Warnings []string
	// Notes are informational messages such as fast-forwards.
	Notes []string
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) note(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

func (s *Synchronizer) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Run synchronizes the tree. Any returned error is an *Error; the Result
// holds whatever warnings were recorded before the failure.
func (s *Synchronizer) Run(ctx context.Context) (Result, error) {
	var res Result
	unmerged, err := s.Adapter.HasUnmergedPaths(ctx, s.Dir)
	if err != nil {
		return res, failure(StepUnmerged, "", ErrUnmergedPaths, err, "check unmerged paths")
	}
	if unmerged {
		return res, failure(StepUnmerged, "", ErrUnmergedPaths, nil,
			"resolve or abort the interrupted merge (git merge --abort) before running the updater")
	}

	if !s.Policy.Enabled {
		return res, s.reset(ctx)
	}
	err = s.syncFork(ctx, &res)
	return res, err
}

func (s *Synchronizer) reset(ctx context.Context) error {
	ref := s.Policy.LocalRef()
	if err := s.fetch(ctx, s.Policy.LocalRemote); err != nil {
		return err
	}
	if err := s.Adapter.ResetHard(ctx, s.Dir, ref); err != nil {
		return failure(StepReset, ref, ErrReset, err, "")
	}
	s.logger().Info("vendor tree reset", zap.String("ref", ref))
	return nil
}

func (s *Synchronizer) syncFork(ctx context.Context, res *Result) error {
	p := s.Policy
	logger := s.logger()

	head, err := s.Adapter.Head(ctx, s.Dir)
	if err != nil {
		return failure(StepBranch, "", ErrWrongBranch, err, "read current branch")
	}
	if head.Detached || head.Branch != p.LocalBranch {
		return failure(StepBranch, "", ErrWrongBranch, nil, fmt.Sprintf(
			"fork mode requires branch %s but the repo is currently on %s. Checkout %s before running the updater",
			p.LocalBranch, head.Branch, p.LocalBranch))
	}

	if p.RequireCleanWorktree {
		dirty, err := s.dirty(ctx)
		if err != nil {
			return failure(StepClean, "", ErrDirtyWorktree, err, "read worktree status")
		}
		if dirty {
			return failure(StepClean, "", ErrDirtyWorktree, nil,
				"commit, stash, or clean the tree before running the updater in fork mode")
		}
	}

	if err := s.fetch(ctx, p.LocalRemote); err != nil {
		return err
	}
	if p.NeedsUpstreamFetch() {
		if err := s.fetch(ctx, p.UpstreamRemote); err != nil {
			return err
		}
	}

	localRef := p.LocalRef()
	if d, ok := s.divergence(ctx, localRef, res); ok {
		logger.Debug("local divergence", zap.String("ref", localRef), zap.Int("ahead", d.Ahead), zap.Int("behind", d.Behind))
		if d.NeedsMerge() {
			switch {
			case p.AutoMergeLocal:
				if err := s.mergeReference(ctx, localRef, d.Behind, false, res); err != nil {
					return err
				}
			case p.AbortOnDivergence:
				return failure(StepDivergence, localRef, ErrDivergence, nil, fmt.Sprintf(
					"%s is ahead by %d commit(s). Pull or merge `%s` before running the updater",
					localRef, d.Behind, localRef))
			default:
				res.warn("%s is ahead by %d commit(s). Pull or merge `%s` before running the updater.", localRef, d.Behind, localRef)
			}
		}
		if d.Ahead > 0 {
			res.warn("Local branch is ahead of %s by %d commit(s); remember to push after the run.", localRef, d.Ahead)
		}
	}

	upstreamRef := p.UpstreamRef()
	if d, ok := s.divergence(ctx, upstreamRef, res); ok {
		logger.Debug("upstream divergence", zap.String("ref", upstreamRef), zap.Int("ahead", d.Ahead), zap.Int("behind", d.Behind))
		if d.Ahead > 0 && !p.SilenceLocalAheadWarning {
			res.warn("Local branch carries %d commit(s) not yet in %s.", d.Ahead, upstreamRef)
		}
		if d.NeedsMerge() {
			switch {
			case p.AutoMergeUpstream:
				if err := s.mergeReference(ctx, upstreamRef, d.Behind, p.AutoRouteUpstream, res); err != nil {
					return err
				}
			case p.AbortOnDivergence:
				return failure(StepDivergence, upstreamRef, ErrDivergence, nil, fmt.Sprintf(
					"%s has %d commit(s) you still need to merge. Run `git merge %s` first or enable auto_merge_upstream",
					upstreamRef, d.Behind, upstreamRef))
			default:
				res.warn("%s is ahead by %d commit(s); merge it before pushing.", upstreamRef, d.Behind)
			}
		}
	}
	return nil
}

func (s *Synchronizer) fetch(ctx context.Context, remote string) error {
	if err := s.Adapter.Fetch(ctx, s.Dir, remote); err != nil {
		s.logger().Error("fetch failed",
			zap.String("remote", remote),
			zap.String("class", gitx.ClassifyError(err)),
			zap.Error(err))
		return failure(StepFetch, remote, ErrFetch, err, "")
	}
	return nil
}

// divergence returns false when the counts could not be computed; the
// failure is recorded as a warning.
func (s *Synchronizer) divergence(ctx context.Context, ref string, res *Result) (model.Divergence, bool) {
	d, err := s.Adapter.Divergence(ctx, s.Dir, ref)
	if err != nil {
		res.warn("Unable to compute divergence against %s: %v", ref, err)
		return model.Divergence{}, false
	}
	return d, true
}

func (s *Synchronizer) dirty(ctx context.Context) (bool, error) {
	wt, err := s.Adapter.WorktreeStatus(ctx, s.Dir)
	if err != nil {
		return false, err
	}
	return wt != nil && wt.Dirty, nil
}

// mergeReference catches HEAD up to ref. With route set, a failed
// fast-forward leaves HEAD where it is instead of trying a strategy merge.
func (s *Synchronizer) mergeReference(ctx context.Context, ref string, behind int, route bool, res *Result) error {
	p := s.Policy
	logger := s.logger().With(zap.String("ref", ref))

	dirty, derr := s.dirty(ctx)
	if derr != nil {
		return failure(StepMerge, ref, ErrDirtyWorktree, derr, "read worktree status")
	}
	stashed := false
	if dirty {
		switch {
		case p.AutoStashBeforeMerge:
			stashed, derr = s.Adapter.StashPush(ctx, s.Dir, StashMessage)
			if derr != nil {
				return failure(StepMerge, ref, ErrDirtyWorktree, derr, "stash local modifications")
			}
			logger.Info("stashed local modifications before merge", zap.Bool("created", stashed))
		case p.AbortOnDivergence:
			return failure(StepMerge, ref, ErrDirtyWorktree, nil, fmt.Sprintf(
				"%s has %d commit(s) you still need to merge, but the vendor tree has local modifications. Commit or stash them, or enable fork.auto_stash_before_merge",
				ref, behind))
		default:
			res.warn("%s is ahead by %d commit(s) but the vendor tree is dirty; merge it manually.", ref, behind)
			return nil
		}
	}
	if stashed {
		defer func() {
			if perr := s.Adapter.StashPop(ctx, s.Dir); perr != nil {
				logger.Warn("stash pop failed", zap.Error(perr))
				res.warn("Merged %s but failed to reapply stashed changes: %v. Run `git stash pop --index` manually.", ref, perr)
			}
		}()
	}

	ffErr := s.Adapter.MergeFastForward(ctx, s.Dir, ref)
	if ffErr == nil {
		res.note("Fast-forwarded to %s (%d commit(s)).", ref, behind)
		logger.Info("fast-forwarded", zap.Int("commits", behind))
		return nil
	}
	if route {
		res.warn("Skipping %s because fast-forward failed (%v). Leaving the vendor tree on its previous commit so the build can continue.", ref, ffErr)
		logger.Warn("fast-forward failed, catch-up skipped", zap.String("class", gitx.ClassifyError(ffErr)), zap.Error(ffErr))
		return nil
	}

	logger.Debug("fast-forward failed, trying strategy merge", zap.String("class", gitx.ClassifyError(ffErr)), zap.Error(ffErr))
	mergeErr := s.Adapter.MergeWithStrategy(ctx, s.Dir, ref, p.MergeStrategy, p.MergeStrategyOption)
	if mergeErr != nil {
		class := gitx.ClassifyError(mergeErr)
		logger.Error("strategy merge failed", zap.String("class", class), zap.Error(mergeErr))
		if aerr := s.Adapter.MergeAbort(ctx, s.Dir); aerr != nil {
			logger.Warn("merge abort failed", zap.Error(aerr))
		}
		return &Error{Step: StepMerge, Ref: ref, Err: &MergeError{Target: ref, FastForward: ffErr, Strategy: mergeErr, Class: class}}
	}
	res.warn("%s", strategyNote(ref, p.MergeStrategy, p.MergeStrategyOption, ffErr))
	logger.Info("merged with strategy", zap.String("strategy", p.MergeStrategy), zap.String("option", p.MergeStrategyOption))
	return nil
}

func strategyNote(ref, strategy, option string, ffErr error) string {
	msg := "Merged " + ref + " using "
	if strategy != "" {
		msg += "-s " + strategy
	} else {
		msg += "git's default strategy"
	}
	if option != "" {
		msg += " (-X " + option + ")"
	}
	return msg + " after --ff-only failed: " + errorText(ffErr)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Snapshot reads the state of the tree without fetching or modifying it.
// Divergence failures degrade to warnings.
func (s *Synchronizer) Snapshot(ctx context.Context) (model.ForkStatus, error) {
	st := model.ForkStatus{Path: s.Dir}
	ok, err := s.Adapter.IsRepo(ctx, s.Dir)
	if err != nil {
		return st, err
	}
	if !ok {
		return st, fmt.Errorf("%s is not a %s repository", s.Dir, s.Adapter.Name())
	}
	head, err := s.Adapter.Head(ctx, s.Dir)
	if err != nil {
		return st, err
	}
	st.Branch = head.Branch
	if st.Head, err = s.Adapter.HeadCommit(ctx, s.Dir); err != nil {
		return st, err
	}
	if st.Worktree, err = s.Adapter.WorktreeStatus(ctx, s.Dir); err != nil {
		return st, err
	}
	if st.UnmergedPaths, err = s.Adapter.HasUnmergedPaths(ctx, s.Dir); err != nil {
		return st, err
	}
	st.Local = s.refStatus(ctx, s.Policy.LocalRef(), &st)
	st.Upstream = s.refStatus(ctx, s.Policy.UpstreamRef(), &st)
	if st.Remotes, err = s.Adapter.Remotes(ctx, s.Dir); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Synchronizer) refStatus(ctx context.Context, ref string, st *model.ForkStatus) model.RefStatus {
	rs := model.RefStatus{Ref: ref}
	d, err := s.Adapter.Divergence(ctx, s.Dir, ref)
	if err != nil {
		rs.Error = err.Error()
		rs.Divergence = &model.Divergence{}
		st.Warnings = append(st.Warnings, fmt.Sprintf("unable to compute divergence for %s: %v", ref, err))
		return rs
	}
	rs.Divergence = &d
	return rs
}
