package vcs

import (
	"context"

	"github.com/skaphos/forksmith/internal/gitx"
	"github.com/skaphos/forksmith/internal/model"
)

// Adapter defines the version-control plumbing forksmith relies on. Calls
// are retry-free; failures keep the tool's stderr in an *execx.CommandError.
type Adapter interface {
	Name() string
	IsRepo(ctx context.Context, dir string) (bool, error)
	Remotes(ctx context.Context, dir string) ([]model.Remote, error)
	Head(ctx context.Context, dir string) (model.Head, error)
	HeadCommit(ctx context.Context, dir string) (string, error)
	WorktreeStatus(ctx context.Context, dir string) (*model.Worktree, error)
	HasUnmergedPaths(ctx context.Context, dir string) (bool, error)
	Fetch(ctx context.Context, dir, remote string) error
	Divergence(ctx context.Context, dir, ref string) (model.Divergence, error)
	MergeFastForward(ctx context.Context, dir, ref string) error
	MergeWithStrategy(ctx context.Context, dir, ref, strategy, option string) error
	MergeAbort(ctx context.Context, dir string) error
	StashPush(ctx context.Context, dir, message string) (bool, error)
	StashPop(ctx context.Context, dir string) error
	ResetHard(ctx context.Context, dir, ref string) error
	ApplyPatch(ctx context.Context, dir, file string, check bool) error
	NormalizeURL(rawURL string) string
}

// GitAdapter implements Adapter using the git CLI via gitx.
type GitAdapter struct {
	Runner gitx.Runner
}

// NewGitAdapter returns an adapter over runner, or over the git binary on
// PATH when runner is nil.
func NewGitAdapter(runner gitx.Runner) *GitAdapter {
	if runner == nil {
		runner = &gitx.GitRunner{}
	}
	return &GitAdapter{Runner: runner}
}

func (g *GitAdapter) Name() string { return "git" }

func (g *GitAdapter) IsRepo(ctx context.Context, dir string) (bool, error) {
	return gitx.IsRepo(ctx, g.Runner, dir)
}

func (g *GitAdapter) Remotes(ctx context.Context, dir string) ([]model.Remote, error) {
	return gitx.Remotes(ctx, g.Runner, dir)
}

func (g *GitAdapter) Head(ctx context.Context, dir string) (model.Head, error) {
	return gitx.Head(ctx, g.Runner, dir)
}

func (g *GitAdapter) HeadCommit(ctx context.Context, dir string) (string, error) {
	return gitx.HeadCommit(ctx, g.Runner, dir)
}

func (g *GitAdapter) WorktreeStatus(ctx context.Context, dir string) (*model.Worktree, error) {
	return gitx.WorktreeStatus(ctx, g.Runner, dir)
}

func (g *GitAdapter) HasUnmergedPaths(ctx context.Context, dir string) (bool, error) {
	return gitx.HasUnmergedPaths(ctx, g.Runner, dir)
}

func (g *GitAdapter) Fetch(ctx context.Context, dir, remote string) error {
	return gitx.Fetch(ctx, g.Runner, dir, remote)
}

func (g *GitAdapter) Divergence(ctx context.Context, dir, ref string) (model.Divergence, error) {
	return gitx.Divergence(ctx, g.Runner, dir, ref)
}

func (g *GitAdapter) MergeFastForward(ctx context.Context, dir, ref string) error {
	return gitx.MergeFastForward(ctx, g.Runner, dir, ref)
}

func (g *GitAdapter) MergeWithStrategy(ctx context.Context, dir, ref, strategy, option string) error {
	return gitx.MergeWithStrategy(ctx, g.Runner, dir, ref, strategy, option)
}

func (g *GitAdapter) MergeAbort(ctx context.Context, dir string) error {
	return gitx.MergeAbort(ctx, g.Runner, dir)
}

// StashPush always includes untracked files so a merge cannot trip over them.
func (g *GitAdapter) StashPush(ctx context.Context, dir, message string) (bool, error) {
	return gitx.StashPush(ctx, g.Runner, dir, true, message)
}

func (g *GitAdapter) StashPop(ctx context.Context, dir string) error {
	return gitx.StashPop(ctx, g.Runner, dir)
}

func (g *GitAdapter) ResetHard(ctx context.Context, dir, ref string) error {
	return gitx.ResetHard(ctx, g.Runner, dir, ref)
}

func (g *GitAdapter) ApplyPatch(ctx context.Context, dir, file string, check bool) error {
	return gitx.ApplyPatch(ctx, g.Runner, dir, file, check)
}

func (g *GitAdapter) NormalizeURL(rawURL string) string {
	return gitx.NormalizeURL(rawURL)
}
