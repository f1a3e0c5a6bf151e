// Package gitx provides helpers for executing git commands and parsing
// their output. It shells out to the installed git binary.
package gitx

import (
	"context"
	"fmt"
	"strings"

	"github.com/skaphos/forksmith/internal/execx"
	"github.com/skaphos/forksmith/internal/model"
)

// Runner executes git commands in a given repo directory.
// This interface allows mocking in tests.
type Runner interface {
	// Run executes a git command in the given directory and returns its
	// stdout. Failures carry stderr in an *execx.CommandError.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// GitRunner is the default Runner implementation that shells out to git.
type GitRunner struct {
	// GitBin is the path to the git binary. Defaults to "git".
	GitBin string
	// Exec runs the process. Defaults to execx.OSRunner.
	Exec execx.Runner
}

// Run executes a git command.
func (g *GitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.GitBin
	if bin == "" {
		bin = "git"
	}
	var exec execx.Runner = execx.OSRunner{}
	if g.Exec != nil {
		exec = g.Exec
	}
	res, err := exec.Run(ctx, dir, bin, args...)
	return res.Stdout, err
}

// IsRepo checks whether the given path is inside a git working tree.
func IsRepo(ctx context.Context, r Runner, dir string) (bool, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(out) == "true", nil
}

// Remotes returns all configured remotes for the repo.
func Remotes(ctx context.Context, r Runner, dir string) ([]model.Remote, error) {
	out, err := r.Run(ctx, dir, "remote")
	if err != nil {
		return nil, fmt.Errorf("git remote: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return nil, nil
	}
	names := strings.Split(strings.TrimSpace(out), "\n")
	var remotes []model.Remote
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		url, err := r.Run(ctx, dir, "remote", "get-url", name)
		if err != nil {
			continue
		}
		url = strings.TrimSpace(url)
		remotes = append(remotes, model.Remote{
			Name:     name,
			URL:      url,
			Identity: NormalizeURL(url),
		})
	}
	return remotes, nil
}

// Head returns the current branch and detached state.
func Head(ctx context.Context, r Runner, dir string) (model.Head, error) {
	out, err := r.Run(ctx, dir, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		// Detached HEAD: report the short commit instead.
		hash, hashErr := r.Run(ctx, dir, "rev-parse", "--short", "HEAD")
		if hashErr != nil {
			return model.Head{Detached: true}, fmt.Errorf("git rev-parse HEAD: %w", hashErr)
		}
		return model.Head{
			Branch:   strings.TrimSpace(hash),
			Detached: true,
		}, nil
	}
	return model.Head{
		Branch:   strings.TrimSpace(out),
		Detached: false,
	}, nil
}

// HeadCommit returns the full commit id HEAD points at.
func HeadCommit(ctx context.Context, r Runner, dir string) (string, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// WorktreeStatus returns the working tree dirty/staged/unstaged/untracked counts.
func WorktreeStatus(ctx context.Context, r Runner, dir string) (*model.Worktree, error) {
	out, err := r.Run(ctx, dir, "status", "--porcelain=v1")
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}
	return ParsePorcelainStatus(out), nil
}

// HasUnmergedPaths reports whether the index holds conflicted entries.
func HasUnmergedPaths(ctx context.Context, r Runner, dir string) (bool, error) {
	out, err := r.Run(ctx, dir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return false, fmt.Errorf("git diff --diff-filter=U: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// Fetch fetches a single remote with submodule recursion disabled.
func Fetch(ctx context.Context, r Runner, dir, remote string) error {
	_, err := r.Run(ctx, dir, "-c", "fetch.recurseSubmodules=false", "fetch", "--prune", "--no-recurse-submodules", remote)
	if err != nil {
		return fmt.Errorf("git fetch %s: %w", remote, err)
	}
	return nil
}

// Divergence counts commits HEAD has that ref lacks (ahead) and the reverse
// (behind).
func Divergence(ctx context.Context, r Runner, dir, ref string) (model.Divergence, error) {
	out, err := r.Run(ctx, dir, "rev-list", "--left-right", "--count", "HEAD..."+ref)
	if err != nil {
		return model.Divergence{}, fmt.Errorf("git rev-list HEAD...%s: %w", ref, err)
	}
	return ParseDivergence(out)
}

// MergeFastForward advances HEAD to ref only when no merge commit is needed.
func MergeFastForward(ctx context.Context, r Runner, dir, ref string) error {
	_, err := r.Run(ctx, dir, "merge", "--ff-only", ref)
	return err
}

// MergeWithStrategy merges ref with an optional strategy (-s) and strategy
// option (-X). Empty values fall back to git's defaults.
func MergeWithStrategy(ctx context.Context, r Runner, dir, ref, strategy, option string) error {
	args := []string{"merge", "--no-edit"}
	if strategy = strings.TrimSpace(strategy); strategy != "" {
		args = append(args, "-s", strategy)
	}
	if option = strings.TrimSpace(option); option != "" {
		args = append(args, "-X", option)
	}
	args = append(args, ref)
	_, err := r.Run(ctx, dir, args...)
	return err
}

// MergeAbort abandons an in-progress merge.
func MergeAbort(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "merge", "--abort")
	return err
}

// StashPush stashes local changes. It reports false when git had nothing to
// save.
func StashPush(ctx context.Context, r Runner, dir string, includeUntracked bool, message string) (bool, error) {
	args := []string{"stash", "push"}
	if includeUntracked {
		args = append(args, "--include-untracked")
	}
	if message = strings.TrimSpace(message); message != "" {
		args = append(args, "-m", message)
	}
	out, err := r.Run(ctx, dir, args...)
	if err != nil {
		return false, err
	}
	if strings.Contains(out, "No local changes to save") {
		return false, nil
	}
	return true, nil
}

// StashPop reapplies the most recent stash, restoring the index as well.
func StashPop(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "stash", "pop", "--index")
	return err
}

// ResetHard moves HEAD, index and worktree to ref, discarding local changes.
func ResetHard(ctx context.Context, r Runner, dir, ref string) error {
	_, err := r.Run(ctx, dir, "reset", "--hard", ref)
	return err
}

// ApplyPatch applies a unified diff file with three-way fallback. With check
// set the tree is left untouched and only applicability is verified.
func ApplyPatch(ctx context.Context, r Runner, dir, file string, check bool) error {
	args := []string{"apply", "--3way", "--allow-empty", "--whitespace=nowarn"}
	if check {
		args = append(args, "--check")
	}
	args = append(args, file)
	_, err := r.Run(ctx, dir, args...)
	return err
}
