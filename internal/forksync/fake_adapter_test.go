package forksync_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/skaphos/forksmith/internal/model"
	"github.com/skaphos/forksmith/internal/vcs"
)

// fakeAdapter is an in-memory vcs.Adapter. HEAD is modelled as a commit
// string; a successful merge moves it to the target ref's tip.
type fakeAdapter struct {
	branch   string
	detached bool
	head     string
	dirty    bool
	unmerged bool

	tips        map[string]string
	divergences map[string]model.Divergence
	divErr      map[string]error

	fetchErr    map[string]error
	ffErr       error
	strategyErr error
	popErr      error
	resetErr    error

	stash []bool
	calls []string
}

var _ vcs.Adapter = (*fakeAdapter)(nil)

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		branch: "main",
		head:   "c0",
		tips: map[string]string{
			"origin/main":   "c0",
			"upstream/main": "u3",
		},
		divergences: map[string]model.Divergence{},
		divErr:      map[string]error{},
		fetchErr:    map[string]error{},
	}
}

func (f *fakeAdapter) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeAdapter) called(prefix string) bool {
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (f *fakeAdapter) Name() string { return "git" }

func (f *fakeAdapter) IsRepo(context.Context, string) (bool, error) { return true, nil }

func (f *fakeAdapter) Remotes(context.Context, string) ([]model.Remote, error) {
	return []model.Remote{
		{Name: "origin", URL: "git@github.com:acme/widget.git", Identity: "github.com/acme/widget"},
		{Name: "upstream", URL: "https://github.com/upstream/widget.git", Identity: "github.com/upstream/widget"},
	}, nil
}

func (f *fakeAdapter) Head(context.Context, string) (model.Head, error) {
	return model.Head{Branch: f.branch, Detached: f.detached}, nil
}

func (f *fakeAdapter) HeadCommit(context.Context, string) (string, error) { return f.head, nil }

func (f *fakeAdapter) WorktreeStatus(context.Context, string) (*model.Worktree, error) {
	wt := &model.Worktree{Dirty: f.dirty}
	if f.dirty {
		wt.Unstaged = 1
	}
	return wt, nil
}

func (f *fakeAdapter) HasUnmergedPaths(context.Context, string) (bool, error) {
	return f.unmerged, nil
}

func (f *fakeAdapter) Fetch(_ context.Context, _ string, remote string) error {
	f.record("fetch %s", remote)
	return f.fetchErr[remote]
}

func (f *fakeAdapter) Divergence(_ context.Context, _ string, ref string) (model.Divergence, error) {
	f.record("divergence %s", ref)
	if err := f.divErr[ref]; err != nil {
		return model.Divergence{}, err
	}
	return f.divergences[ref], nil
}

func (f *fakeAdapter) MergeFastForward(_ context.Context, _ string, ref string) error {
	f.record("merge --ff-only %s", ref)
	if f.ffErr != nil {
		return f.ffErr
	}
	f.head = f.tips[ref]
	return nil
}

func (f *fakeAdapter) MergeWithStrategy(_ context.Context, _ string, ref, strategy, option string) error {
	f.record("merge -s %s -X %s %s", strategy, option, ref)
	if f.strategyErr != nil {
		return f.strategyErr
	}
	f.head = f.tips[ref]
	return nil
}

func (f *fakeAdapter) MergeAbort(context.Context, string) error {
	f.record("merge --abort")
	return nil
}

func (f *fakeAdapter) StashPush(_ context.Context, _ string, message string) (bool, error) {
	f.record("stash push %s", message)
	if !f.dirty {
		return false, nil
	}
	f.stash = append(f.stash, f.dirty)
	f.dirty = false
	return true, nil
}

func (f *fakeAdapter) StashPop(context.Context, string) error {
	f.record("stash pop")
	if f.popErr != nil {
		return f.popErr
	}
	f.dirty = f.stash[len(f.stash)-1]
	f.stash = f.stash[:len(f.stash)-1]
	return nil
}

func (f *fakeAdapter) ResetHard(_ context.Context, _ string, ref string) error {
	f.record("reset --hard %s", ref)
	if f.resetErr != nil {
		return f.resetErr
	}
	f.head = f.tips[ref]
	return nil
}

func (f *fakeAdapter) ApplyPatch(context.Context, string, string, bool) error { return nil }

func (f *fakeAdapter) NormalizeURL(rawURL string) string { return rawURL }
