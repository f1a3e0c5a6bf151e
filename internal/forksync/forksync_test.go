package forksync_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/forksmith/internal/execx"
	"github.com/skaphos/forksmith/internal/forksync"
	"github.com/skaphos/forksmith/internal/gitx"
	"github.com/skaphos/forksmith/internal/model"
)

func basePolicy() model.ForkPolicy {
	return model.ForkPolicy{
		Enabled:        true,
		LocalRemote:    "origin",
		LocalBranch:    "main",
		UpstreamRemote: "upstream",
		UpstreamBranch: "main",
	}
}

func gitFailure(args string, stderr string) error {
	return &execx.CommandError{Bin: "git", Args: []string{args}, ExitCode: 128, Stderr: stderr, Err: errors.New("exit status 128")}
}

var _ = Describe("Synchronizer.Run", func() {
	var (
		ctx     context.Context
		adapter *fakeAdapter
		policy  model.ForkPolicy
	)

	run := func() (forksync.Result, error) {
		s := &forksync.Synchronizer{Adapter: adapter, Policy: policy, Dir: "/work/vendor"}
		return s.Run(ctx)
	}

	BeforeEach(func() {
		ctx = context.Background()
		adapter = newFakeAdapter()
		policy = basePolicy()
	})

	It("refuses to run on the wrong branch", func() {
		adapter.branch = "feature"
		_, err := run()
		Expect(errors.Is(err, forksync.ErrWrongBranch)).To(BeTrue())
		var serr *forksync.Error
		Expect(errors.As(err, &serr)).To(BeTrue())
		Expect(serr.Step).To(Equal(forksync.StepBranch))
		Expect(err.Error()).To(ContainSubstring("requires branch main but the repo is currently on feature"))
		Expect(adapter.called("fetch")).To(BeFalse())
	})

	It("refuses a dirty tree when a clean one is required", func() {
		policy.RequireCleanWorktree = true
		adapter.dirty = true
		_, err := run()
		Expect(errors.Is(err, forksync.ErrDirtyWorktree)).To(BeTrue())
	})

	It("refuses a tree with unmerged paths in either mode", func() {
		adapter.unmerged = true
		_, err := run()
		Expect(errors.Is(err, forksync.ErrUnmergedPaths)).To(BeTrue())

		policy.Enabled = false
		_, err = run()
		Expect(errors.Is(err, forksync.ErrUnmergedPaths)).To(BeTrue())
		Expect(adapter.called("reset")).To(BeFalse())
	})

	It("fetches upstream only when it differs from the local ref", func() {
		_, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.calls).To(ContainElements("fetch origin", "fetch upstream"))

		adapter = newFakeAdapter()
		policy.UpstreamRemote = "origin"
		_, err = run()
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.calls).To(ContainElement("fetch origin"))
		Expect(adapter.calls).NotTo(ContainElement("fetch upstream"))
	})

	It("keeps the command error reachable from a fetch failure", func() {
		adapter.fetchErr["upstream"] = gitFailure("fetch", "fatal: could not read from remote repository")
		_, err := run()
		Expect(errors.Is(err, forksync.ErrFetch)).To(BeTrue())
		var cmdErr *execx.CommandError
		Expect(errors.As(err, &cmdErr)).To(BeTrue())
		Expect(cmdErr.Stderr).To(ContainSubstring("could not read"))
		var serr *forksync.Error
		Expect(errors.As(err, &serr)).To(BeTrue())
		Expect(serr.Ref).To(Equal("upstream"))
	})

	DescribeTable("never merges when nothing is behind",
		func(local, upstream model.Divergence) {
			policy.AutoMergeLocal = true
			policy.AutoMergeUpstream = true
			policy.AbortOnDivergence = true
			adapter.divergences["origin/main"] = local
			adapter.divergences["upstream/main"] = upstream
			_, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(adapter.called("merge")).To(BeFalse())
			Expect(adapter.called("stash")).To(BeFalse())
		},
		Entry("even", model.Divergence{}, model.Divergence{}),
		Entry("local ahead", model.Divergence{Ahead: 2}, model.Divergence{}),
		Entry("both ahead", model.Divergence{Ahead: 1}, model.Divergence{Ahead: 7}),
	)

	It("warns about local commits not yet pushed or upstreamed", func() {
		adapter.divergences["origin/main"] = model.Divergence{Ahead: 2}
		adapter.divergences["upstream/main"] = model.Divergence{Ahead: 5}
		res, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Warnings).To(ConsistOf(
			"Local branch is ahead of origin/main by 2 commit(s); remember to push after the run.",
			"Local branch carries 5 commit(s) not yet in upstream/main.",
		))

		adapter = newFakeAdapter()
		adapter.divergences["upstream/main"] = model.Divergence{Ahead: 5}
		policy.SilenceLocalAheadWarning = true
		res, err = run()
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Warnings).To(BeEmpty())
	})

	It("fails when behind without auto-merge and abort_on_divergence is set", func() {
		policy.AbortOnDivergence = true
		adapter.divergences["upstream/main"] = model.Divergence{Behind: 4}
		_, err := run()
		Expect(errors.Is(err, forksync.ErrDivergence)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("upstream/main has 4 commit(s) you still need to merge"))
	})

	It("only warns when behind without auto-merge or abort", func() {
		adapter.divergences["origin/main"] = model.Divergence{Behind: 1}
		adapter.divergences["upstream/main"] = model.Divergence{Behind: 4}
		res, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Warnings).To(ConsistOf(
			"origin/main is ahead by 1 commit(s). Pull or merge `origin/main` before running the updater.",
			"upstream/main is ahead by 4 commit(s); merge it before pushing.",
		))
		Expect(adapter.called("merge")).To(BeFalse())
	})

	It("downgrades a divergence failure to a warning", func() {
		adapter.divErr["upstream/main"] = errors.New("unknown revision")
		res, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Warnings).To(ConsistOf("Unable to compute divergence against upstream/main: unknown revision"))
	})

	It("fast-forwards the local ref", func() {
		policy.AutoMergeLocal = true
		adapter.tips["origin/main"] = "c2"
		adapter.divergences["origin/main"] = model.Divergence{Behind: 2}
		res, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.head).To(Equal("c2"))
		Expect(res.Notes).To(ConsistOf("Fast-forwarded to origin/main (2 commit(s))."))
		Expect(res.Warnings).To(BeEmpty())
	})

	It("falls back to the strategy merge when the upstream fast-forward fails", func() {
		policy.AutoMergeUpstream = true
		policy.MergeStrategy = "ort"
		policy.MergeStrategyOption = "theirs"
		adapter.divergences["upstream/main"] = model.Divergence{Behind: 3}
		adapter.ffErr = gitFailure("merge", "fatal: Not possible to fast-forward, aborting.")

		res, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.head).To(Equal("u3"))
		Expect(adapter.calls).To(ContainElement("merge -s ort -X theirs upstream/main"))
		Expect(res.Warnings).To(HaveLen(1))
		Expect(res.Warnings[0]).To(ContainSubstring("using -s ort (-X theirs)"))
		Expect(res.Warnings[0]).To(ContainSubstring("Not possible to fast-forward"))
	})

	It("names git's default strategy when none is configured", func() {
		policy.AutoMergeUpstream = true
		adapter.divergences["upstream/main"] = model.Divergence{Behind: 3}
		adapter.ffErr = errors.New("not a fast-forward")
		res, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Warnings).To(ConsistOf("Merged upstream/main using git's default strategy after --ff-only failed: not a fast-forward"))
	})

	It("skips the upstream catch-up when routing is enabled", func() {
		policy.AutoMergeUpstream = true
		policy.AutoRouteUpstream = true
		adapter.divergences["upstream/main"] = model.Divergence{Behind: 3}
		adapter.ffErr = errors.New("not a fast-forward")

		res, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.head).To(Equal("c0"))
		Expect(adapter.called("merge -s")).To(BeFalse())
		Expect(res.Warnings).To(ConsistOf(HavePrefix("Skipping upstream/main because fast-forward failed (not a fast-forward).")))
	})

	It("never routes the local catch-up", func() {
		policy.AutoMergeLocal = true
		policy.AutoRouteUpstream = true
		adapter.divergences["origin/main"] = model.Divergence{Behind: 1}
		adapter.ffErr = errors.New("not a fast-forward")
		_, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.called("merge -s")).To(BeTrue())
	})

	It("aborts the merge and reports both errors when the fallback fails", func() {
		policy.AutoMergeUpstream = true
		adapter.divergences["upstream/main"] = model.Divergence{Behind: 3}
		adapter.ffErr = gitFailure("merge", "fatal: Not possible to fast-forward")
		adapter.strategyErr = gitFailure("merge", "CONFLICT (content): Merge conflict in src/lib.rs")

		_, err := run()
		Expect(errors.Is(err, forksync.ErrMergeFailed)).To(BeTrue())
		Expect(adapter.calls).To(ContainElement("merge --abort"))

		var merr *forksync.MergeError
		Expect(errors.As(err, &merr)).To(BeTrue())
		Expect(merr.Target).To(Equal("upstream/main"))
		Expect(merr.Class).To(Equal(gitx.ClassConflict))
		Expect(err.Error()).To(ContainSubstring("upstream/main (conflict)"))
		Expect(err.Error()).To(ContainSubstring("CONFLICT"))
		Expect(err.Error()).To(ContainSubstring("Not possible to fast-forward"))

		var serr *forksync.Error
		Expect(errors.As(err, &serr)).To(BeTrue())
		Expect(serr.Step).To(Equal(forksync.StepMerge))
	})

	Describe("dirty trees", func() {
		BeforeEach(func() {
			adapter.dirty = true
			policy.AutoMergeUpstream = true
			adapter.divergences["upstream/main"] = model.Divergence{Behind: 3}
		})

		DescribeTable("restores stashed changes whatever the merge outcome",
			func(ffErr, strategyErr error) {
				policy.AutoStashBeforeMerge = true
				adapter.ffErr = ffErr
				adapter.strategyErr = strategyErr
				_, _ = run()
				Expect(adapter.calls).To(ContainElement("stash push " + forksync.StashMessage))
				Expect(adapter.calls).To(ContainElement("stash pop"))
				Expect(adapter.dirty).To(BeTrue())
				Expect(adapter.stash).To(BeEmpty())
			},
			Entry("fast-forward", nil, nil),
			Entry("strategy fallback", errors.New("ff"), nil),
			Entry("failed merge", errors.New("ff"), errors.New("conflict")),
		)

		It("warns instead of failing when a stash cannot be popped", func() {
			policy.AutoStashBeforeMerge = true
			adapter.popErr = gitFailure("stash", "CONFLICT")
			res, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(adapter.head).To(Equal("u3"))
			Expect(res.Warnings).To(ContainElement(ContainSubstring("Run `git stash pop --index` manually.")))
		})

		It("fails without auto-stash when abort_on_divergence is set", func() {
			policy.AbortOnDivergence = true
			_, err := run()
			Expect(errors.Is(err, forksync.ErrDirtyWorktree)).To(BeTrue())
			Expect(adapter.called("merge")).To(BeFalse())
		})

		It("warns and leaves HEAD alone otherwise", func() {
			res, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(adapter.head).To(Equal("c0"))
			Expect(res.Warnings).To(ConsistOf("upstream/main is ahead by 3 commit(s) but the vendor tree is dirty; merge it manually."))
		})
	})

	It("hard-resets to the local ref when fork mode is disabled", func() {
		policy.Enabled = false
		adapter.branch = "anything"
		adapter.tips["origin/main"] = "c9"
		_, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.calls).To(Equal([]string{"fetch origin", "reset --hard origin/main"}))
		Expect(adapter.head).To(Equal("c9"))
	})

	It("wraps reset failures", func() {
		policy.Enabled = false
		adapter.resetErr = fmt.Errorf("reset: %w", gitFailure("reset", "fatal: ambiguous argument"))
		_, err := run()
		Expect(errors.Is(err, forksync.ErrReset)).To(BeTrue())
		var cmdErr *execx.CommandError
		Expect(errors.As(err, &cmdErr)).To(BeTrue())
	})
})

var _ = Describe("Synchronizer.Snapshot", func() {
	It("reports both refs and degrades divergence failures", func() {
		adapter := newFakeAdapter()
		adapter.dirty = true
		adapter.divergences["origin/main"] = model.Divergence{Ahead: 1}
		adapter.divErr["upstream/main"] = errors.New("unknown revision")
		s := &forksync.Synchronizer{Adapter: adapter, Policy: basePolicy(), Dir: "/work/vendor"}

		st, err := s.Snapshot(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Branch).To(Equal("main"))
		Expect(st.Head).To(Equal("c0"))
		Expect(st.Worktree.Dirty).To(BeTrue())
		Expect(*st.Local.Divergence).To(Equal(model.Divergence{Ahead: 1}))
		Expect(*st.Upstream.Divergence).To(Equal(model.Divergence{}))
		Expect(st.Upstream.Error).To(Equal("unknown revision"))
		Expect(st.Warnings).To(HaveLen(1))
		Expect(st.Remotes).To(HaveLen(2))
		Expect(adapter.called("fetch")).To(BeFalse())
	})
})
