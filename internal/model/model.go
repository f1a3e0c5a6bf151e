// Package model defines the core data types shared across forksmith.
package model

import "time"

// ForkPolicy describes the two remote references a vendor tree follows and
// how divergence from each is handled. It is loaded once per run and not
// modified afterwards.
type ForkPolicy struct {
	// Enabled selects fork mode. When false the tree is hard-reset to the
	// local tracking ref instead of merged.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// LocalRemote is the remote holding the fork-of-record branch.
	LocalRemote string `json:"local_remote" yaml:"local_remote" validate:"required"`
	// LocalBranch is the fork-of-record branch; HEAD must be on it.
	LocalBranch string `json:"local_branch" yaml:"local_branch" validate:"required"`
	// UpstreamRemote is the remote of the upstream project.
	UpstreamRemote string `json:"upstream_remote" yaml:"upstream_remote" validate:"required"`
	// UpstreamBranch is the upstream canonical branch.
	UpstreamBranch string `json:"upstream_branch" yaml:"upstream_branch" validate:"required"`

	RequireCleanWorktree bool `json:"require_clean_worktree" yaml:"require_clean_worktree"`
	AbortOnDivergence    bool `json:"abort_on_divergence" yaml:"abort_on_divergence"`
	AutoMergeLocal       bool `json:"auto_merge_local" yaml:"auto_merge_local"`
	AutoMergeUpstream    bool `json:"auto_merge_upstream" yaml:"auto_merge_upstream"`
	AutoStashBeforeMerge bool `json:"auto_stash_before_merge" yaml:"auto_stash_before_merge"`
	// AutoRouteUpstream skips the upstream catch-up instead of falling back
	// to a strategy merge when fast-forward fails.
	AutoRouteUpstream bool `json:"auto_route_upstream" yaml:"auto_route_upstream"`
	// MergeStrategy is passed as -s when non-empty.
	MergeStrategy string `json:"merge_strategy,omitempty" yaml:"merge_strategy,omitempty"`
	// MergeStrategyOption is passed as -X when non-empty.
	MergeStrategyOption      string `json:"merge_strategy_option,omitempty" yaml:"merge_strategy_option,omitempty"`
	SilenceLocalAheadWarning bool   `json:"silence_local_ahead_warning" yaml:"silence_local_ahead_warning"`
}

// LocalRef returns the remote-tracking ref of the fork-of-record branch.
func (p ForkPolicy) LocalRef() string { return p.LocalRemote + "/" + p.LocalBranch }

// UpstreamRef returns the remote-tracking ref of the upstream branch.
func (p ForkPolicy) UpstreamRef() string { return p.UpstreamRemote + "/" + p.UpstreamBranch }

// NeedsUpstreamFetch reports whether the upstream remote has to be fetched
// separately from the local remote.
func (p ForkPolicy) NeedsUpstreamFetch() bool {
	return p.UpstreamRemote != p.LocalRemote || p.UpstreamBranch != p.LocalBranch
}

// Divergence counts commits reachable from HEAD but not a ref (Ahead) and
// from the ref but not HEAD (Behind).
type Divergence struct {
	Ahead  int `json:"ahead" yaml:"ahead"`
	Behind int `json:"behind" yaml:"behind"`
}

// NeedsMerge reports whether HEAD is missing commits from the ref.
func (d Divergence) NeedsMerge() bool { return d.Behind > 0 }

// Head represents the current HEAD state of a working tree.
type Head struct {
	// Branch is the current branch name, or the short commit when detached.
	Branch string `json:"branch" yaml:"branch"`
	// Detached indicates whether HEAD is detached.
	Detached bool `json:"detached" yaml:"detached"`
}

// Worktree represents the working tree status.
type Worktree struct {
	// Dirty indicates whether the worktree has any local modifications.
	Dirty bool `json:"dirty" yaml:"dirty"`
	// Staged is the count of staged file changes.
	Staged int `json:"staged" yaml:"staged"`
	// Unstaged is the count of unstaged file changes.
	Unstaged int `json:"unstaged" yaml:"unstaged"`
	// Untracked is the count of untracked files.
	Untracked int `json:"untracked" yaml:"untracked"`
}

// Remote represents a single git remote.
type Remote struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
	// Identity is the normalized host/path form of URL.
	Identity string `json:"identity,omitempty" yaml:"identity,omitempty"`
}

// RefStatus is the divergence of HEAD against one remote-tracking ref.
type RefStatus struct {
	Ref        string      `json:"ref" yaml:"ref"`
	Divergence *Divergence `json:"divergence" yaml:"divergence"` // nil when it could not be computed
	Error      string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// ForkStatus is a read-only snapshot of the vendor tree relative to both
// remote references.
type ForkStatus struct {
	Path          string    `json:"path" yaml:"path"`
	Branch        string    `json:"branch" yaml:"branch"`
	Head          string    `json:"head" yaml:"head"`
	Worktree      *Worktree `json:"worktree" yaml:"worktree"`
	UnmergedPaths bool      `json:"unmerged_paths" yaml:"unmerged_paths"`
	Local         RefStatus `json:"local" yaml:"local"`
	Upstream      RefStatus `json:"upstream" yaml:"upstream"`
	Remotes       []Remote  `json:"remotes" yaml:"remotes"`
	Warnings      []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// RuleReport records the result of one rule file within a patch set.
type RuleReport struct {
	Rule     string `json:"rule" yaml:"rule"`
	OK       bool   `json:"ok" yaml:"ok"`
	Matches  *int   `json:"matches,omitempty" yaml:"matches,omitempty"`
	ExitCode int    `json:"exit_code" yaml:"exit_code"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// PatchReport is the per patch set line of an update summary.
type PatchReport struct {
	ID      string       `json:"id" yaml:"id"`
	Engine  string       `json:"engine" yaml:"engine"`
	Status  string       `json:"status" yaml:"status"`
	Matches *int         `json:"matches" yaml:"matches"`
	Rules   []RuleReport `json:"rules,omitempty" yaml:"rules,omitempty"`

	// SkipReason is set when the engine did not run.
	SkipReason string `json:"skip_reason,omitempty" yaml:"skip_reason,omitempty"`
}

// UpdateSummary is the run-scoped report of one update. It is never
// persisted.
type UpdateSummary struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	DryRun      bool          `json:"dry_run" yaml:"dry_run"`
	StartedAt   time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time     `json:"finished_at" yaml:"finished_at"`
	HeadBefore  string        `json:"head_before,omitempty" yaml:"head_before,omitempty"`
	HeadAfter   string        `json:"head_after,omitempty" yaml:"head_after,omitempty"`
	Patches     []PatchReport `json:"patches" yaml:"patches"`
	Warnings    []string      `json:"warnings" yaml:"warnings"`
	Notes       []string      `json:"notes" yaml:"notes"`
	BuildStatus string        `json:"build_status,omitempty" yaml:"build_status,omitempty"`
}

// AddWarnings appends non-empty warnings in order.
func (s *UpdateSummary) AddWarnings(warnings ...string) {
	for _, w := range warnings {
		if w != "" {
			s.Warnings = append(s.Warnings, w)
		}
	}
}

// AddNotes appends non-empty informational notes in order.
func (s *UpdateSummary) AddNotes(notes ...string) {
	for _, n := range notes {
		if n != "" {
			s.Notes = append(s.Notes, n)
		}
	}
}

// IntPtr returns a pointer to a copy of v.
func IntPtr(v int) *int { return &v }
