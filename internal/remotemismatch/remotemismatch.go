// SPDX-License-Identifier: MIT
// Package remotemismatch compares the remotes named by a fork policy with
// the remotes actually configured in the vendor tree.
package remotemismatch

import (
	"fmt"
	"strings"

	"github.com/skaphos/forksmith/internal/model"
)

// Kind classifies a remote problem.
type Kind string

const (
	KindMissing     Kind = "missing"
	KindNoURL       Kind = "no-url"
	KindSameProject Kind = "same-project"
)

// Finding describes one problem with the configured remotes.
type Finding struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Remote  string `json:"remote" yaml:"remote"`
	Message string `json:"message" yaml:"message"`
}

// Check reports remotes the policy needs but the tree lacks, and an
// upstream remote that resolves to the same project as the fork. The
// latter is only a problem in fork mode.
func Check(policy model.ForkPolicy, remotes []model.Remote) []Finding {
	findings := make([]Finding, 0)
	byName := make(map[string]model.Remote, len(remotes))
	for _, r := range remotes {
		byName[r.Name] = r
	}

	names := []string{policy.LocalRemote}
	if policy.Enabled && policy.UpstreamRemote != policy.LocalRemote {
		names = append(names, policy.UpstreamRemote)
	}
	for _, name := range names {
		remote, ok := byName[name]
		switch {
		case !ok:
			findings = append(findings, Finding{
				Kind:    KindMissing,
				Remote:  name,
				Message: fmt.Sprintf("remote %q is not configured; run `git remote add %s <url>`", name, name),
			})
		case strings.TrimSpace(remote.URL) == "":
			findings = append(findings, Finding{
				Kind:    KindNoURL,
				Remote:  name,
				Message: fmt.Sprintf("remote %q has no URL", name),
			})
		}
	}
	if !policy.Enabled || policy.UpstreamRemote == policy.LocalRemote {
		return findings
	}

	local, lok := byName[policy.LocalRemote]
	upstream, uok := byName[policy.UpstreamRemote]
	if lok && uok && identity(local) != "" && identity(local) == identity(upstream) {
		findings = append(findings, Finding{
			Kind:   KindSameProject,
			Remote: policy.UpstreamRemote,
			Message: fmt.Sprintf("remotes %q and %q both point at %s; the upstream remote should track the original project",
				policy.LocalRemote, policy.UpstreamRemote, identity(local)),
		})
	}
	return findings
}

func identity(r model.Remote) string {
	if r.Identity != "" {
		return r.Identity
	}
	return strings.TrimSpace(r.URL)
}
