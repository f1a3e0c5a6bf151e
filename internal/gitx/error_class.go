// SPDX-License-Identifier: MIT
package gitx

import (
	"context"
	"errors"
	"strings"

	"github.com/skaphos/forksmith/internal/execx"
)

// Error classes reported by ClassifyError.
const (
	ClassTimeout       = "timeout"
	ClassAuth          = "auth"
	ClassNetwork       = "network"
	ClassCorrupt       = "corrupt"
	ClassMissingRemote = "missing_remote"
	ClassNotFastFwd    = "not_fast_forward"
	ClassConflict      = "conflict"
	ClassLocalChanges  = "local_changes"
	ClassUnknown       = "unknown"
)

// ClassifyError maps git/process errors into broad actionable categories.
// It looks at the captured stderr when err carries an *execx.CommandError.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTimeout
	}

	msg := strings.ToLower(err.Error() + "\n" + execx.Stderr(err))
	switch {
	case containsAny(msg, "permission denied", "authentication failed", "access denied", "publickey", "could not read username", "credential"):
		return ClassAuth
	case containsAny(msg, "could not resolve host", "network is unreachable", "connection timed out", "failed to connect", "temporary failure in name resolution", "tls handshake timeout"):
		return ClassNetwork
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ClassTimeout
	case containsAny(msg, "not a git repository", "bad object", "corrupt", "object file"):
		return ClassCorrupt
	case containsAny(msg, "repository not found", "couldn't find remote ref", "remote ref does not exist", "no such remote", "does not appear to be a git repository"):
		return ClassMissingRemote
	case containsAny(msg, "not possible to fast-forward", "diverging branches"):
		return ClassNotFastFwd
	case containsAny(msg, "conflict", "unmerged"):
		return ClassConflict
	case containsAny(msg, "would be overwritten", "local changes"):
		return ClassLocalChanges
	default:
		return ClassUnknown
	}
}

func containsAny(msg string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
