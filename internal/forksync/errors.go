package forksync

import (
	"errors"
	"fmt"
)

// Step names the phase of a sync run that failed.
type Step string

const (
	StepUnmerged   Step = "unmerged-paths"
	StepBranch     Step = "branch"
	StepClean      Step = "clean-worktree"
	StepFetch      Step = "fetch"
	StepDivergence Step = "divergence"
	StepMerge      Step = "merge"
	StepReset      Step = "reset"
)

var (
	ErrWrongBranch   = errors.New("vendor tree is on the wrong branch")
	ErrDirtyWorktree = errors.New("vendor tree has local modifications")
	ErrDivergence    = errors.New("vendor tree is behind a tracked ref")
	ErrMergeFailed   = errors.New("merge failed")
	ErrFetch         = errors.New("fetch failed")
	ErrReset         = errors.New("reset failed")
	ErrUnmergedPaths = errors.New("vendor tree has unmerged paths")
)

// Error is a fatal sync failure. Err wraps one of the sentinels above and,
// when a command failed, the underlying *execx.CommandError.
type Error struct {
	Step Step
	Ref  string
	Err  error
}

func (e *Error) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("fork sync (%s): %v", e.Step, e.Err)
	}
	return fmt.Sprintf("fork sync (%s %s): %v", e.Step, e.Ref, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// MergeError reports a reference merge where both the fast-forward and the
// strategy merge failed.
type MergeError struct {
	Target      string
	FastForward error
	Strategy    error

	// Class is the gitx error class of the strategy merge failure.
	Class string
}

func (e *MergeError) Error() string {
	target := e.Target
	if e.Class != "" {
		target += " (" + e.Class + ")"
	}
	return fmt.Sprintf("auto-merge fallback failed for %s: %v (fast-forward error: %v)", target, e.Strategy, e.FastForward)
}

func (e *MergeError) Is(target error) bool { return target == ErrMergeFailed }

// Unwrap exposes both command failures to errors.As.
func (e *MergeError) Unwrap() []error {
	return []error{e.Strategy, e.FastForward}
}

// failure builds an *Error whose chain reaches both the sentinel and cause.
func failure(step Step, ref string, sentinel error, cause error, msg string) *Error {
	var err error
	switch {
	case cause != nil && msg != "":
		err = fmt.Errorf("%w: %s: %w", sentinel, msg, cause)
	case cause != nil:
		err = fmt.Errorf("%w: %w", sentinel, cause)
	case msg != "":
		err = fmt.Errorf("%w: %s", sentinel, msg)
	default:
		err = sentinel
	}
	return &Error{Step: step, Ref: ref, Err: err}
}
