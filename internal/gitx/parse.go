package gitx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skaphos/forksmith/internal/model"
)

// ParsePorcelainStatus parses the output of `git status --porcelain=v1`
// into a Worktree struct.
func ParsePorcelainStatus(output string) *model.Worktree {
	wt := &model.Worktree{}
	lines := strings.Split(output, "\n")
	for _, line := range lines {
		if len(line) < 2 {
			continue
		}
		x := line[0]
		y := line[1]

		if x == '?' && y == '?' {
			wt.Untracked++
			continue
		}
		if x != ' ' && x != '?' {
			wt.Staged++
		}
		if y != ' ' && y != '?' {
			wt.Unstaged++
		}
	}
	wt.Dirty = wt.Staged > 0 || wt.Unstaged > 0 || wt.Untracked > 0
	return wt
}

// ParseDivergence parses the output of:
//
//	git rev-list --left-right --count HEAD...<ref>
//
// The left count is commits only on HEAD (ahead), the right count commits
// only on ref (behind). Anything other than two non-negative integers
// separated by whitespace is an error.
func ParseDivergence(output string) (model.Divergence, error) {
	fields := strings.Fields(output)
	if len(fields) != 2 {
		return model.Divergence{}, fmt.Errorf("unexpected rev-list output %q", output)
	}
	ahead, err := strconv.Atoi(fields[0])
	if err != nil || ahead < 0 {
		return model.Divergence{}, fmt.Errorf("invalid ahead count %q", fields[0])
	}
	behind, err := strconv.Atoi(fields[1])
	if err != nil || behind < 0 {
		return model.Divergence{}, fmt.Errorf("invalid behind count %q", fields[1])
	}
	return model.Divergence{Ahead: ahead, Behind: behind}, nil
}
