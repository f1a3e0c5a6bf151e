package gitx_test

import (
	"context"
	"fmt"
	"strings"
)

// MockRunner implements gitx.Runner for testing.
type MockRunner struct {
	// Responses maps "dir:args" keys to (output, error) pairs. A key
	// without a dir (":args") matches any directory.
	Responses map[string]MockResponse
	Calls     []string
}

type MockResponse struct {
	Output string
	Err    error
}

func (m *MockRunner) Run(_ context.Context, dir string, args ...string) (string, error) {
	joined := strings.Join(args, " ")
	m.Calls = append(m.Calls, joined)
	if resp, ok := m.Responses[dir+":"+joined]; ok {
		return resp.Output, resp.Err
	}
	if resp, ok := m.Responses[":"+joined]; ok {
		return resp.Output, resp.Err
	}
	return "", fmt.Errorf("unexpected call: dir=%q args=%v", dir, args)
}
