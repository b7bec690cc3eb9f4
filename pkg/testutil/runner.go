package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/flavioaiello/azure-building-blocks/pkg/deploy"
)

// FakeRunner implements deploy.Runner.
//
// Outputs and failures are keyed by a space-joined prefix of the arguments,
// e.g. "cosmosdb check-name-exists". The longest matching prefix wins.
// Thread-safe.
type FakeRunner struct {
	mu sync.Mutex

	calls   [][]string
	outputs map[string][]byte
	fail    map[string]string
}

// NewFakeRunner creates a runner that returns empty output for every command.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		outputs: make(map[string][]byte),
		fail:    make(map[string]string),
	}
}

// SetOutput scripts the standard output of commands starting with prefix.
func (r *FakeRunner) SetOutput(prefix, output string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[prefix] = []byte(output)
}

// SetFailure makes commands starting with prefix fail with stderr.
func (r *FakeRunner) SetFailure(prefix, stderr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[prefix] = stderr
}

// Run implements deploy.Runner.
func (r *FakeRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, append([]string(nil), args...))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	joined := strings.Join(args, " ")
	if stderr, ok := longestMatch(r.fail, joined); ok {
		return nil, fmt.Errorf("%w: az %s: %s", deploy.ErrCommandFailed, joined, stderr)
	}
	if out, ok := longestMatch(r.outputs, joined); ok {
		return out, nil
	}
	return nil, nil
}

// Calls returns a copy of the recorded argument lists.
func (r *FakeRunner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([][]string, len(r.calls))
	copy(result, r.calls)
	return result
}

// CallCount returns the number of commands run.
func (r *FakeRunner) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func longestMatch[V interface{}](m map[string]V, joined string) (V, bool) {
	var (
		best    V
		bestLen = -1
	)
	for prefix, v := range m {
		if (joined == prefix || strings.HasPrefix(joined, prefix+" ")) && len(prefix) > bestLen {
			best, bestLen = v, len(prefix)
		}
	}
	return best, bestLen >= 0
}

// Verify interface compliance.
var _ deploy.Runner = (*FakeRunner)(nil)
