package testsupport

import (
	"context"
	"sync"

	"lifescribe/internal/stagegraph"
	"lifescribe/internal/vendors"
)

// FakeAdapter is a scriptable vendor adapter for worker and registry
// tests. Execute and probe behavior is controlled through the function
// fields; call counts are tracked for assertions.
type FakeAdapter struct {
	AdapterName       string
	AdapterCapability stagegraph.Capability
	ExecuteFunc       func(ctx context.Context, req vendors.Request) (vendors.Result, error)
	ProbeFunc         func(ctx context.Context) error

	mu           sync.Mutex
	executeCalls int
	probeCalls   int
}

func (f *FakeAdapter) Name() string { return f.AdapterName }

func (f *FakeAdapter) Capability() stagegraph.Capability { return f.AdapterCapability }

func (f *FakeAdapter) Execute(ctx context.Context, req vendors.Request) (vendors.Result, error) {
	f.mu.Lock()
	f.executeCalls++
	f.mu.Unlock()
	if f.ExecuteFunc != nil {
		return f.ExecuteFunc(ctx, req)
	}
	return vendors.Result{Output: `{"ok":true}`}, nil
}

func (f *FakeAdapter) Probe(ctx context.Context) error {
	f.mu.Lock()
	f.probeCalls++
	f.mu.Unlock()
	if f.ProbeFunc != nil {
		return f.ProbeFunc(ctx)
	}
	return nil
}

// ExecuteCalls returns how many times Execute ran.
func (f *FakeAdapter) ExecuteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.executeCalls
}

// ProbeCalls returns how many times Probe ran.
func (f *FakeAdapter) ProbeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeCalls
}
