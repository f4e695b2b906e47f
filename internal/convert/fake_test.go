package convert

import (
	"context"
	"errors"
	"sync"

	"github.com/spf13/afero"
)

var errMalformed = errors.New("malformed model")

// fakeOptimizer writes a placeholder output for every invocation and fails
// for the configured models.
type fakeOptimizer struct {
	fs   afero.Fs
	fail map[string]bool

	mu    sync.Mutex
	calls []SessionOptions
}

func (f *fakeOptimizer) Optimize(_ context.Context, opts SessionOptions) error {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()

	if f.fail[opts.ModelPath] {
		return errMalformed
	}

	return afero.WriteFile(f.fs, opts.OptimizedModelPath, []byte("converted:"+opts.ModelPath), 0o644)
}

func (f *fakeOptimizer) targets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.OptimizedModelPath)
	}

	return out
}

func writeModels(fs afero.Fs, paths ...string) {
	for _, p := range paths {
		_ = afero.WriteFile(fs, p, []byte("onnx"), 0o644)
	}
}
