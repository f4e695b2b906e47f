package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/example/ortconvert/internal/convert"
	"github.com/example/ortconvert/internal/manifest"
	"github.com/spf13/afero"
)

var errMalformed = errors.New("malformed model")

// graphOptimizer stands in for the native optimizer. A model file holds a
// comma separated operator list; applying optimizations fuses it into
// FusedConv, while saving them for runtime leaves the graph unchanged.
type graphOptimizer struct {
	fs afero.Fs
	// failRestricted fails models only during the restricted pass.
	failRestricted map[string]bool

	mu    sync.Mutex
	calls []convert.SessionOptions
}

func (g *graphOptimizer) Optimize(_ context.Context, opts convert.SessionOptions) error {
	g.mu.Lock()
	g.calls = append(g.calls, opts)
	g.mu.Unlock()

	data, err := afero.ReadFile(g.fs, opts.ModelPath)
	if err != nil {
		return err
	}
	graph := strings.TrimSpace(string(data))
	if graph == "malformed" {
		return errMalformed
	}

	mode := opts.ConfigEntries[convert.ConfigKeyMinimalBuildOptimizations]
	if mode == "apply" && g.failRestricted[opts.ModelPath] {
		return errMalformed
	}

	out := graph
	if mode != "save" {
		out = "FusedConv"
	}

	return afero.WriteFile(g.fs, opts.OptimizedModelPath, []byte(out), 0o644)
}

func (g *graphOptimizer) outputs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, 0, len(g.calls))
	for _, c := range g.calls {
		out = append(out, c.OptimizedModelPath)
	}

	return out
}

// fileExtractor reads the operator list the graphOptimizer wrote.
type fileExtractor struct {
	fs afero.Fs
}

func (f fileExtractor) Extract(_ context.Context, model string, _ bool) (manifest.OperatorSet, error) {
	data, err := afero.ReadFile(f.fs, model)
	if err != nil {
		return nil, err
	}

	set := make(manifest.OperatorSet)
	for _, op := range strings.Split(strings.TrimSpace(string(data)), ",") {
		set.Add("ai.onnx", 13, op, nil)
	}

	return set, nil
}

func newTestDriver(fs afero.Fs, opt *graphOptimizer) *Driver {
	return &Driver{
		FS:        fs,
		Converter: &convert.Converter{FS: fs, Optimizer: opt},
		Manifest:  &manifest.Builder{FS: fs, Extractor: fileExtractor{fs: fs}},
	}
}

func writeGraph(fs afero.Fs, path, graph string) {
	_ = afero.WriteFile(fs, path, []byte(graph), 0o644)
}
