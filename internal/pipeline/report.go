package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/example/ortconvert/internal/convert"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Report summarizes a run for the --report-file output.
type Report struct {
	ModelPath         string        `yaml:"model_path"`
	OptimizationLevel string        `yaml:"optimization_level"`
	TypeReduction     bool          `yaml:"type_reduction"`
	TargetPlatform    string        `yaml:"target_platform,omitempty"`
	Styles            []StyleReport `yaml:"styles"`
}

// StyleReport counts both conversion passes of a style together.
type StyleReport struct {
	Style      string          `yaml:"style"`
	Converted  []string        `yaml:"converted"`
	Total      int             `yaml:"total"`
	Failures   []FailureReport `yaml:"failures,omitempty"`
	ConfigFile string          `yaml:"config_file,omitempty"`
	Operators  int             `yaml:"operators"`
}

type FailureReport struct {
	Model string `yaml:"model"`
	Error string `yaml:"error"`
}

func (sr *StyleReport) fill(res convert.Result) {
	sr.Converted = append([]string(nil), res.Converted...)
	sr.Total = res.Total
	sr.Failures = sr.Failures[:0]
	for _, f := range res.Failures {
		sr.Failures = append(sr.Failures, FailureReport{Model: f.Model, Error: f.Err.Error()})
	}
}

// Marshal encodes the report as YAML.
func (r Report) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	return out, nil
}

// WriteFile writes the YAML report to path, creating parent directories.
func (r Report) WriteFile(fs afero.Fs, path string) error {
	out, err := r.Marshal()
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := afero.WriteFile(fs, path, out, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}

	return nil
}
