package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_ObservePass(t *testing.T) {
	r := NewRecorder()
	r.ObservePass("Runtime", "primary", 2, 1)
	r.ObservePass("Runtime", "without_runtime_opt", 3, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.modelsTotal.WithLabelValues("Runtime", "primary", "converted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.modelsTotal.WithLabelValues("Runtime", "primary", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.modelsTotal.WithLabelValues("Runtime", "without_runtime_opt", "converted")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObservePass("Fixed", "primary", 1, 0)
	r.ObserveManifest("Fixed", "all", 7)
	r.ObserveStyle("Fixed", 1500*time.Millisecond)

	path := filepath.Join(t.TempDir(), "ortconvert.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `ortconvert_manifest_operators{level="all",style="Fixed"} 7`), text)
	assert.Contains(t, text, "ortconvert_conversion_style_duration_seconds_count")
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.ObservePass("Fixed", "primary", 1, 0)
	r.ObserveManifest("Fixed", "all", 1)
	r.ObserveStyle("Fixed", time.Second)
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}
