package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := New()
	done := r.Stage("aoi", "sample")
	done()
	r.Points("aoi", 64)
	r.Engine(OutcomeSuccess)
	r.Engine(OutcomeSuccess)
	r.Engine(OutcomeNoOutput)
	r.Done("aoi", errors.New("boom"))

	assert.Equal(t, 64.0, testutil.ToFloat64(r.points.WithLabelValues("aoi")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.engine.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.engine.WithLabelValues(OutcomeNoOutput)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.stages))
	assert.Equal(t, 1, testutil.CollectAndCount(r.lastRun))

	path := filepath.Join(t.TempDir(), "tidepods.prom")
	require.NoError(t, r.WriteFile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(b)
	for _, want := range []string{
		`tidepods_points{mode="aoi"} 64`,
		`tidepods_engine_runs_total{outcome="success"} 2`,
		`tidepods_stage_duration_seconds_count{mode="aoi",stage="sample"} 1`,
		`tidepods_last_run_timestamp_seconds{mode="aoi",status="failure"}`,
	} {
		assert.True(t, strings.Contains(text, want), "missing %q in\n%s", want, text)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Stage("s2", "engine")()
		r.Points("s2", 1)
		r.Engine(OutcomeNotFound)
		r.Done("s2", nil)
	})
}
