package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DHI-GRAS/tidepods"
	"github.com/DHI-GRAS/tidepods/internal/config"
	"github.com/DHI-GRAS/tidepods/internal/engine"
	"github.com/DHI-GRAS/tidepods/internal/exitcode"
	"github.com/DHI-GRAS/tidepods/internal/gis"
	"github.com/DHI-GRAS/tidepods/internal/pipeline"
	"github.com/DHI-GRAS/tidepods/internal/sentinel2"
	"github.com/DHI-GRAS/tidepods/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code int
	}{
		{nil, exitcode.Success},
		{&config.ErrMissingRequiredEnvVar{Name: "TIDEPODS_ENGINE_HOME"}, exitcode.ConfigError},
		{fmt.Errorf("parse: %w", &tidepods.LevelError{Level: "HAT"}), exitcode.ConfigError},
		{&engine.Error{Kind: engine.ErrEngineNotFound, Path: "/opt"}, exitcode.ConfigError},
		{&engine.Error{Kind: engine.ErrNoOutput, Path: "x.bin", Err: os.ErrNotExist}, exitcode.EngineError},
		{fmt.Errorf("tile T32: %w", tidepods.ErrNoPoints), exitcode.DataError},
		{&tidepods.IndexRangeError{At: time.Now(), Index: 9000, Bound: 8760}, exitcode.DataError},
		{&gis.FormatError{Path: "aoi.kml"}, exitcode.InputError},
		{fmt.Errorf("x.SAFE: %w", sentinel2.ErrMissingField), exitcode.InputError},
		{fmt.Errorf("p.geojson: %w", pipeline.ErrNoAcquisitionTime), exitcode.InputError},
		{&os.PathError{Op: "open", Path: "aoi.tif", Err: os.ErrNotExist}, exitcode.InputError},
		{&storage.PublishError{File: "a.tif", URL: "gs://b/a.tif", Err: os.ErrNotExist}, exitcode.StorageError},
		{errors.New("unknown"), exitcode.ConfigError},
	} {
		assert.Equal(t, tc.code, exitCode(tc.err), "%v", tc.err)
	}
}

func TestRequiredLevel(t *testing.T) {
	_, err := execute(t, "s2", "x.SAFE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "level")
}

func TestInvalidLevel(t *testing.T) {
	_, err := execute(t, "series", "aoi.geojson", "--level", "HAT", "--year", "2020")
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, exitCode(err))
}

func TestAOIInvalidDate(t *testing.T) {
	_, err := execute(t, "aoi", "aoi.geojson", "-l", "MSL", "--date", "14/07/2020")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid acquisition time")
}

func TestAOISurfaceEdge(t *testing.T) {
	_, err := execute(t, "aoi", "aoi.geojson", "-l", "MSL", "--date", "2020-07-14", "--surface", "--edge", "aligned")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "edge policy")
	assert.Equal(t, exitcode.ConfigError, exitCode(err))
}

func TestRunFlagsBuffer(t *testing.T) {
	parse := func(args ...string) pipeline.Options {
		rf := &runFlags{}
		cmd := newRunCommand(pipeline.ModeAOI, rf)
		require.NoError(t, cmd.Flags().Parse(append([]string{"--level", "MSL"}, args...)))
		o, err := rf.options(pipeline.ModeAOI)
		require.NoError(t, err)
		return o
	}
	assert.Equal(t, tidepods.DefaultBuffer, parse().Buffer)
	assert.Equal(t, 0.5, parse("--buffer", "0.5").Buffer)
	assert.Equal(t, pipeline.NoBuffer, parse("--buffer", "0").Buffer)
	assert.Equal(t, -2.0, parse("--buffer", "-2").Buffer)
}

func TestMissingEngineHome(t *testing.T) {
	t.Setenv("TIDEPODS_ENGINE_HOME", "")
	_, err := execute(t, "aoi", "aoi.geojson", "-l", "MSL", "--date", "2020-07-14")
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, exitCode(err))
}

func TestWorkflowCommand(t *testing.T) {
	out, err := execute(t, "workflow", "--image", "tidepods:1", "-l", "LAT", "-o", "gs://tides/out",
		"gs://s2/A.SAFE", "gs://s2/B.SAFE")
	require.NoError(t, err)
	assert.Contains(t, out, "kind: Workflow")
	assert.Contains(t, out, "gs://s2/B.SAFE")

	out, err = execute(t, "workflow", "--shell", "--image", "tidepods:1", "-l", "LAT", "-o", "gs://tides/out",
		"gs://s2/A.SAFE")
	require.NoError(t, err)
	assert.Equal(t, "tidepods s2 gs://s2/A.SAFE --level LAT --output gs://tides/out --work-dir /scratch\n", out)

	_, err = execute(t, "workflow", "--image", "tidepods:1", "-l", "LAT", "-o", "local/out", "a.SAFE")
	assert.Error(t, err)
}

func TestEnvFile(t *testing.T) {
	env := filepath.Join(t.TempDir(), "tidepods.env")
	require.NoError(t, os.WriteFile(env, []byte("TIDEPODS_ENGINE_HOME=/opt/engine\n"), 0o644))
	t.Setenv("TIDEPODS_ENGINE_HOME", "")
	os.Unsetenv("TIDEPODS_ENGINE_HOME")

	out, err := execute(t, "--env-file", env, "workflow", "--image", "tidepods:1", "-l", "MSL",
		"-o", "s3://tides", "x.SAFE")
	require.NoError(t, err)
	assert.Contains(t, out, "/opt/engine")
}
