package workflow

import (
	"strings"
	"testing"

	"github.com/DHI-GRAS/tidepods"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	k8sv1 "k8s.io/api/core/v1"
)

func testConfig() Config {
	c := DefaultConfig()
	c.Image = "eu.gcr.io/project/tidepods:latest"
	c.Level = tidepods.LAT
	c.Output = "gs://tides/out"
	c.LandMask = "gs://tides/land.gpkg"
	c.EngineHome = "/opt/dhi"
	c.Parallelism = 10
	return c
}

func TestBuild(t *testing.T) {
	inputs := []string{"gs://s2/A.SAFE", "gs://s2/B.SAFE"}
	wf, err := Build(inputs, testConfig())
	require.NoError(t, err)

	assert.Equal(t, "tidepods-", wf.GenerateName)
	assert.Equal(t, "Workflow", wf.Kind)
	assert.Equal(t, "tidepods", wf.Spec.Entrypoint)
	assert.Equal(t, int64(10), *wf.Spec.Parallelism)
	assert.Equal(t, int32(3600), *wf.Spec.TTLStrategy.SecondsAfterSuccess)
	require.Len(t, wf.Spec.Templates, 1)
	require.Len(t, wf.Spec.Templates[0].Steps, 1)

	steps := wf.Spec.Templates[0].Steps[0].Steps
	require.Len(t, steps, 2)
	assert.Equal(t, "s2-1", steps[1].Name)
	assert.Equal(t, 5, steps[1].Inline.RetryStrategy.Limit.IntValue())
	assert.Equal(t, "eu.gcr.io/project/tidepods:latest", steps[1].Inline.Container.Image)
	assert.Equal(t, []string{"tidepods", "s2", "gs://s2/B.SAFE",
		"--level", "LAT", "--output", "gs://tides/out", "--work-dir", "/scratch",
		"--land-mask", "gs://tides/land.gpkg"}, steps[1].Inline.Container.Command)

	def := wf.Spec.TemplateDefaults.Container
	assert.Equal(t, []k8sv1.EnvVar{{Name: "TIDEPODS_ENGINE_HOME", Value: "/opt/dhi"}}, def.Env)
	assert.Equal(t, "4G", def.Resources.Requests.Memory().String())

	yb, err := Marshal(wf)
	require.NoError(t, err)
	text := string(yb)
	for _, want := range []string{"apiVersion: argoproj.io/v1alpha1", "kind: Workflow", "generateName: tidepods-", "gs://s2/A.SAFE"} {
		assert.Contains(t, text, want)
	}
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(nil, testConfig())
	assert.Error(t, err)

	for name, mod := range map[string]func(*Config){
		"image":  func(c *Config) { c.Image = "" },
		"level":  func(c *Config) { c.Level = "HAT" },
		"local":  func(c *Config) { c.Output = "/tmp/out" },
		"memory": func(c *Config) { c.Memory = "lots" },
	} {
		t.Run(name, func(t *testing.T) {
			c := testConfig()
			mod(&c)
			_, err := Build([]string{"x.SAFE"}, c)
			assert.Error(t, err)
		})
	}
}

func TestScript(t *testing.T) {
	c := testConfig()
	c.COG = true
	c.LandMask = ""
	s := Script([]string{"/data/my product.SAFE"}, c)
	assert.Equal(t, "tidepods s2 '/data/my product.SAFE' --level LAT --output gs://tides/out --work-dir /scratch --cog\n", s)
	assert.Equal(t, 1, strings.Count(s, "\n"))
}
