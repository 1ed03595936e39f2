package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSessionYAML = `
material: anodized-aluminum
reference_image: testdata/reference.png
focus_region:
  x: 100
  y: 80
  width: 400
  height: 300
parameters:
  - name: feedRate_mm_min
    kind: continuous
    min: 500
    max: 3000
  - name: maxPower_pct
    kind: discrete
    min: 10
    max: 100
    step: 5
iteration_budget: 10
retry_limit: 1
`

func TestParseSessionYAML(t *testing.T) {
	def, err := ParseSessionYAML([]byte(sampleSessionYAML))
	require.NoError(t, err)

	assert.Equal(t, "anodized-aluminum", def.Material)
	require.Len(t, def.Parameters, 2)
	assert.Equal(t, KindContinuous, def.Parameters[0].Kind)
	assert.Equal(t, 5.0, def.Parameters[1].Step)
	assert.Equal(t, 10, def.Budget)
	require.NotNil(t, def.FocusRegion)
	assert.Equal(t, 400, def.FocusRegion.Width)

	// Defaults applied for omitted knobs
	assert.Equal(t, DirectionMaximize, def.Direction)
	assert.Equal(t, AcquisitionExpectedImprovement, def.Acquisition)
	assert.Equal(t, 50, def.CandidatePool)
	require.NotNil(t, def.Convergence)
	assert.Equal(t, 4, def.Convergence.NoImprovementIterations)
	require.NotNil(t, def.Weights)
	assert.Equal(t, 1.0, def.Weights.Metric)
	assert.Equal(t, 0.50, def.Weights.Sharpness)
}

func TestParseSessionYAMLErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no parameters", `iteration_budget: 5`},
		{"bad kind", `
parameters:
  - name: p
    kind: categorical
    min: 0
    max: 1
`},
		{"discrete without step", `
parameters:
  - name: p
    kind: discrete
    min: 0
    max: 10
`},
		{"inverted bounds", `
parameters:
  - name: p
    kind: continuous
    min: 10
    max: 5
`},
		{"duplicate name", `
parameters:
  - name: p
    kind: continuous
    min: 0
    max: 1
  - name: p
    kind: continuous
    min: 0
    max: 1
`},
		{"bad direction", `
direction: sideways
parameters:
  - name: p
    kind: continuous
    min: 0
    max: 1
`},
		{"all weights zero", `
weights:
  metric: 0
  human: 0
  model: 0
parameters:
  - name: p
    kind: continuous
    min: 0
    max: 1
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSessionYAML([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseConfigYAML(t *testing.T) {
	data := []byte(`
http_addr: ":9090"
log_level: debug
sink:
  type: xlsx
  path: /tmp/captures.xlsx
  sheet: Microscope_Captures
trial:
  machine_url: http://localhost:8001
  camera_url: http://localhost:8005
  execute_timeout_seconds: 120
  capture_timeout_seconds: 10
  retry_limit: 2
  backoff: exponential
  backoff_base_ms: 500
`)
	cfg, err := ParseConfigYAML(data)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "xlsx", cfg.Sink.Type)
	assert.Equal(t, 2, cfg.Trial.RetryLimit)
}

func TestParseConfigYAMLDefaults(t *testing.T) {
	cfg, err := ParseConfigYAML([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10, cfg.Trial.CaptureTimeoutSeconds)
}

func TestParseConfigYAMLErrors(t *testing.T) {
	_, err := ParseConfigYAML([]byte(`log_level: loud`))
	assert.Error(t, err)

	_, err = ParseConfigYAML([]byte("sink:\n  type: xlsx"))
	assert.Error(t, err, "xlsx sink without path")

	_, err = ParseConfigYAML([]byte("trial:\n  execute_timeout_seconds: -1"))
	assert.Error(t, err)
}

func TestLoadSessionDefinition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSessionYAML), 0o644))

	def, err := LoadSessionDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, "anodized-aluminum", def.Material)

	_, err = LoadSessionDefinition(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshalSessionYAMLRoundTrip(t *testing.T) {
	def, err := ParseSessionYAML([]byte(sampleSessionYAML))
	require.NoError(t, err)

	data, err := MarshalSessionYAML(def)
	require.NoError(t, err)

	back, err := ParseSessionYAML(data)
	require.NoError(t, err)
	assert.Equal(t, def, back)
}
