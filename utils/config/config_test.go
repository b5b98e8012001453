package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
)

const fullYAML = `
input:
  scenario: data/cross.yaml
  models:
    - name: rf
      file: data/rf.yaml
    - name: gb
      file: data/gb.yaml
      weight: 2
control:
  step:
    total: 3600
    interval: 0.5
  policy:
    max_green: 60
  traffic_lights: [tl0]
output:
  csv:
    file: output/adaptive_results.csv
`

func TestParseKeepsDefaults(t *testing.T) {
	c, err := config.Parse([]byte(fullYAML))
	require.NoError(t, err)
	p := c.Control.Policy
	assert.Equal(t, config.PolicyTIS, p.Kind)
	assert.Equal(t, 15., p.GreenBase)
	assert.Equal(t, 30., p.GreenScale)
	assert.Equal(t, 5., p.MinGreen)
	assert.Equal(t, 60., p.MaxGreen)
	assert.Equal(t, 40., p.PriorityDuration)
	assert.Equal(t, "emergency", p.EmergencyKeyword)
	assert.Equal(t, -3., p.SuddenBrakeThreshold)
	assert.Equal(t, 0.5, c.Control.Step.Interval)
	assert.Equal(t, int32(3600), c.Control.Step.Total)
	assert.Len(t, c.Input.Models, 2)
	require.NotNil(t, c.Output.CSV)
	assert.Nil(t, c.Output.SQLite)
}

func TestParseStrict(t *testing.T) {
	_, err := config.Parse([]byte("control:\n  polcy:\n    kind: tis\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *config.Config){
		"tis without models": func(c *config.Config) { c.Input.Models = nil },
		"unknown policy":     func(c *config.Config) { c.Control.Policy.Kind = "random" },
		"zero interval":      func(c *config.Config) { c.Control.Step.Interval = 0 },
		"negative total":     func(c *config.Config) { c.Control.Step.Total = -1 },
		"max below min": func(c *config.Config) {
			c.Control.Policy.MinGreen = 20
			c.Control.Policy.MaxGreen = 10
		},
		"zero min green":   func(c *config.Config) { c.Control.Policy.MinGreen = 0 },
		"zero priority":    func(c *config.Config) { c.Control.Policy.PriorityDuration = 0 },
		"empty keyword":    func(c *config.Config) { c.Control.Policy.EmergencyKeyword = "" },
		"negative weight":  func(c *config.Config) { c.Input.Models[0].Weight = -1 },
		"model empty file": func(c *config.Config) { c.Input.Models[0].File = "" },
	}
	for name, mutate := range cases {
		c := config.Default()
		c.Input.Models = []config.Model{{Name: "m", File: "m.yaml"}}
		mutate(&c)
		assert.ErrorIs(t, c.Validate(), config.ErrInvalidConfig, name)
	}
}

func TestBaselinePoliciesNeedNoModels(t *testing.T) {
	for _, kind := range []string{config.PolicyFixed, config.PolicyMaxPressure} {
		c := config.Default()
		c.Control.Policy.Kind = kind
		assert.NoError(t, c.Validate(), kind)
	}
}
