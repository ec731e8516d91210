package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"10s", 10 * time.Second, false},
		{"250ms", 250 * time.Millisecond, false},
		{"1.5h", 90 * time.Minute, false},
		{"1m30s", 90 * time.Second, false},
		{" 5m ", 5 * time.Minute, false},
		{"1d", 0, true},
		{"", 0, false},
		{"invalid", 0, true},
		{"3x", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		wantErr  bool
	}{
		{"50m", 50, false},
		{"1.5km", 1500, false},
		{"100ft", 30.48, false},
		{"500", 500, false},
		{" 70 m ", 70, false},
		{"10x", 0, true},
		{"km", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDistance(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	type unitConfig struct {
		Time Duration `yaml:"time"`
		Dist Distance `yaml:"dist"`
		Bare Distance `yaml:"bare"`
	}

	var cfg unitConfig
	require.NoError(t, yaml.Unmarshal([]byte("time: 1m30s\ndist: 5km\nbare: 42\n"), &cfg))
	assert.Equal(t, 90*time.Second, cfg.Time.Std())
	assert.Equal(t, 5000.0, cfg.Dist.Meters())
	assert.Equal(t, 42.0, cfg.Bare.Meters())

	out, err := yaml.Marshal(unitConfig{Time: Duration(250 * time.Millisecond), Dist: 50})
	require.NoError(t, err)
	assert.Contains(t, string(out), "time: 250ms")
	assert.Contains(t, string(out), "dist: 50m")
}

func TestUnitsRejectNonScalar(t *testing.T) {
	var cfg struct {
		Time Duration `yaml:"time"`
		Dist Distance `yaml:"dist"`
	}
	tests := []struct {
		name string
		doc  string
	}{
		{"duration list", "time: [1s]\n"},
		{"distance map", "dist: {m: 5}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, yaml.Unmarshal([]byte(tt.doc), &cfg))
		})
	}
}
