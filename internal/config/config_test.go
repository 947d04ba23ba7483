package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "daily", cfg.Series.DefaultFrequency)
	assert.Equal(t, 30, cfg.Series.RollingPeriods)
	assert.Equal(t, "Sunday", cfg.Series.WeekAnchor)
	assert.True(t, cfg.Server.RateLimit.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
series:
  default_frequency: weekly
  rolling_periods: 7
feeds:
  transactions_file: /tmp/tx.csv
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "weekly", cfg.Series.DefaultFrequency)
	assert.Equal(t, 7, cfg.Series.RollingPeriods)
	assert.Equal(t, "/tmp/tx.csv", cfg.Feeds.TransactionsFile)
	// untouched sections keep defaults
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644))

	t.Setenv("TRACKER_SERVER_PORT", "7070")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad_port", env: map[string]string{"TRACKER_SERVER_PORT": "70000"}},
		{name: "bad_level", env: map[string]string{"TRACKER_LOGGING_LEVEL": "verbose"}},
		{name: "bad_frequency", env: map[string]string{"TRACKER_SERIES_DEFAULT_FREQUENCY": "fortnightly"}},
		{name: "bad_rolling", env: map[string]string{"TRACKER_SERIES_ROLLING_PERIODS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromFile("")
			assert.Error(t, err)
		})
	}
}
