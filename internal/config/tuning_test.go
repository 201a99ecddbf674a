package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadTuningConfigPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"output_rate_hz": 5, "stale_timeout": "3s"}`), 0644))

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)
	require.Equal(t, 5.0, *cfg.OutputRateHz)
	require.Equal(t, 3*time.Second, cfg.StaleTimeoutDuration(10*time.Second))
	require.Equal(t, 10*time.Second, (&TuningConfig{}).StaleTimeoutDuration(10*time.Second))
}

func TestTuningConfigValidateRejectsBadValues(t *testing.T) {
	cfg := &TuningConfig{OutputRateHz: ptrFloat64(-1)}
	require.Error(t, cfg.Validate())

	cfg = &TuningConfig{StaleTimeout: ptrString("not-a-duration")}
	require.Error(t, cfg.Validate())

	cfg = &TuningConfig{SerialGPSBaudRate: ptrInt(0)}
	require.Error(t, cfg.Validate())
}

func TestLoadTuningConfigRejectsWrongExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	_, err := LoadTuningConfig(path)
	require.Error(t, err)
}
