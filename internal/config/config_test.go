package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, Validate(cfg))
}

func TestDuplicateDriverAddressFailsValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Drivers = append(cfg.Drivers, DriverConfig{Name: "tcp", Key: "nsd2", Address: cfg.Drivers[0].Address})
	ApplyDefaults(cfg)
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate driver")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Drivers[0].Address, loaded.Drivers[0].Address)
	assert.Equal(t, cfg.Logging.Level, loaded.Logging.Level)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}
