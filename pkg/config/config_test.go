package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1000, cfg.InitialCapacity)
	assert.Equal(t, time.Second, cfg.Transaction.Timeout)
	assert.Equal(t, 60*time.Second, cfg.VacuumRate)
	assert.Nil(t, cfg.Validate())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.Nil(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Nil(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	body := "initial-capacity: 50\nvacuum-rate: 5s\ntransaction:\n  timeout: 250ms\n"
	require.Nil(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.Nil(t, err)
	assert.Equal(t, 50, cfg.InitialCapacity)
	assert.Equal(t, 5*time.Second, cfg.VacuumRate)
	assert.Equal(t, 250*time.Millisecond, cfg.Transaction.Timeout)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("WIDGETSTORE_INITIAL_CAPACITY", "7")
	t.Setenv("WIDGETSTORE_TRANSACTION_TIMEOUT", "2s")
	t.Setenv("WIDGETSTORE_VACUUM_RATE", "30s")

	cfg, err := Load("")
	require.Nil(t, err)
	assert.Equal(t, 7, cfg.InitialCapacity)
	assert.Equal(t, 2*time.Second, cfg.Transaction.Timeout)
	assert.Equal(t, 30*time.Second, cfg.VacuumRate)
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	cfg := Default()
	cfg.Transaction.Timeout = 0
	assert.ErrorIs(t, cfg.Validate(), ErrNonPositiveTimeout)

	t.Setenv("WIDGETSTORE_TRANSACTION_TIMEOUT", "-1s")
	_, err := Load("")
	assert.ErrorIs(t, err, ErrNonPositiveTimeout)
}
