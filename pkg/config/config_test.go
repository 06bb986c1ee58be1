package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
)

type testConfig struct {
	Database struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"database"`
	Timeout   time.Duration `json:"timeout"`
	Addresses []string      `json:"addresses"`
	validated bool
}

func (c *testConfig) SetDefaults() {
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
}

func (c *testConfig) Validate() error {
	c.validated = true

	if c.Database.Host == "" {
		return errors.New("host required")
	}

	return nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `{"database":{"host":"db.local"},"addresses":["http://es:9200"]}`)

	var cfg testConfig

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "db.local", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port, "defaults applied")
	assert.True(t, cfg.validated)
	assert.Equal(t, []string{"http://es:9200"}, cfg.Addresses)
}

func TestLoadAndValidateRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `{"database":{"port":15432}}`)

	var cfg testConfig

	c := NewConfig(logger.NewTestLogger())
	err := c.LoadAndValidate(context.Background(), path, &cfg)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"database":{"host":"db.local","port":5432}}`)

	t.Setenv("CASESCOPE_DATABASE_HOST", "other.local")
	t.Setenv("CASESCOPE_TIMEOUT", "90s")
	t.Setenv("CASESCOPE_ADDRESSES", "http://a:9200, http://b:9200")

	var cfg testConfig

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "other.local", cfg.Database.Host)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"http://a:9200", "http://b:9200"}, cfg.Addresses)
}

func TestLoadMissingFile(t *testing.T) {
	var cfg testConfig

	c := NewConfig(logger.NewTestLogger())
	require.Error(t, c.LoadAndValidate(context.Background(), "/nonexistent/config.json", &cfg))
}
