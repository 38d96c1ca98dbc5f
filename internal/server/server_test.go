package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/printerbot/pkg/bot"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testConfig(t *testing.T) *bot.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := bot.DefaultConfig()
	cfg.Bot.TokenFile = writeFile(t, dir, "token", "123456:test-token\n")
	cfg.Bot.AuthPasswordFile = writeFile(t, dir, "auth_password", "hunter2\n")
	cfg.Bot.SpoolDir = filepath.Join(dir, "spool")
	return cfg
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := bot.DefaultConfig()
	cfg.Log.Level = "verbose"

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestNew_MissingAuthSecretIsFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bot.AuthPasswordFile = filepath.Join(t.TempDir(), "missing")

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth secret")
}

func TestNew_MissingTokenIsFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bot.TokenFile = filepath.Join(t.TempDir(), "missing")

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot token")
}

func TestReadToken(t *testing.T) {
	dir := t.TempDir()

	t.Run("trims whitespace", func(t *testing.T) {
		path := writeFile(t, dir, "token", "  123456:abc \n")
		token, err := readToken(path)
		require.NoError(t, err)
		assert.Equal(t, "123456:abc", token)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readToken(filepath.Join(dir, "nope"))
		require.Error(t, err)
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, dir, "empty", "\n")
		_, err := readToken(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})
}

func TestSetupStores_MemoryByDefault(t *testing.T) {
	a := &App{cfg: bot.DefaultConfig()}
	require.NoError(t, a.setupStores())
	t.Cleanup(a.closePartial)

	assert.Nil(t, a.db)
	assert.NotNil(t, a.sessions)
	assert.NotNil(t, a.jobs)
}

func TestSetupLogging(t *testing.T) {
	t.Run("stderr only", func(t *testing.T) {
		a := &App{cfg: bot.DefaultConfig()}
		require.NoError(t, a.setupLogging())
		assert.NotNil(t, a.log)
		assert.Nil(t, a.logFile)
	})

	t.Run("log file duplicated", func(t *testing.T) {
		cfg := bot.DefaultConfig()
		cfg.Log.File = filepath.Join(t.TempDir(), "bot.log")

		a := &App{cfg: cfg}
		require.NoError(t, a.setupLogging())
		t.Cleanup(a.closePartial)

		require.NotNil(t, a.logFile)
		a.log.Info("hello")

		content, err := os.ReadFile(cfg.Log.File)
		require.NoError(t, err)
		assert.Contains(t, string(content), "hello")
	})

	t.Run("unwritable log file", func(t *testing.T) {
		cfg := bot.DefaultConfig()
		cfg.Log.File = filepath.Join(t.TempDir(), "no", "such", "dir", "bot.log")

		a := &App{cfg: cfg}
		err := a.setupLogging()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "opening log file")
	})
}
