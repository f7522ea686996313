package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureUserConfigWritesDefaultsOnce(t *testing.T) {
	dir := t.TempDir()

	path, err := EnsureUserConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yml"), path)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.App.Port)
	assert.Equal(t, 3, cfg.Scraper.MaxParallel)

	// a user edit survives the next Ensure
	require.NoError(t, os.WriteFile(path, []byte("app:\n  port: 9000\n"), 0o644))
	again, err := EnsureUserConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, 3, cfg.Scraper.MaxParallel, "unset fields fall back to defaults")
}

func TestNormalizeAndValidate(t *testing.T) {
	cfg := Default()
	cfg.Scraper.TitleKeywords = []string{" engineer ", "", "Engineer", "developer"}
	cfg.Scraper.MaxParallel = 100
	cfg.Matcher.BaseURL = "http://127.0.0.1:8787/"

	out, res := NormalizeAndValidate(cfg)
	assert.True(t, res.OK(), "errors: %v", res.Errors)
	assert.Equal(t, []string{"engineer", "developer"}, out.Scraper.TitleKeywords, "trimmed, deduped case-insensitively")
	assert.Equal(t, 3, out.Scraper.MaxParallel, "out-of-range worker count falls back")
	assert.NotEmpty(t, res.Warnings)
	assert.Equal(t, "http://127.0.0.1:8787", out.Matcher.BaseURL)
}

func TestValidateRejectsBrokenConfig(t *testing.T) {
	cfg := Default()
	cfg.App.Port = 0
	cfg.Email.Enabled = true
	cfg.Email.IMAPHost = ""

	_, res := NormalizeAndValidate(cfg)
	assert.False(t, res.OK())
	assert.Error(t, Validate(cfg))
}

func TestSaveAtomicKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	first := Default()
	require.NoError(t, SaveAtomic(path, first))

	second := Default()
	second.App.Port = 9100
	require.NoError(t, SaveAtomic(path, second))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.App.Port)

	bak, err := Load(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, 8090, bak.App.Port)

	// invalid configs never hit the disk
	broken := Default()
	broken.App.Port = -1
	require.Error(t, SaveAtomic(path, broken))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.App.Port)
}
