package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "matside.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadPartialConfigIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matside.yaml")
	yml := "listen: \":9000\"\nsources:\n  schedule: https://example.com/mats.csv\nwatch: false\nrefresh: \"0 */6 * * *\"\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "https://example.com/mats.csv", cfg.Sources.Schedule)
	assert.Equal(t, DefaultDirectorySource, cfg.Sources.Directory)
	assert.False(t, cfg.Watch)
	assert.Equal(t, "0 */6 * * *", cfg.RefreshCron)
	assert.Equal(t, "America/Chicago", cfg.Timezone)
	assert.Equal(t, 120, cfg.EventMinutes)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		want string
	}{
		{"bad cron", "refresh: \"every day\"\n", "refresh"},
		{"bad timezone", "timezone: Mars/Olympus\n", "timezone"},
		{"bad yaml", "listen: [\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "matside.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yml), 0o600))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matside.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "coach", Password: "oss"}
	cfg.EventMinutes = 90

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "x.yaml"), nil))
}

func TestLocationFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Nowhere/Never"
	assert.Equal(t, "Local", cfg.Location().String())
}
