package domovoy

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("should_return_defaults_without_file", func(t *testing.T) {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "apps", cfg.AppsPath)
		assert.Equal(t, ":8124", cfg.ListenAddr)
		assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.TickInterval.Std())
		assert.Equal(t, 8, cfg.Scheduler.Workers)
		assert.Equal(t, 500*time.Millisecond, cfg.Reload.Debounce.Std())
	})

	t.Run("should_parse_yaml_file", func(t *testing.T) {
		path := writeConfig(t, "domovoy.yaml", `
apps_path: /srv/automations
log_level: debug
location:
  latitude: 40.4168
  longitude: -3.7038
scheduler:
  workers: 4
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "/srv/automations", cfg.AppsPath)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 40.4168, cfg.Location.Latitude)
		assert.Equal(t, 4, cfg.Scheduler.Workers)
		// Untouched values keep their defaults.
		assert.Equal(t, ":8124", cfg.ListenAddr)
	})

	t.Run("should_parse_toml_file", func(t *testing.T) {
		path := writeConfig(t, "domovoy.toml", `
apps_path = "/srv/automations"
listen_addr = ":9000"

[location]
latitude = 40.4168

[reload]
debounce = "250ms"
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "/srv/automations", cfg.AppsPath)
		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, 40.4168, cfg.Location.Latitude)
		assert.Equal(t, 250*time.Millisecond, cfg.Reload.Debounce.Std())
	})

	t.Run("should_reject_unknown_extension", func(t *testing.T) {
		path := writeConfig(t, "domovoy.ini", "apps_path=/x")
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "unsupported extension")
	})

	t.Run("should_fail_on_missing_file", func(t *testing.T) {
		_, err := LoadConfig("/nonexistent/domovoy.yaml")
		assert.Error(t, err)
	})

	t.Run("should_apply_environment_overrides", func(t *testing.T) {
		t.Setenv("DOMOVOY_APPS_PATH", "/env/apps")
		t.Setenv("DOMOVOY_LATITUDE", "51.5")
		t.Setenv("DOMOVOY_SCHEDULER_WORKERS", "16")
		t.Setenv("DOMOVOY_RELOAD_DEBOUNCE", "750ms")

		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "/env/apps", cfg.AppsPath)
		assert.Equal(t, 51.5, cfg.Location.Latitude)
		assert.Equal(t, 16, cfg.Scheduler.Workers)
		assert.Equal(t, 750*time.Millisecond, cfg.Reload.Debounce.Std())
	})

	t.Run("should_reject_malformed_environment_value", func(t *testing.T) {
		t.Setenv("DOMOVOY_SCHEDULER_WORKERS", "many")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "DOMOVOY_SCHEDULER_WORKERS")
	})
}

func TestConfigSlogLevel(t *testing.T) {
	t.Run("should_map_known_levels", func(t *testing.T) {
		assert.Equal(t, slog.LevelDebug, Config{LogLevel: "debug"}.SlogLevel())
		assert.Equal(t, slog.LevelWarn, Config{LogLevel: "WARN"}.SlogLevel())
		assert.Equal(t, slog.LevelError, Config{LogLevel: "error"}.SlogLevel())
	})

	t.Run("should_default_unknown_level_to_info", func(t *testing.T) {
		assert.Equal(t, slog.LevelInfo, Config{LogLevel: "verbose"}.SlogLevel())
	})
}
