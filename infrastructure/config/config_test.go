package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORE_DRIVER", "")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Autosave.Delay)
	assert.Equal(t, 50, cfg.History.Limit)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.True(t, cfg.Graph.StrictValidation)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
autosave:
  delay: 2s
history:
  limit: 20
graph:
  strict_validation: false
cors:
  allowed_origins: ["https://app.example.com"]
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HISTORY_LIMIT", "75")
	t.Setenv("AUTOSAVE_DELAY", "")

	// Act
	cfg, err := LoadConfig()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Autosave.Delay, "file value")
	assert.Equal(t, 75, cfg.History.Limit, "env beats file")
	assert.False(t, cfg.Graph.StrictValidation)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoadConfig_UnknownKeyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "autosave:\n  dealy: 2s\n")
	t.Setenv("CONFIG_FILE", path)

	_, err := LoadConfig()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dealy")
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "unset", value: "", want: time.Minute},
		{name: "milliseconds", value: "1500", want: 1500 * time.Millisecond},
		{name: "go duration", value: "250ms", want: 250 * time.Millisecond},
		{name: "garbage", value: "soon", want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, getEnvDuration("TEST_DURATION", time.Minute))
		})
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " a, b ,,c ")

	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvList("TEST_LIST_UNSET", []string{"x"}))
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid development config",
			mutate: func(*Config) {},
		},
		{
			name:    "zero autosave delay",
			mutate:  func(c *Config) { c.Autosave.Delay = 0 },
			wantErr: true,
			errMsg:  "autosave delay",
		},
		{
			name:    "negative history limit",
			mutate:  func(c *Config) { c.History.Limit = -1 },
			wantErr: true,
			errMsg:  "history limit",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Store.Driver = "mongo" },
			wantErr: true,
			errMsg:  "unknown store driver",
		},
		{
			name:    "supabase without credentials",
			mutate:  func(c *Config) { c.Store.Driver = DriverSupabase },
			wantErr: true,
			errMsg:  "SUPABASE_URL",
		},
		{
			name: "supabase with credentials",
			mutate: func(c *Config) {
				c.Store.Driver = DriverSupabase
				c.Supabase.URL = "https://xyz.supabase.co"
				c.Supabase.ServiceRoleKey = "service-key"
			},
		},
		{
			name: "production requires auth",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.Store.Driver = DriverDynamoDB
			},
			wantErr: true,
			errMsg:  "ENABLE_AUTH",
		},
		{
			name: "auth without secret",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
			},
			wantErr: true,
			errMsg:  "JWT_SECRET",
		},
		{
			name: "production dynamodb with auth",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.Store.Driver = DriverDynamoDB
				c.Auth.Enabled = true
				c.Auth.JWTSecret = "secret"
			},
		},
		{
			name: "events without bus",
			mutate: func(c *Config) {
				c.Events.Enabled = true
				c.Events.BusName = ""
			},
			wantErr: true,
			errMsg:  "EVENT_BUS_NAME",
		},
		{
			name:    "sample rate out of range",
			mutate:  func(c *Config) { c.Tracing.SampleRate = 2 },
			wantErr: true,
			errMsg:  "sample rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "history:\n  limit: 10\n")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HISTORY_LIMIT", "")
	initial, err := LoadConfig()
	require.NoError(t, err)

	w, err := NewWatcher(initial, nil, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	var seen atomic.Int64
	w.OnChange(func(c *Config) { seen.Store(int64(c.History.Limit)) })

	// Act
	writeFile(t, path, "history:\n  limit: 30\n")

	// Assert
	assert.Eventually(t, func() bool { return seen.Load() == 30 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 30, w.Current().History.Limit)
}

func TestWatcher_KeepsConfigOnInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "history:\n  limit: 10\n")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HISTORY_LIMIT", "")
	initial, err := LoadConfig()
	require.NoError(t, err)

	var reloads atomic.Int32
	load := func() (*Config, error) {
		reloads.Add(1)
		return LoadConfig()
	}
	w, err := NewWatcher(initial, load, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	writeFile(t, path, "history:\n  limit: -5\n")

	assert.Eventually(t, func() bool { return reloads.Load() > 0 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 10, w.Current().History.Limit)
}

func TestNewWatcher_RequiresFile(t *testing.T) {
	_, err := NewWatcher(Default(), nil, zap.NewNop())

	assert.Error(t, err)
}

func TestReloadableAndRestartRequired(t *testing.T) {
	prev := Default()
	next := Default()
	next.LogLevel = "debug"
	next.Autosave.Delay = 2 * time.Second
	next.Graph.StrictValidation = !prev.Graph.StrictValidation
	next.Store.Driver = DriverDynamoDB
	next.CORS.AllowedOrigins = []string{"https://editor.example.com"}

	assert.Equal(t, []string{"log_level", "autosave.delay", "graph.strict_validation"}, Reloadable(prev, next))
	assert.Equal(t, []string{"store", "cors"}, RestartRequired(prev, next))

	assert.Empty(t, Reloadable(prev, Default()))
	assert.Empty(t, RestartRequired(prev, Default()))
}
