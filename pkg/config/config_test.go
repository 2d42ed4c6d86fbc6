package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
storage_root: /var/lib/graphtx
log_level: debug
metrics_addr: ":9464"
databases:
  main:
    type: embedded
    properties_url: file:///etc/graphtx/main.properties
    settings:
      wal_sync: "true"
    exception_handler: log
    default: true
  audit:
    path: /srv/audit
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphtx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/graphtx", cfg.StorageRoot)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"audit", "main"}, cfg.Names())

	main := cfg.Databases["main"]
	assert.Equal(t, TypeEmbedded, main.TypeOf())
	assert.Equal(t, "file:///etc/graphtx/main.properties", main.PropertiesURL)
	assert.Equal(t, map[string]string{"wal_sync": "true"}, main.Settings)
	assert.Equal(t, "log", main.ExceptionHandler)

	assert.Equal(t, filepath.Join("/var/lib/graphtx", "graph", "main"), cfg.DatabasePath("main"))
	assert.Equal(t, "/srv/audit", cfg.DatabasePath("audit"))

	name, ok := cfg.ResolveDefault()
	require.True(t, ok)
	assert.Equal(t, "main", name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.StorageRoot)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Databases)

	_, ok := cfg.ResolveDefault()
	assert.False(t, ok)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv(EnvStorageRoot, "/tmp/override")
	t.Setenv(EnvDefaultDatabase, "audit")
	t.Setenv(EnvLogLevel, "WARN")

	cfg, err := Parse([]byte(`
databases:
  main: {}
  audit: {}
`))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override", cfg.StorageRoot)
	assert.Equal(t, "warn", cfg.LogLevel)

	name, ok := cfg.ResolveDefault()
	require.True(t, ok)
	assert.Equal(t, "audit", name)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{"bad yaml", "databases: [", "failed to parse config"},
		{"bad log level", "log_level: loud", "LogLevel"},
		{"empty storage root", `storage_root: ""`, "StorageRoot: field is required"},
		{"bad database name", "databases:\n  \"bad name\": {}", "invalid database name"},
		{"null database", "databases:\n  main:", "field is required"},
		{"unknown default", "default_database: other\ndatabases:\n  main: {}", "not a configured database"},
		{"two flagged defaults", "databases:\n  a: {default: true}\n  b: {default: true}", "only one database"},
		{"conflicting defaults", "default_database: a\ndatabases:\n  a: {}\n  b: {default: true}", "conflicts"},
		{"bad metrics addr", "metrics_addr: nope", "MetricsAddr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestResolveDefault(t *testing.T) {
	tests := []struct {
		name   string
		cfg    *Config
		want   string
		wantOK bool
	}{
		{
			name:   "single database is implicit default",
			cfg:    &Config{Databases: map[string]*Database{"only": {}}},
			want:   "only",
			wantOK: true,
		},
		{
			name:   "flagged default",
			cfg:    &Config{Databases: map[string]*Database{"a": {}, "b": {Default: true}}},
			want:   "b",
			wantOK: true,
		},
		{
			name:   "explicit default wins",
			cfg:    &Config{DefaultDatabase: "a", Databases: map[string]*Database{"a": {}, "b": {}}},
			want:   "a",
			wantOK: true,
		},
		{
			name: "several without default",
			cfg:  &Config{Databases: map[string]*Database{"a": {}, "b": {}}},
		},
		{
			name: "explicit default missing",
			cfg:  &Config{DefaultDatabase: "c", Databases: map[string]*Database{"a": {}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.cfg.ResolveDefault()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestDatabase_TypeOf(t *testing.T) {
	assert.Equal(t, TypeEmbedded, (&Database{}).TypeOf())
	assert.Equal(t, "embedded", (&Database{Type: "EMBEDDED"}).TypeOf())
	assert.Equal(t, "server", (&Database{Type: "server"}).TypeOf())
}
