package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_VariantPrefixes(t *testing.T) {
	cfg, err := Parse([]byte(`
csv:
  watch_dir: /data/drop
  backup_dir: /data/backup
  state_dir: /var/lib/csvevents
  pid_file: /var/run/csvevents.pid
  securenow_prefix: SecureNow
  pdw_prefix: PDW
  mappings_file: /etc/csvevents/mappings.json
`))
	require.NoError(t, err)

	assert.Equal(t, VariantPrefixes, cfg.Variant)
	assert.Equal(t, "/etc/csvevents/mappings.json", cfg.FieldMappingsFile)
	assert.Equal(t, ForwarderSyslog, cfg.Forwarder.Type)
	assert.Equal(t, defaultForwarderTimeout, cfg.Forwarder.Timeout)
	assert.Equal(t, []Marker{
		{Value: "SecureNow", DataType: DataTypeSecureNow},
		{Value: "PDW", DataType: DataTypePDW},
	}, cfg.PrefixMarkers())
	assert.Equal(t, filepath.Join("/var/lib/csvevents", StateDBFileName), cfg.StateDBPath())
}

func TestParse_VariantEventMappings(t *testing.T) {
	cfg, err := Parse([]byte(`
csv:
  watch_dir: /data/drop
  backup_dir: /data/backup
  state_dir: /var/lib/csvevents
  pid_file: /var/run/csvevents.pid
  field_mappings_file: /etc/csvevents/field_mappings.json
  event_mappings_file: /etc/csvevents/event_mappings.json
  timezone_string: " America/New_York "
  timezone_fields: "event_time, created,,"
forwarder:
  type: HTTP
  url: https://collector.example.com/events
  timeout: 5s
`))
	require.NoError(t, err)

	assert.Equal(t, VariantEventMappings, cfg.Variant)
	assert.Equal(t, "/etc/csvevents/field_mappings.json", cfg.FieldMappingsFile)
	assert.Equal(t, "/etc/csvevents/event_mappings.json", cfg.EventMappingsFile)
	assert.Equal(t, "America/New_York", cfg.TimezoneName)
	assert.Equal(t, []string{"event_time", "created"}, cfg.TimezoneFields)
	assert.Equal(t, ForwarderHTTP, cfg.Forwarder.Type)
	assert.Equal(t, "5s", cfg.Forwarder.Timeout.String())
}

func TestParse_EnvOverride(t *testing.T) {
	t.Setenv(EnvPrefix+"WATCH_DIR", "/override/drop")

	cfg, err := Parse([]byte("csv:\n  watch_dir: /data/drop\n"))
	require.NoError(t, err)
	assert.Equal(t, "/override/drop", cfg.WatchDir)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("csv: [unterminated"))
	require.Error(t, err)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "csvevents.yaml")
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(cfgPath, []byte("csv:\n  backup_dir: /data/backup\n"), 0o644))
	require.NoError(t, os.WriteFile(envPath, []byte("CSVEVENTS_BACKUP_DIR=/env/backup\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv(EnvPrefix + "BACKUP_DIR") })

	cfg, err := Load(cfgPath, envPath)
	require.NoError(t, err)
	assert.Equal(t, "/env/backup", cfg.BackupDir)
}

func validConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	watch := filepath.Join(dir, "watch")
	backup := filepath.Join(dir, "backup")
	require.NoError(t, os.MkdirAll(watch, 0o755))
	require.NoError(t, os.MkdirAll(backup, 0o755))
	mappings := filepath.Join(dir, "mappings.json")
	require.NoError(t, os.WriteFile(mappings, []byte(`{}`), 0o644))

	return Config{
		WatchDir:          watch,
		BackupDir:         backup,
		StateDir:          filepath.Join(dir, "state"),
		PidFile:           filepath.Join(dir, "csvevents.pid"),
		Variant:           VariantPrefixes,
		SecureNowPrefix:   "SecureNow",
		PDWPrefix:         "PDW",
		FieldMappingsFile: mappings,
		Forwarder:         ForwarderConfig{Type: ForwarderSyslog},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"missing watch dir", func(c *Config) { c.WatchDir = filepath.Join(c.WatchDir, "nope") }, ErrMissingDirectory},
		{"missing backup dir", func(c *Config) { c.BackupDir = "" }, ErrMissingDirectory},
		{"missing mappings file", func(c *Config) { c.FieldMappingsFile = c.FieldMappingsFile + ".gone" }, ErrMissingFile},
		{"variant 2 without event mappings", func(c *Config) { c.Variant = VariantEventMappings }, ErrMissingFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_HTTPForwarderNeedsURL(t *testing.T) {
	cfg := validConfig(t)
	cfg.Forwarder.Type = ForwarderHTTP
	assert.ErrorContains(t, cfg.Validate(), "forwarder.url")
}
