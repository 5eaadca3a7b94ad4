package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Forwarder types.
const (
	ForwarderSyslog = "syslog"
	ForwarderHTTP   = "http"
)

// EnvPrefix prefixes environment overrides for csv section keys,
// e.g. CSVEVENTS_WATCH_DIR.
const EnvPrefix = "CSVEVENTS_"

const defaultForwarderTimeout = 30 * time.Second

// csvSection mirrors the csv: block of the config file.
type csvSection struct {
	WatchDir          string `yaml:"watch_dir"`
	BackupDir         string `yaml:"backup_dir"`
	StateDir          string `yaml:"state_dir"`
	PidFile           string `yaml:"pid_file"`
	SecureNowPrefix   string `yaml:"securenow_prefix"`
	PDWPrefix         string `yaml:"pdw_prefix"`
	MappingsFile      string `yaml:"mappings_file"`
	FieldMappingsFile string `yaml:"field_mappings_file"`
	EventMappingsFile string `yaml:"event_mappings_file"`
	TimezoneString    string `yaml:"timezone_string"`
	TimezoneFields    string `yaml:"timezone_fields"`
}

// fileConfig is the on-disk YAML layout.
type fileConfig struct {
	CSV       csvSection      `yaml:"csv"`
	Forwarder ForwarderConfig `yaml:"forwarder"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load reads the YAML config at path, applies an optional dotenv file and
// CSVEVENTS_* environment overrides, and returns the resolved Config.
// It does not check that directories exist; call Validate for that.
func Load(path, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to expand config path %s: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, expanded)
		}
		return Config{}, fmt.Errorf("failed to read config %s: %w", expanded, err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML content plus environment overrides.
func Parse(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	applyEnvOverrides(&fc.CSV)

	cfg := Config{
		WatchDir:        fc.CSV.WatchDir,
		BackupDir:       fc.CSV.BackupDir,
		StateDir:        fc.CSV.StateDir,
		PidFile:         fc.CSV.PidFile,
		SecureNowPrefix: fc.CSV.SecureNowPrefix,
		PDWPrefix:       fc.CSV.PDWPrefix,
		TimezoneName:    strings.TrimSpace(fc.CSV.TimezoneString),
		TimezoneFields:  splitFields(fc.CSV.TimezoneFields),
		Forwarder:       fc.Forwarder,
		Archive:         fc.Archive,
		Logging:         fc.Logging,
	}

	if fc.CSV.EventMappingsFile != "" {
		cfg.Variant = VariantEventMappings
		cfg.EventMappingsFile = fc.CSV.EventMappingsFile
		cfg.FieldMappingsFile = fc.CSV.FieldMappingsFile
	} else {
		cfg.Variant = VariantPrefixes
		cfg.FieldMappingsFile = fc.CSV.MappingsFile
	}

	if cfg.Forwarder.Type == "" {
		cfg.Forwarder.Type = ForwarderSyslog
	}
	cfg.Forwarder.Type = strings.ToLower(cfg.Forwarder.Type)
	if cfg.Forwarder.Timeout <= 0 {
		cfg.Forwarder.Timeout = defaultForwarderTimeout
	}

	for _, p := range []*string{&cfg.WatchDir, &cfg.BackupDir, &cfg.StateDir, &cfg.PidFile, &cfg.FieldMappingsFile, &cfg.EventMappingsFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return Config{}, fmt.Errorf("failed to expand path %s: %w", *p, err)
		}
		*p = expanded
	}
	return cfg, nil
}

func applyEnvOverrides(s *csvSection) {
	overrides := map[string]*string{
		"WATCH_DIR":           &s.WatchDir,
		"BACKUP_DIR":          &s.BackupDir,
		"STATE_DIR":           &s.StateDir,
		"PID_FILE":            &s.PidFile,
		"SECURENOW_PREFIX":    &s.SecureNowPrefix,
		"PDW_PREFIX":          &s.PDWPrefix,
		"MAPPINGS_FILE":       &s.MappingsFile,
		"FIELD_MAPPINGS_FILE": &s.FieldMappingsFile,
		"EVENT_MAPPINGS_FILE": &s.EventMappingsFile,
		"TIMEZONE_STRING":     &s.TimezoneString,
		"TIMEZONE_FIELDS":     &s.TimezoneFields,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
}

// splitFields turns "a, b,,c" into [a b c].
func splitFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
