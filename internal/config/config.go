package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Default locations used when flags do not override them.
const (
	DefaultConfigPath = "/etc/csvevents/csvevents.yaml"
	StateDBFileName   = "csvevents_state.duckdb"

	// DataTypeSecureNow and DataTypePDW are the data types produced by the
	// two fixed prefixes of a variant 1 configuration.
	DataTypeSecureNow = "securenow"
	DataTypePDW       = "pdw"

	// TimestampLayout is the naive timestamp layout found in drop files and
	// used for the persisted last-run value.
	TimestampLayout = "2006-01-02T15:04:05"

	// DefaultLookback is how far back the last run is assumed to be when no
	// state has been recorded yet.
	DefaultLookback = 8 * time.Hour
)

var (
	// ErrMissingDirectory is returned when a configured directory does not exist.
	ErrMissingDirectory = errors.New("directory does not exist")
	// ErrMissingFile is returned when a configured file does not exist.
	ErrMissingFile = errors.New("file does not exist")
	// ErrConfigNotFound is returned when the config file does not exist.
	ErrConfigNotFound = errors.New("config file not found")
)

// Variant selects how files are classified.
type Variant int

const (
	// VariantPrefixes classifies with the securenow/pdw prefixes and a single mappings file.
	VariantPrefixes Variant = 1
	// VariantEventMappings classifies with an event mappings file and supports timezone rewriting.
	VariantEventMappings Variant = 2
)

// Marker is a filename substring that identifies a data type.
type Marker struct {
	Value    string
	DataType string
}

// ForwarderConfig selects where events go in normal (non-testing) mode.
type ForwarderConfig struct {
	Type    string        `yaml:"type"`
	Network string        `yaml:"network"`
	Address string        `yaml:"address"`
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// ArchiveConfig holds the optional S3 mirror for archived files.
type ArchiveConfig struct {
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
	S3Region string `yaml:"s3_region"`
}

// LoggingConfig holds log level and format defaults; flags override them.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds application settings. It is built once per run and not
// modified afterwards.
type Config struct {
	WatchDir  string
	BackupDir string
	StateDir  string
	PidFile   string

	Variant Variant

	// Variant 1
	SecureNowPrefix string
	PDWPrefix       string

	// FieldMappingsFile is mappings_file (variant 1) or field_mappings_file (variant 2).
	FieldMappingsFile string

	// Variant 2
	EventMappingsFile string
	TimezoneName      string
	TimezoneFields    []string

	Forwarder ForwarderConfig
	Archive   ArchiveConfig
	Logging   LoggingConfig
}

// StateDBPath is the DuckDB file holding run and file history.
func (c Config) StateDBPath() string {
	return filepath.Join(c.StateDir, StateDBFileName)
}

// PrefixMarkers returns the variant 1 markers in evaluation order.
func (c Config) PrefixMarkers() []Marker {
	return []Marker{
		{Value: c.SecureNowPrefix, DataType: DataTypeSecureNow},
		{Value: c.PDWPrefix, DataType: DataTypePDW},
	}
}

// Validate checks that every path the run depends on exists. It mirrors the
// checks made before any file is touched: a failure here ends the run.
func (c Config) Validate() error {
	var errs error
	if c.PidFile == "" {
		errs = errors.Join(errs, fmt.Errorf("pid_file is required"))
	}
	if c.StateDir == "" {
		errs = errors.Join(errs, fmt.Errorf("state_dir is required"))
	}
	for _, d := range []string{c.WatchDir, c.BackupDir} {
		if err := requireDir(d); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	if err := requireFile(c.FieldMappingsFile); err != nil {
		errs = errors.Join(errs, fmt.Errorf("mappings file: %w", err))
	}
	switch c.Variant {
	case VariantPrefixes:
		if c.SecureNowPrefix == "" || c.PDWPrefix == "" {
			errs = errors.Join(errs, fmt.Errorf("securenow_prefix and pdw_prefix are required"))
		}
	case VariantEventMappings:
		if err := requireFile(c.EventMappingsFile); err != nil {
			errs = errors.Join(errs, fmt.Errorf("event mappings file: %w", err))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown configuration variant %d", c.Variant))
	}
	switch c.Forwarder.Type {
	case ForwarderSyslog:
	case ForwarderHTTP:
		if c.Forwarder.URL == "" {
			errs = errors.Join(errs, fmt.Errorf("forwarder.url is required for the http forwarder"))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown forwarder type %q", c.Forwarder.Type))
	}
	return errs
}

func requireDir(path string) error {
	if path == "" {
		return fmt.Errorf("%w: (empty path)", ErrMissingDirectory)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrMissingDirectory, path)
	}
	return nil
}

func requireFile(path string) error {
	if path == "" {
		return fmt.Errorf("%w: (empty path)", ErrMissingFile)
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrMissingFile, path)
	}
	return nil
}
