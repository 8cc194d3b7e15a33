// Package config provides unified configuration loading for labkit.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/labkit/internal/archive"
	"github.com/nvandessel/labkit/internal/library"
	"github.com/nvandessel/labkit/internal/logging"
)

// FileName is the configuration file inside the labkit root.
const FileName = "config.yaml"

// LabkitConfig contains all labkit configuration settings.
type LabkitConfig struct {
	// Storage selects the experiment index.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Blob selects where archive bytes are kept.
	Blob BlobConfig `json:"blob" yaml:"blob"`

	// Archive controls how experiments are written.
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// Workbench controls the experiment lifecycle.
	Workbench WorkbenchConfig `json:"workbench" yaml:"workbench"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics configures the Prometheus endpoint of the MCP server.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// StorageConfig configures the experiment index.
type StorageConfig struct {
	// Driver is "sqlite" (default), "postgres" or "memory".
	Driver string `json:"driver" yaml:"driver"`

	// SQLitePath is the index database file. Relative paths are resolved
	// against the labkit root; empty means <root>/index.db.
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`

	// PostgresDSN is the connection string for the postgres driver.
	// Supports ${VAR} syntax for env vars.
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`
}

// RedactedDSN returns the DSN with any password masked.
func (c StorageConfig) RedactedDSN() string {
	if c.PostgresDSN == "" {
		return ""
	}
	u, err := url.Parse(c.PostgresDSN)
	if err != nil || u.User == nil {
		if strings.Contains(c.PostgresDSN, "password=") {
			return "(set)"
		}
		return c.PostgresDSN
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// String implements fmt.Stringer to prevent accidental DSN logging.
func (c StorageConfig) String() string {
	return fmt.Sprintf("StorageConfig{Driver:%s, SQLitePath:%s, PostgresDSN:%s}",
		c.Driver, c.SQLitePath, c.RedactedDSN())
}

// BlobConfig configures archive object storage.
type BlobConfig struct {
	// Driver is "fs" (default), "s3" or "memory".
	Driver string `json:"driver" yaml:"driver"`

	// Root is the fs driver directory; empty means <root>/archives.
	Root string `json:"root,omitempty" yaml:"root,omitempty"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config configures the s3 blob driver. Credentials come from the usual
// AWS environment and shared config files.
type S3Config struct {
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	PathStyle bool   `json:"path_style" yaml:"path_style"`
}

// ArchiveConfig controls saved archives.
type ArchiveConfig struct {
	// Format is "sav" (default, what the consumer app reads) or "bundle".
	Format string `json:"format" yaml:"format"`

	// KeepVersions is how many versions of each experiment to keep; 0 keeps
	// all of them.
	KeepVersions int `json:"keep_versions" yaml:"keep_versions"`

	// MaxAge drops versions older than this ("30d", "2w", "720h"). Empty
	// disables age-based pruning.
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`
}

// WorkbenchConfig controls the experiment lifecycle.
type WorkbenchConfig struct {
	// SingleDocument allows only one open experiment at a time.
	SingleDocument bool `json:"single_document" yaml:"single_document"`
}

// LoggingConfig configures labkit's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "warn", "error",
	// "debug", or "trace". "debug" and "trace" also write lifecycle events to
	// <root>/events.jsonl.
	Level string `json:"level" yaml:"level"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics, e.g. ":9464". Empty disables it.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Default returns a LabkitConfig with sensible defaults.
func Default() *LabkitConfig {
	return &LabkitConfig{
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Blob: BlobConfig{
			Driver: "fs",
		},
		Archive: ArchiveConfig{
			Format:       string(archive.FormatSav),
			KeepVersions: 10,
		},
		Workbench: WorkbenchConfig{
			SingleDocument: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultRoot returns ~/.labkit.
func DefaultRoot() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".labkit"), nil
}

// Load loads configuration from the default root and environment variables.
// Order: defaults -> ~/.labkit/config.yaml -> environment variables
func Load() (*LabkitConfig, error) {
	root, err := DefaultRoot()
	if err != nil {
		return nil, err
	}
	return LoadFrom(root)
}

// LoadFrom loads root/config.yaml if it exists, then applies environment
// overrides.
func LoadFrom(root string) (*LabkitConfig, error) {
	config, err := LoadFileOrDefault(root)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFileOrDefault reads root/config.yaml without environment overrides,
// returning defaults when the file does not exist. Use it for configurations
// that will be saved back.
func LoadFileOrDefault(root string) (*LabkitConfig, error) {
	configPath := filepath.Join(root, FileName)
	if _, statErr := os.Stat(configPath); statErr != nil {
		return Default(), nil
	}
	config, err := LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*LabkitConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Storage.PostgresDSN = expandEnvVars(config.Storage.PostgresDSN)

	return config, nil
}

// Save writes the configuration to root/config.yaml.
func (c *LabkitConfig) Save(root string) error {
	if err := os.MkdirAll(root, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", root, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, FileName), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Resolve fills in paths that default to locations under root.
func (c *LabkitConfig) Resolve(root string) {
	switch {
	case c.Storage.SQLitePath == "":
		c.Storage.SQLitePath = filepath.Join(root, "index.db")
	case !filepath.IsAbs(c.Storage.SQLitePath):
		c.Storage.SQLitePath = filepath.Join(root, c.Storage.SQLitePath)
	}
	switch {
	case c.Blob.Root == "":
		c.Blob.Root = filepath.Join(root, "archives")
	case !filepath.IsAbs(c.Blob.Root):
		c.Blob.Root = filepath.Join(root, c.Blob.Root)
	}
}

// Validate checks that the configuration is valid.
func (c *LabkitConfig) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (valid: sqlite, postgres, memory)", c.Storage.Driver)
	}

	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("invalid blob driver: %s (valid: fs, s3, memory)", c.Blob.Driver)
	}

	if _, err := archive.ParseFormat(c.Archive.Format); err != nil {
		return fmt.Errorf("invalid archive format: %s (valid: sav, bundle)", c.Archive.Format)
	}
	if c.Archive.KeepVersions < 0 {
		return fmt.Errorf("keep_versions must be non-negative, got %d", c.Archive.KeepVersions)
	}
	if c.Archive.MaxAge != "" {
		if _, err := library.ParseDuration(c.Archive.MaxAge); err != nil {
			return fmt.Errorf("invalid max_age: %w", err)
		}
	}

	if c.Logging.Level != "" && !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: trace, debug, info, warn, error, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Get returns the value at a dot-notation key. Secrets are redacted.
func (c *LabkitConfig) Get(key string) (any, bool) {
	switch key {
	case "storage.driver":
		return c.Storage.Driver, true
	case "storage.sqlite_path":
		return c.Storage.SQLitePath, true
	case "storage.postgres_dsn":
		return c.Storage.RedactedDSN(), true
	case "blob.driver":
		return c.Blob.Driver, true
	case "blob.root":
		return c.Blob.Root, true
	case "blob.s3.bucket":
		return c.Blob.S3.Bucket, true
	case "blob.s3.region":
		return c.Blob.S3.Region, true
	case "blob.s3.endpoint":
		return c.Blob.S3.Endpoint, true
	case "blob.s3.path_style":
		return c.Blob.S3.PathStyle, true
	case "archive.format":
		return c.Archive.Format, true
	case "archive.keep_versions":
		return c.Archive.KeepVersions, true
	case "archive.max_age":
		return c.Archive.MaxAge, true
	case "workbench.single_document":
		return c.Workbench.SingleDocument, true
	case "logging.level":
		return c.Logging.Level, true
	case "metrics.addr":
		return c.Metrics.Addr, true
	default:
		return nil, false
	}
}

// Keys lists every key Get and Set accept, in display order.
func Keys() []string {
	return []string{
		"storage.driver", "storage.sqlite_path", "storage.postgres_dsn",
		"blob.driver", "blob.root", "blob.s3.bucket", "blob.s3.region", "blob.s3.endpoint", "blob.s3.path_style",
		"archive.format", "archive.keep_versions", "archive.max_age",
		"workbench.single_document",
		"logging.level",
		"metrics.addr",
	}
}

// Set assigns value to a dot-notation key and revalidates.
func (c *LabkitConfig) Set(key, value string) error {
	next := *c
	switch key {
	case "storage.driver":
		next.Storage.Driver = value
	case "storage.sqlite_path":
		next.Storage.SQLitePath = value
	case "storage.postgres_dsn":
		next.Storage.PostgresDSN = value
	case "blob.driver":
		next.Blob.Driver = value
	case "blob.root":
		next.Blob.Root = value
	case "blob.s3.bucket":
		next.Blob.S3.Bucket = value
	case "blob.s3.region":
		next.Blob.S3.Region = value
	case "blob.s3.endpoint":
		next.Blob.S3.Endpoint = value
	case "blob.s3.path_style":
		next.Blob.S3.PathStyle = parseBool(value)
	case "archive.format":
		next.Archive.Format = value
	case "archive.keep_versions":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid keep_versions: %s (must be an integer)", value)
		}
		next.Archive.KeepVersions = n
	case "archive.max_age":
		next.Archive.MaxAge = value
	case "workbench.single_document":
		next.Workbench.SingleDocument = parseBool(value)
	case "logging.level":
		next.Logging.Level = value
	case "metrics.addr":
		next.Metrics.Addr = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *LabkitConfig) {
	if v := os.Getenv("LABKIT_STORAGE_DRIVER"); v != "" {
		config.Storage.Driver = v
	}
	if v := os.Getenv("LABKIT_SQLITE_PATH"); v != "" {
		config.Storage.SQLitePath = v
	}
	if v := os.Getenv("LABKIT_POSTGRES_DSN"); v != "" {
		config.Storage.PostgresDSN = v
	}

	if v := os.Getenv("LABKIT_BLOB_DRIVER"); v != "" {
		config.Blob.Driver = v
	}
	if v := os.Getenv("LABKIT_BLOB_ROOT"); v != "" {
		config.Blob.Root = v
	}
	if v := os.Getenv("LABKIT_S3_BUCKET"); v != "" {
		config.Blob.S3.Bucket = v
	}
	if v := os.Getenv("LABKIT_S3_REGION"); v != "" {
		config.Blob.S3.Region = v
	}
	if v := os.Getenv("LABKIT_S3_ENDPOINT"); v != "" {
		config.Blob.S3.Endpoint = v
	}
	if v := os.Getenv("LABKIT_S3_PATH_STYLE"); v != "" {
		config.Blob.S3.PathStyle = parseBool(v)
	}

	if v := os.Getenv("LABKIT_ARCHIVE_FORMAT"); v != "" {
		config.Archive.Format = v
	}
	if v := os.Getenv("LABKIT_KEEP_VERSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Archive.KeepVersions = n
		}
	}
	if v := os.Getenv("LABKIT_MAX_AGE"); v != "" {
		config.Archive.MaxAge = v
	}

	if v := os.Getenv("LABKIT_SINGLE_DOCUMENT"); v != "" {
		config.Workbench.SingleDocument = parseBool(v)
	}

	if v := os.Getenv("LABKIT_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("LABKIT_METRICS_ADDR"); v != "" {
		config.Metrics.Addr = v
	}
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
