package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/viper"

	"github.com/franksops/blobpush/engine"
	"github.com/franksops/blobpush/provider"
)

const (
	// EnvPrefix prefixes every environment override, e.g.
	// BLOBPUSH_TRANSFER_MAX_OUTSTANDING.
	EnvPrefix = "BLOBPUSH"

	// TimestampToken is replaced in LogPath by the run timestamp.
	TimestampToken = "{timestamp}"

	// TimestampLayout formats the run timestamp used in container and log names.
	TimestampLayout = "20060102-150405"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultLogPath is the default progress log file.
	DefaultLogPath = "logs/bpush-" + TimestampToken + ".log"

	// DefaultMaxOutstanding is the default bound on in-flight transfers.
	DefaultMaxOutstanding = 100

	// DefaultPartSize is the default block size of one upload part.
	DefaultPartSize = "100MiB"

	// DefaultPartConcurrency is the default number of parts uploaded in
	// parallel for one object.
	DefaultPartConcurrency = 4

	// DefaultBackend is the default store backend.
	DefaultBackend = provider.BackendS3

	// DefaultLocalBufferSize is the copy buffer of the local backend.
	DefaultLocalBufferSize = "1MiB"
)

// Config is the root configuration of bpush.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
	StateDir string `mapstructure:"state_dir"`

	Container ContainerConfig `mapstructure:"container"`
	Source    SourceConfig    `mapstructure:"source"`
	Staging   StagingConfig   `mapstructure:"staging"`
	Transfer  TransferConfig  `mapstructure:"transfer"`
	Console   ConsoleConfig   `mapstructure:"console"`
	Store     StoreConfig     `mapstructure:"store"`
}

// ContainerConfig controls the destination container of a run.
type ContainerConfig struct {
	Prefix         string `mapstructure:"prefix"`
	DeleteAfterRun bool   `mapstructure:"delete_after_run"`
}

// SourceConfig points at the local files to upload.
type SourceConfig struct {
	Path      string `mapstructure:"path"`
	Recursive bool   `mapstructure:"recursive"`
}

// StagingConfig enables template replication when Replicas > 0.
type StagingConfig struct {
	Replicas int    `mapstructure:"replicas"`
	Dir      string `mapstructure:"dir"`
}

// TransferConfig tunes the orchestrator and each upload.
type TransferConfig struct {
	MaxOutstanding   int           `mapstructure:"max_outstanding"`
	PartSize         string        `mapstructure:"part_size"`
	PartConcurrency  int           `mapstructure:"part_concurrency"`
	VerifyIntegrity  bool          `mapstructure:"verify_integrity"`
	PreserveMetadata bool          `mapstructure:"preserve_metadata"`
	SubmitRate       float64       `mapstructure:"submit_rate"`
	CleanupTimeout   time.Duration `mapstructure:"cleanup_timeout"`
}

// ConsoleConfig controls what is written to the terminal.
type ConsoleConfig struct {
	Echo        bool `mapstructure:"echo"`
	ProgressBar bool `mapstructure:"progress_bar"`
}

// StoreConfig selects the backend and carries its credentials.
type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	S3      S3Config    `mapstructure:"s3"`
	Minio   MinioConfig `mapstructure:"minio"`
	Azure   AzureConfig `mapstructure:"azure"`
	Local   LocalConfig `mapstructure:"local"`
}

// S3Config contains AWS S3 (or S3-compatible) settings.
type S3Config struct {
	Region          string `mapstructure:"region"`
	EndpointURL     string `mapstructure:"endpoint_url"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

// MinioConfig contains MinIO settings.
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// AzureConfig contains Azure Blob Storage settings.
type AzureConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
}

// LocalConfig contains the settings of the local directory backend.
type LocalConfig struct {
	Root       string `mapstructure:"root"`
	BufferSize string `mapstructure:"buffer_size"`
}

// defaults lists every key so that AutomaticEnv can override each of
// them during Unmarshal.
var defaults = map[string]any{
	"log_level":                     DefaultLogLevel,
	"log_path":                      DefaultLogPath,
	"state_dir":                     "",
	"container.prefix":              "",
	"container.delete_after_run":    false,
	"source.path":                   "",
	"source.recursive":              false,
	"staging.replicas":              0,
	"staging.dir":                   "",
	"transfer.max_outstanding":      DefaultMaxOutstanding,
	"transfer.part_size":            DefaultPartSize,
	"transfer.part_concurrency":     DefaultPartConcurrency,
	"transfer.verify_integrity":     false,
	"transfer.preserve_metadata":    false,
	"transfer.submit_rate":          0.0,
	"transfer.cleanup_timeout":      engine.DefaultCleanupTimeout,
	"console.echo":                  true,
	"console.progress_bar":          false,
	"store.backend":                 DefaultBackend,
	"store.s3.region":               "us-east-1",
	"store.s3.endpoint_url":         "",
	"store.s3.access_key_id":        "",
	"store.s3.secret_access_key":    "",
	"store.s3.force_path_style":     false,
	"store.s3.key_prefix":           "",
	"store.minio.endpoint":          "",
	"store.minio.region":            "",
	"store.minio.access_key":        "",
	"store.minio.secret_key":        "",
	"store.azure.connection_string": "",
	"store.local.root":              "",
	"store.local.buffer_size":       DefaultLocalBufferSize,
}

// NewViper returns a viper instance with every default set and
// environment overrides enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration file at path (optional) and applies
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Container.Prefix == "" {
		return errors.New("container.prefix is required")
	}
	if c.Source.Path == "" {
		return errors.New("source.path is required")
	}
	if c.Transfer.MaxOutstanding <= 0 {
		return fmt.Errorf("transfer.max_outstanding must be positive, got %d", c.Transfer.MaxOutstanding)
	}
	if c.Transfer.PartConcurrency < 0 {
		return fmt.Errorf("transfer.part_concurrency must not be negative, got %d", c.Transfer.PartConcurrency)
	}
	if c.Transfer.SubmitRate < 0 {
		return fmt.Errorf("transfer.submit_rate must not be negative, got %v", c.Transfer.SubmitRate)
	}
	if c.Staging.Replicas < 0 {
		return fmt.Errorf("staging.replicas must not be negative, got %d", c.Staging.Replicas)
	}
	if _, err := c.PartSizeBytes(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case provider.BackendS3:
		s3 := c.Store.S3
		if (s3.AccessKeyID == "") != (s3.SecretAccessKey == "") {
			return errors.New("store.s3: access_key_id and secret_access_key must be set together")
		}
	case provider.BackendMinio:
		m := c.Store.Minio
		if m.Endpoint == "" || m.AccessKey == "" || m.SecretKey == "" {
			return errors.New("store.minio: endpoint, access_key and secret_key are required")
		}
	case provider.BackendAzure:
		if c.Store.Azure.ConnectionString == "" {
			return errors.New("store.azure.connection_string is required")
		}
	case provider.BackendLocal:
		if c.Store.Local.Root == "" {
			return errors.New("store.local.root is required")
		}
		if _, err := units.RAMInBytes(c.Store.Local.BufferSize); err != nil {
			return fmt.Errorf("store.local.buffer_size: %w", err)
		}
	default:
		return fmt.Errorf("unknown store.backend %q (supported: %s)", c.Store.Backend, strings.Join(provider.Backends, ", "))
	}

	return nil
}

// PartSizeBytes parses transfer.part_size ("100MiB", "8m", "5242880").
func (c *Config) PartSizeBytes() (int64, error) {
	n, err := units.RAMInBytes(c.Transfer.PartSize)
	if err != nil {
		return 0, fmt.Errorf("transfer.part_size: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("transfer.part_size must be positive, got %q", c.Transfer.PartSize)
	}
	return n, nil
}

// UploadOptions returns the per-upload options.
func (c *Config) UploadOptions() (provider.UploadOptions, error) {
	partSize, err := c.PartSizeBytes()
	if err != nil {
		return provider.UploadOptions{}, err
	}
	return provider.UploadOptions{
		PartSize:         partSize,
		PartConcurrency:  c.Transfer.PartConcurrency,
		VerifyIntegrity:  c.Transfer.VerifyIntegrity,
		PreserveMetadata: c.Transfer.PreserveMetadata,
	}, nil
}

// ContainerName returns "<prefix>-<YYYYMMDD-HHMMSS>" in lower case.
func (c *Config) ContainerName(now time.Time) string {
	return strings.ToLower(c.Container.Prefix + "-" + now.Format(TimestampLayout))
}

// LogFile expands the timestamp token of LogPath.
func (c *Config) LogFile(now time.Time) string {
	return strings.ReplaceAll(c.LogPath, TimestampToken, now.Format(TimestampLayout))
}

// ProviderConfig maps the store section to the provider factory input.
func (c *Config) ProviderConfig() (provider.StoreConfig, error) {
	bufSize := int64(0)
	if c.Store.Backend == provider.BackendLocal {
		n, err := units.RAMInBytes(c.Store.Local.BufferSize)
		if err != nil {
			return provider.StoreConfig{}, fmt.Errorf("store.local.buffer_size: %w", err)
		}
		bufSize = n
	}

	return provider.StoreConfig{
		Backend: c.Store.Backend,
		S3: provider.S3Config{
			Region:          c.Store.S3.Region,
			EndpointURL:     c.Store.S3.EndpointURL,
			AccessKeyID:     c.Store.S3.AccessKeyID,
			SecretAccessKey: c.Store.S3.SecretAccessKey,
			ForcePathStyle:  c.Store.S3.ForcePathStyle,
			KeyPrefix:       c.Store.S3.KeyPrefix,
		},
		Minio: provider.MinioConfig{
			Endpoint:  c.Store.Minio.Endpoint,
			Region:    c.Store.Minio.Region,
			AccessKey: c.Store.Minio.AccessKey,
			SecretKey: c.Store.Minio.SecretKey,
		},
		AzureConnectionString: c.Store.Azure.ConnectionString,
		LocalRoot:             c.Store.Local.Root,
		LocalBufferSize:       int(bufSize),
	}, nil
}
