// Package config handles loading and parsing of galleryd configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for galleryd.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Metadata MetadataConfig `yaml:"metadata"`
	Blob     BlobConfig     `yaml:"blob"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout is the graceful shutdown wait in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
	// MaxUploadSize caps a single multipart upload request body, in bytes.
	MaxUploadSize int64 `yaml:"max_upload_size"`
	// OpTimeout bounds every blob and metadata store call, in seconds.
	// A timed-out call is treated as a failure of that step.
	OpTimeout int `yaml:"op_timeout"`
}

// OpTimeoutDuration returns the per-store-call timeout as a Duration.
func (c ServerConfig) OpTimeoutDuration() time.Duration {
	return time.Duration(c.OpTimeout) * time.Second
}

// AuthConfig holds authentication settings for the admin surface.
type AuthConfig struct {
	// AdminSecret is the shared secret exchanged for a session at login.
	// There is no default: an empty value is a startup-time fatal error.
	AdminSecret string `yaml:"admin_secret"`
	// SessionTTL is the session token lifetime in seconds.
	SessionTTL int `yaml:"session_ttl"`
}

// SessionTTLDuration returns the session lifetime as a Duration.
func (c AuthConfig) SessionTTLDuration() time.Duration {
	return time.Duration(c.SessionTTL) * time.Second
}

// MetadataConfig holds asset metadata store settings.
type MetadataConfig struct {
	// Engine is the metadata backend engine:
	// "sqlite", "memory", "dynamodb", "firestore", or "cosmos".
	Engine    string           `yaml:"engine"`
	SQLite    SQLiteConfig     `yaml:"sqlite"`
	DynamoDB  *DynamoDBConfig  `yaml:"dynamodb"`
	Firestore *FirestoreConfig `yaml:"firestore"`
	Cosmos    *CosmosConfig    `yaml:"cosmos"`
}

// SQLiteConfig holds SQLite-specific metadata store settings.
type SQLiteConfig struct {
	// Path is the filesystem path for the SQLite database file. The same
	// file holds the external project service's projects table.
	Path string `yaml:"path"`
}

// DynamoDBConfig holds DynamoDB-specific metadata store settings.
type DynamoDBConfig struct {
	// Table is the DynamoDB table name for asset records.
	Table string `yaml:"table"`
	// Region is the AWS region of the table.
	Region string `yaml:"region"`
	// EndpointURL is an optional custom endpoint (DynamoDB Local).
	EndpointURL string `yaml:"endpoint_url"`
}

// FirestoreConfig holds Firestore-specific metadata store settings.
type FirestoreConfig struct {
	// ProjectID is the GCP project ID.
	ProjectID string `yaml:"project_id"`
	// Collection is the Firestore collection for asset documents.
	Collection string `yaml:"collection"`
	// CredentialsFile is an optional service account key file path.
	CredentialsFile string `yaml:"credentials_file"`
}

// CosmosConfig holds Azure Cosmos DB metadata store settings.
type CosmosConfig struct {
	// Endpoint is the Cosmos account endpoint URL.
	Endpoint string `yaml:"endpoint"`
	// MasterKey is the Cosmos account key.
	MasterKey string `yaml:"master_key"`
	// Database is the Cosmos database name.
	Database string `yaml:"database"`
	// Container is the Cosmos container; partition key must be /projectId.
	Container string `yaml:"container"`
}

// BlobConfig holds blob store backend settings.
type BlobConfig struct {
	// Backend is the blob backend type:
	// "local", "memory", "aws", "gcp", or "azure".
	Backend string      `yaml:"backend"`
	Local   LocalConfig `yaml:"local"`
	// AWSBucket is the S3 bucket name for the AWS backend.
	AWSBucket string `yaml:"aws_bucket"`
	// AWSRegion is the AWS region for the AWS backend.
	AWSRegion string `yaml:"aws_region"`
	// AWSPrefix is the optional key prefix for all blobs in the bucket.
	AWSPrefix string `yaml:"aws_prefix"`
	// AWSEndpointURL is an optional custom S3 endpoint (MinIO etc.).
	AWSEndpointURL string `yaml:"aws_endpoint_url"`
	// AWSUsePathStyle forces path-style addressing for custom endpoints.
	AWSUsePathStyle bool `yaml:"aws_use_path_style"`
	// GCSBucket is the GCS bucket name for the GCP backend.
	GCSBucket string `yaml:"gcs_bucket"`
	// GCSPrefix is the optional key prefix for all blobs in the bucket.
	GCSPrefix string `yaml:"gcs_prefix"`
	// GCSCredentialsFile is an optional service account key file path.
	GCSCredentialsFile string `yaml:"gcs_credentials_file"`
	// AzureContainer is the container name for the Azure backend.
	AzureContainer string `yaml:"azure_container"`
	// AzureAccountURL is the Azure storage account URL
	// (https://{account}.blob.core.windows.net).
	AzureAccountURL string `yaml:"azure_account_url"`
	// AzurePrefix is the optional key prefix for all blobs in the container.
	AzurePrefix string `yaml:"azure_prefix"`
}

// LocalConfig holds local filesystem blob store settings.
type LocalConfig struct {
	// RootDir is the base directory for local blob storage.
	RootDir string `yaml:"root_dir"`
	// PublicBaseURL is the URL prefix under which RootDir is served.
	PublicBaseURL string `yaml:"public_base_url"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML configuration file from the given path and returns a
// parsed Config with defaults applied. Auth.AdminSecret may also come from
// the GALLERYD_ADMIN_SECRET environment variable, which takes precedence
// over the file so the secret can stay out of config on disk.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	if env := os.Getenv("GALLERYD_ADMIN_SECRET"); env != "" {
		cfg.Auth.AdminSecret = env
	}

	return cfg, nil
}

// Validate checks startup-time invariants. A missing admin secret is fatal
// here rather than a per-request condition.
func (c *Config) Validate() error {
	if c.Auth.AdminSecret == "" {
		return fmt.Errorf("auth.admin_secret is required (or set GALLERYD_ADMIN_SECRET)")
	}
	switch c.Metadata.Engine {
	case "sqlite", "memory", "dynamodb", "firestore", "cosmos":
	default:
		return fmt.Errorf("unknown metadata.engine %q", c.Metadata.Engine)
	}
	switch c.Blob.Backend {
	case "local", "memory", "aws", "gcp", "azure":
	default:
		return fmt.Errorf("unknown blob.backend %q", c.Blob.Backend)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8480,
			ShutdownTimeout: 30,
			MaxUploadSize:   64 << 20,
			OpTimeout:       15,
		},
		Auth: AuthConfig{
			SessionTTL: 3600,
		},
		Metadata: MetadataConfig{
			Engine: "sqlite",
			SQLite: SQLiteConfig{
				Path: "./data/galleryd.db",
			},
		},
		Blob: BlobConfig{
			Backend: "local",
			Local: LocalConfig{
				RootDir:       "./data/blobs",
				PublicBaseURL: "http://localhost:8480/blobs",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = def.Server.MaxUploadSize
	}
	if cfg.Server.OpTimeout == 0 {
		cfg.Server.OpTimeout = def.Server.OpTimeout
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = def.Auth.SessionTTL
	}
	if cfg.Metadata.Engine == "" {
		cfg.Metadata.Engine = def.Metadata.Engine
	}
	if cfg.Metadata.SQLite.Path == "" {
		cfg.Metadata.SQLite.Path = def.Metadata.SQLite.Path
	}
	if cfg.Blob.Backend == "" {
		cfg.Blob.Backend = def.Blob.Backend
	}
	if cfg.Blob.Local.RootDir == "" {
		cfg.Blob.Local.RootDir = def.Blob.Local.RootDir
	}
	if cfg.Blob.Local.PublicBaseURL == "" {
		cfg.Blob.Local.PublicBaseURL = def.Blob.Local.PublicBaseURL
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}
