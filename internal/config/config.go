// Package config provides configuration loading and management for the sync server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// StorageTypePostgres stores synced entities in PostgreSQL
	StorageTypePostgres = "postgres"

	// StorageTypeMemory keeps synced entities in process memory only
	StorageTypeMemory = "memory"
)

// EnvPrefix is the prefix for environment variables read by the server
const EnvPrefix = "OPSYNC"

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Server   ServerConfig    `yaml:"server,omitempty"`
	Deere    DeereConfig     `yaml:"deere"`
	Sync     SyncConfig      `yaml:"sync,omitempty"`
	Storage  StorageConfig   `yaml:"storage,omitempty"`
	Database *DatabaseConfig `yaml:"database,omitempty"`
	Auth     AuthConfig      `yaml:"auth,omitempty"`
}

// ServerConfig defines HTTP server settings
type ServerConfig struct {
	// Address is the listen address in host:port form
	Address string `yaml:"address,omitempty"`
}

// DeereConfig defines the connection to the Operations Center API
type DeereConfig struct {
	// AuthURL is the OAuth2 client-credentials token endpoint
	AuthURL string `yaml:"authUrl"`

	// APIBase is the base URL for the Operations Center REST APIs
	APIBase string `yaml:"apiBase"`

	// OrganizationID is the Operations Center organization to sync
	OrganizationID string `yaml:"organizationId"`

	// ClientID is the OAuth2 client identifier
	ClientID string `yaml:"clientId"`

	// ClientSecretFile is the path to a file containing the OAuth2 client
	// secret. This is the recommended approach for production deployments.
	ClientSecretFile string `yaml:"clientSecretFile,omitempty"`

	// PageSize is the item limit requested per equipment page.
	// Defaults to 100 when unset.
	PageSize int `yaml:"pageSize,omitempty"`
}

// GetClientSecret returns the OAuth2 client secret using the following priority:
// 1. Read from ClientSecretFile if specified
// 2. Read from OPSYNC_CLIENT_SECRET environment variable
//
// The secret from file will have leading/trailing whitespace trimmed.
func (d *DeereConfig) GetClientSecret() (string, error) {
	if d.ClientSecretFile != "" {
		cleanPath := filepath.Clean(d.ClientSecretFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read client secret from file %s: %w", d.ClientSecretFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envSecret := os.Getenv(EnvPrefix + "_CLIENT_SECRET"); envSecret != "" {
		return envSecret, nil
	}

	return "", fmt.Errorf(
		"no client secret configured: set deere.clientSecretFile or %s_CLIENT_SECRET environment variable",
		EnvPrefix,
	)
}

// SyncConfig defines the synchronization schedule
type SyncConfig struct {
	// Interval is the time between sync ticks (e.g. "5m", "300s")
	Interval string `yaml:"interval,omitempty"`
}

// GetInterval returns the parsed sync interval, defaulting to 5 minutes
func (s *SyncConfig) GetInterval() time.Duration {
	if s.Interval == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(s.Interval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// StorageConfig selects the entity store backend
type StorageConfig struct {
	// Type is the storage backend: "postgres" or "memory"
	Type string `yaml:"type,omitempty"`
}

// GetStorageType returns the configured storage type, defaulting to postgres
func (c *Config) GetStorageType() string {
	if c.Storage.Type == "" {
		return StorageTypePostgres
	}
	return c.Storage.Type
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// The file should contain only the password with optional trailing whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from OPSYNC_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set database.passwordFile or %s_DATABASE_PASSWORD environment variable",
		EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// AuthConfig defines local JWT authentication settings
type AuthConfig struct {
	// SigningKeyFile is the path to a file containing the HS256 signing key
	SigningKeyFile string `yaml:"signingKeyFile,omitempty"`

	// TokenTTL is the lifetime of issued access tokens (e.g. "1h")
	TokenTTL string `yaml:"tokenTTL,omitempty"`
}

// GetSigningKey returns the JWT signing key using the following priority:
// 1. Read from SigningKeyFile if specified
// 2. Read from OPSYNC_SIGNING_KEY environment variable
func (a *AuthConfig) GetSigningKey() ([]byte, error) {
	if a.SigningKeyFile != "" {
		cleanPath := filepath.Clean(a.SigningKeyFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key from file %s: %w", a.SigningKeyFile, err)
		}

		return []byte(strings.TrimSpace(string(data))), nil
	}

	if envKey := os.Getenv(EnvPrefix + "_SIGNING_KEY"); envKey != "" {
		return []byte(envKey), nil
	}

	return nil, fmt.Errorf(
		"no signing key configured: set auth.signingKeyFile or %s_SIGNING_KEY environment variable",
		EnvPrefix,
	)
}

// GetTokenTTL returns the parsed token lifetime, defaulting to 1 hour
func (a *AuthConfig) GetTokenTTL() time.Duration {
	if a.TokenTTL == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(a.TokenTTL)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetAddress returns the configured listen address, defaulting to :8080
func (c *Config) GetAddress() string {
	if c.Server.Address == "" {
		return ":8080"
	}
	return c.Server.Address
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.validateDeere(); err != nil {
		return err
	}

	if c.Sync.Interval != "" {
		if _, err := time.ParseDuration(c.Sync.Interval); err != nil {
			return fmt.Errorf("sync.interval must be a valid duration (e.g. '5m', '300s'): %w", err)
		}
	}

	switch c.GetStorageType() {
	case StorageTypePostgres:
		if err := c.validateDatabase(); err != nil {
			return err
		}
	case StorageTypeMemory:
		// No database required
	default:
		return fmt.Errorf("storage.type must be %q or %q, got %q",
			StorageTypePostgres, StorageTypeMemory, c.Storage.Type)
	}

	if c.Auth.TokenTTL != "" {
		if _, err := time.ParseDuration(c.Auth.TokenTTL); err != nil {
			return fmt.Errorf("auth.tokenTTL must be a valid duration: %w", err)
		}
	}

	return nil
}

func (c *Config) validateDeere() error {
	if c.Deere.AuthURL == "" {
		return fmt.Errorf("deere.authUrl is required")
	}
	if c.Deere.APIBase == "" {
		return fmt.Errorf("deere.apiBase is required")
	}
	if c.Deere.OrganizationID == "" {
		return fmt.Errorf("deere.organizationId is required")
	}
	if c.Deere.ClientID == "" {
		return fmt.Errorf("deere.clientId is required")
	}
	if c.Deere.PageSize < 0 {
		return fmt.Errorf("deere.pageSize must not be negative")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required when storage.type is %q", StorageTypePostgres)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	return nil
}
