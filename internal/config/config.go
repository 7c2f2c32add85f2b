// Package config provides configuration loading and management for the view exporter.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/view-exporter/internal/telemetry"
)

const (
	// EnvPrefix is the prefix for environment variables read through viper
	EnvPrefix = "VIEW_EXPORTER"

	// OutputDir is the directory beneath which all resource artifacts are written
	OutputDir = "/var/www/html/iris/"

	// NotifyChannel is the change-notification channel the listener subscribes to
	NotifyChannel = "tms"

	// DefaultSocketDir is the directory holding the PostgreSQL unix domain socket
	DefaultSocketDir = "/run/postgresql"

	// DefaultDatabase is the name of the database resources are exported from
	DefaultDatabase = "tms"

	// DefaultTimeZone is the session time zone used when rendering timestamps
	DefaultTimeZone = "US/Central"

	// DefaultMirrorPort is the SSH port used when mirroring artifacts
	DefaultMirrorPort = 22

	// DefaultMirrorDialTimeout bounds a single SSH dial attempt
	DefaultMirrorDialTimeout = 10 * time.Second
)

const (
	// ResourceKindList writes all rows of a query into one JSON array file
	ResourceKindList = "list"

	// ResourceKindDir writes one file per row into a directory named after the resource
	ResourceKindDir = "dir"
)

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

// Config represents the root configuration structure.
// Every section is optional; a zero Config runs with the built-in defaults.
type Config struct {
	Database  *DatabaseConfig   `yaml:"database,omitempty"`
	Mirror    *MirrorConfig     `yaml:"mirror,omitempty"`
	Resources []ResourceConfig  `yaml:"resources,omitempty"`
	Status    *StatusConfig     `yaml:"status,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// DatabaseConfig defines the local database connection settings.
// Only unix domain sockets are supported, so there is no host, port or password.
type DatabaseConfig struct {
	// SocketDir is the directory containing the PostgreSQL socket
	SocketDir string `yaml:"socketDir,omitempty"`

	// Database is the database name
	Database string `yaml:"database,omitempty"`

	// TimeZone is applied to the session right after connecting
	TimeZone string `yaml:"timeZone,omitempty"`
}

// MirrorConfig defines how produced artifacts are copied to the remote host.
// The host itself is supplied on the command line.
type MirrorConfig struct {
	// RemoteUser is the SSH user; defaults to the database identity
	RemoteUser string `yaml:"remoteUser,omitempty"`

	// Port is the SSH port
	Port int `yaml:"port,omitempty"`

	// KnownHostsFile is used to verify the remote host key
	// Defaults to ~/.ssh/known_hosts
	KnownHostsFile string `yaml:"knownHostsFile,omitempty"`

	// DialTimeout bounds a single connection attempt (e.g., "10s")
	DialTimeout string `yaml:"dialTimeout,omitempty"`

	// RemoteDir is prepended to every mirrored path; empty mirrors to the same absolute path
	RemoteDir string `yaml:"remoteDir,omitempty"`
}

// ResourceConfig defines a single exported resource
type ResourceConfig struct {
	// Name is the resource name; it is also the notification payload and output file name
	Name string `yaml:"name"`

	// Kind is either "list" (default) or "dir"
	Kind string `yaml:"kind,omitempty"`

	// Query is the SQL producing the rows.
	// For "list" it must return one JSON text column per row.
	// For "dir" it must return a key column and a JSON text column.
	Query string `yaml:"query"`
}

// StatusConfig defines the optional status HTTP endpoint
type StatusConfig struct {
	// Address to listen on, e.g. "127.0.0.1:9090". Empty disables the endpoint.
	Address string `yaml:"address,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

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

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetSocketDir returns the socket directory, using the default if not specified
func (d *DatabaseConfig) GetSocketDir() string {
	if d == nil || d.SocketDir == "" {
		return DefaultSocketDir
	}
	return d.SocketDir
}

// GetDatabase returns the database name, using the default if not specified
func (d *DatabaseConfig) GetDatabase() string {
	if d == nil || d.Database == "" {
		return DefaultDatabase
	}
	return d.Database
}

// GetTimeZone returns the session time zone, using the default if not specified
func (d *DatabaseConfig) GetTimeZone() string {
	if d == nil || d.TimeZone == "" {
		return DefaultTimeZone
	}
	return d.TimeZone
}

// GetPort returns the SSH port, using the default if not specified
func (m *MirrorConfig) GetPort() int {
	if m == nil || m.Port == 0 {
		return DefaultMirrorPort
	}
	return m.Port
}

// GetRemoteUser returns the SSH user, falling back to the given identity
func (m *MirrorConfig) GetRemoteUser(identity string) string {
	if m == nil || m.RemoteUser == "" {
		return identity
	}
	return m.RemoteUser
}

// GetKnownHostsFile returns the known hosts file, defaulting to ~/.ssh/known_hosts
func (m *MirrorConfig) GetKnownHostsFile() string {
	if m != nil && m.KnownHostsFile != "" {
		return m.KnownHostsFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

// GetDialTimeout returns the parsed dial timeout.
// Validate guarantees the value parses; an unset value yields the default.
func (m *MirrorConfig) GetDialTimeout() time.Duration {
	if m == nil || m.DialTimeout == "" {
		return DefaultMirrorDialTimeout
	}
	d, err := time.ParseDuration(m.DialTimeout)
	if err != nil {
		return DefaultMirrorDialTimeout
	}
	return d
}

// GetKind returns the resource kind, defaulting to "list"
func (r *ResourceConfig) GetKind() string {
	if r.Kind == "" {
		return ResourceKindList
	}
	return r.Kind
}

// GetStatusAddress returns the status endpoint address or "" when disabled
func (c *Config) GetStatusAddress() string {
	if c == nil || c.Status == nil {
		return ""
	}
	return c.Status.Address
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateDatabase(c.Database); err != nil {
		return err
	}

	if err := validateResources(c.Resources); err != nil {
		return err
	}

	if err := validateMirror(c.Mirror); err != nil {
		return err
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

// validateResources checks names are unique and each entry is complete
func validateResources(resources []ResourceConfig) error {
	names := make(map[string]bool)
	for i, res := range resources {
		if err := ValidateResourceName(res.Name); err != nil {
			return fmt.Errorf("resources[%d]: %w", i, err)
		}
		if names[res.Name] {
			return fmt.Errorf("resources[%d]: duplicate resource name '%s'", i, res.Name)
		}
		names[res.Name] = true

		prefix := fmt.Sprintf("resources[%d] (%s)", i, res.Name)
		if res.Query == "" {
			return fmt.Errorf("%s: query is required", prefix)
		}
		switch res.GetKind() {
		case ResourceKindList, ResourceKindDir:
		default:
			return fmt.Errorf("%s: kind must be %s or %s, got %s",
				prefix, ResourceKindList, ResourceKindDir, res.Kind)
		}
	}
	return nil
}

// ValidateResourceName checks that name can be used as a file name directly
// beneath the output directory
func ValidateResourceName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") || !filepath.IsLocal(name) {
		return fmt.Errorf("invalid resource name '%s': must be a plain file name", name)
	}
	return nil
}

// validateDatabase validates the database section
func validateDatabase(d *DatabaseConfig) error {
	if d == nil {
		return nil
	}
	if d.SocketDir != "" && !filepath.IsAbs(d.SocketDir) {
		return fmt.Errorf("database.socketDir must be an absolute path, got %s", d.SocketDir)
	}
	return nil
}

// validateMirror validates the mirror section
func validateMirror(m *MirrorConfig) error {
	if m == nil {
		return nil
	}
	if m.Port < 0 || m.Port > 65535 {
		return fmt.Errorf("mirror.port must be between 1 and 65535, got %d", m.Port)
	}
	if m.RemoteDir != "" && !filepath.IsAbs(m.RemoteDir) {
		return fmt.Errorf("mirror.remoteDir must be an absolute path, got %s", m.RemoteDir)
	}
	if m.DialTimeout != "" {
		if _, err := time.ParseDuration(m.DialTimeout); err != nil {
			return fmt.Errorf("mirror.dialTimeout must be a valid duration (e.g., '10s'): %w", err)
		}
	}
	return nil
}
