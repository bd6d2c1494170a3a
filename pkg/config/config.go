// Package config manages the registry of known p2 repositories and the
// settings sessions, the connector and the proxy run with. Configuration is
// stored as YAML and falls back to sensible defaults when no file exists.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/glorpus-work/p2maven/pkg/fsutil"
	"github.com/glorpus-work/p2maven/pkg/osgi"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// Registered p2 repositories
	Repositories []*RepositoryConfig `yaml:"repositories"`

	// General settings
	Settings Settings `yaml:"settings"`
}

// RepositoryConfig registers one p2 repository under a Maven group.
type RepositoryConfig struct {
	ID      string      `yaml:"id"`
	URL     string      `yaml:"url"`
	Group   string      `yaml:"group,omitempty"` // defaults to ID
	Enabled bool        `yaml:"enabled"`
	Auth    *AuthConfig `yaml:"auth,omitempty"`
}

// Settings represents general application settings.
type Settings struct {
	// Parent of session scratch directories
	ScratchDir string `yaml:"scratch_dir,omitempty"`

	// Network settings
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	UserAgent     string        `yaml:"user_agent,omitempty"`

	// Manifest localization, e.g. "de_CH"
	Locale string `yaml:"locale,omitempty"`

	// Proxy listen address
	ListenAddress string `yaml:"listen_address"`

	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}

// Default configuration values.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMaxConcurrent is the default maximum number of concurrent transfers.
	DefaultMaxConcurrent = 4

	// DefaultListenAddress is where the proxy listens unless configured.
	DefaultListenAddress = "127.0.0.1:8080"

	// DefaultLogLevel is the log level used when none is configured.
	DefaultLogLevel = "info"

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2

	configFileName = "config.yaml"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Repositories: []*RepositoryConfig{},
		Settings: Settings{
			ScratchDir:    fsutil.GetScratchRoot(),
			HTTPTimeout:   DefaultHTTPTimeout,
			MaxConcurrent: DefaultMaxConcurrent,
			Locale:        osgi.DefaultLocale(),
			ListenAddress: DefaultListenAddress,
			LogLevel:      DefaultLogLevel,
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfigParse, err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfigValidation, err)
	}

	return &config, nil
}

// SaveConfig writes the configuration through a temporary file and a rename.
// The file may carry credentials and is not world-readable.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeDefault); err != nil {
		return errors.Wrap(errors.ErrConfigDirectory, err.Error())
	}

	tempPath := absPath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeSecure)
	if err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)

	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigEncode, err.Error())
	}

	_ = encoder.Close()
	_ = file.Close()

	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigFileRename, err.Error())
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConfigMarshal, err.Error())
	}
	return data, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	if err := validateRepositories(c.Repositories); err != nil {
		return err
	}
	return validateSettings(c.Settings)
}

func validateRepositories(repos []*RepositoryConfig) error {
	ids := make(map[string]bool)
	for i, repo := range repos {
		if repo == nil || repo.ID == "" {
			return errors.ErrRepositoryIDEmptyAt(i)
		}
		if repo.URL == "" {
			return errors.ErrRepositoryURLEmptyWithID(repo.ID)
		}
		if ids[repo.ID] {
			return errors.ErrRepositoryExistsWithID(repo.ID)
		}
		ids[repo.ID] = true
		if err := repo.Auth.validate(); err != nil {
			return fmt.Errorf("repository %s: %w", repo.ID, err)
		}
	}
	return nil
}

func validateSettings(s Settings) error {
	if s.HTTPTimeout < 0 {
		return errors.ErrHTTPTimeoutNegative
	}
	if s.MaxConcurrent < 1 {
		return errors.ErrMaxConcurrentInvalid
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return errors.ErrInvalidLogLevelWithDetails(s.LogLevel)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path,
// e.g. ~/.config/p2maven/config.yaml.
func GetDefaultConfigPath() (string, error) {
	configDir, err := fsutil.GetConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, configFileName), nil
}

// AddRepository registers a repository. Returns an error if the id is taken.
func (c *Config) AddRepository(repo *RepositoryConfig) error {
	if repo == nil || repo.ID == "" {
		return errors.ErrRepositoryIDEmpty
	}
	if repo.URL == "" {
		return errors.ErrRepositoryURLEmptyWithID(repo.ID)
	}
	if c.GetRepository(repo.ID) != nil {
		return errors.ErrRepositoryExistsWithID(repo.ID)
	}
	c.Repositories = append(c.Repositories, repo)
	return nil
}

// RemoveRepository removes a repository from the configuration.
func (c *Config) RemoveRepository(id string) bool {
	for i, repo := range c.Repositories {
		if repo.ID == id {
			c.Repositories = append(c.Repositories[:i], c.Repositories[i+1:]...)
			return true
		}
	}
	return false
}

// GetRepository gets a repository configuration by id.
func (c *Config) GetRepository(id string) *RepositoryConfig {
	for _, repo := range c.Repositories {
		if repo.ID == id {
			return repo
		}
	}
	return nil
}

// EnableRepository enables or disables a repository.
func (c *Config) EnableRepository(id string, enabled bool) bool {
	repo := c.GetRepository(id)
	if repo == nil {
		return false
	}
	repo.Enabled = enabled
	return true
}

// EnabledRepositories returns the repositories sessions should be opened for.
func (c *Config) EnabledRepositories() []*RepositoryConfig {
	var out []*RepositoryConfig
	for _, repo := range c.Repositories {
		if repo.Enabled {
			out = append(out, repo)
		}
	}
	return out
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Settings.ScratchDir == "" {
		c.Settings.ScratchDir = defaults.Settings.ScratchDir
	}
	if c.Settings.HTTPTimeout == 0 {
		c.Settings.HTTPTimeout = defaults.Settings.HTTPTimeout
	}
	if c.Settings.MaxConcurrent == 0 {
		c.Settings.MaxConcurrent = defaults.Settings.MaxConcurrent
	}
	if c.Settings.ListenAddress == "" {
		c.Settings.ListenAddress = defaults.Settings.ListenAddress
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
	if c.Settings.Locale == "" {
		c.Settings.Locale = defaults.Settings.Locale
	}
	if c.Repositories == nil {
		c.Repositories = []*RepositoryConfig{}
	}
}
