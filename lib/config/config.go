// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads the config path
// from.
const EnvVar = "APPMGR_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the configuration of the appmgr daemon and CLI.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	Paths     PathsConfig     `yaml:"paths"`
	Registry  RegistryConfig  `yaml:"registry"`
	Install   InstallConfig   `yaml:"install"`
	Container ContainerConfig `yaml:"container"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths    *PathsConfig    `yaml:"paths,omitempty"`
	Registry *RegistryConfig `yaml:"registry,omitempty"`
	Metrics  *MetricsConfig  `yaml:"metrics,omitempty"`
}

// PathsConfig configures directory locations. Every path may refer to
// ${APPMGR_ROOT}, which expands to Root.
type PathsConfig struct {
	// Root is the base directory for appmgr data.
	Root string `yaml:"root"`

	// Cache holds downloaded archives.
	Cache string `yaml:"cache"`

	// Public holds unpacked license, instructions and icon files.
	Public string `yaml:"public"`

	// AppData holds package volumes.
	AppData string `yaml:"app_data"`

	// State holds the package registry and secret store databases.
	State string `yaml:"state"`

	// Socket is the daemon's Unix socket.
	Socket string `yaml:"socket"`
}

// RegistryPath is the package registry database.
func (p PathsConfig) RegistryPath() string { return filepath.Join(p.State, "registry.db") }

// SecretsPath is the secret store database.
func (p PathsConfig) SecretsPath() string { return filepath.Join(p.State, "secrets.db") }

// RegistryConfig configures the package registry client.
type RegistryConfig struct {
	// URL is the registry base URL.
	URL string `yaml:"url"`

	// RequestTimeout bounds the manifest request and the response
	// headers of the archive request. The archive body is bounded by
	// Install.DownloadTimeout instead.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// InstallConfig configures the install pipeline.
type InstallConfig struct {
	DownloadTimeout  Duration `yaml:"download_timeout"`
	ImageLoadTimeout Duration `yaml:"image_load_timeout"`

	// ProgressInterval is how often download progress is persisted.
	ProgressInterval Duration `yaml:"progress_interval"`
}

// ContainerConfig selects the container engine.
type ContainerConfig struct {
	// Engine is "docker", "podman" or "auto".
	// Default: auto
	Engine string `yaml:"engine"`
}

// SecretsConfig configures the secret store.
type SecretsConfig struct {
	// IdentityFile is the age identity that seals stored keys. The
	// daemon creates it (mode 0600) when it does not exist.
	IdentityFile string `yaml:"identity_file"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the host:port the /metrics endpoint binds. Empty
	// disables it.
	Listen string `yaml:"listen"`
}

// Duration is a time.Duration written as a Go duration string
// ("30s", "10m") in YAML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// Paths are unexpanded; LoadFile expands them.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:    filepath.Join(homeDir, ".local", "share", "appmgr"),
			Cache:   "${APPMGR_ROOT}/cache",
			Public:  "${APPMGR_ROOT}/public",
			AppData: "${APPMGR_ROOT}/app-data",
			State:   "${APPMGR_ROOT}/state",
			Socket:  "${XDG_RUNTIME_DIR:-/run}/appmgr/appmgrd.sock",
		},
		Registry: RegistryConfig{
			URL:            "https://registry.start9labs.com",
			RequestTimeout: Duration(time.Minute),
		},
		Install: InstallConfig{
			DownloadTimeout:  Duration(30 * time.Minute),
			ImageLoadTimeout: Duration(10 * time.Minute),
			ProgressInterval: Duration(300 * time.Millisecond),
		},
		Container: ContainerConfig{
			Engine: "auto",
		},
		Secrets: SecretsConfig{
			IdentityFile: "${APPMGR_ROOT}/state/identity.age",
		},
	}
}

// Load loads configuration from the file named by APPMGR_CONFIG.
//
// There are no fallbacks: if APPMGR_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your appmgr.yaml config file, or use --config flag", EnvVar)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// Only ${VAR} and ${VAR:-default} references inside values are
// expanded; environment variables never override config values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// Expanded returns the default configuration with its variables
// expanded, for clients that only need default locations.
func Expanded() *Config {
	cfg := Default()
	cfg.expandVariables()
	return cfg
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		override(&c.Paths.Root, overrides.Paths.Root)
		override(&c.Paths.Cache, overrides.Paths.Cache)
		override(&c.Paths.Public, overrides.Paths.Public)
		override(&c.Paths.AppData, overrides.Paths.AppData)
		override(&c.Paths.State, overrides.Paths.State)
		override(&c.Paths.Socket, overrides.Paths.Socket)
	}

	if overrides.Registry != nil {
		override(&c.Registry.URL, overrides.Registry.URL)
		if overrides.Registry.RequestTimeout != 0 {
			c.Registry.RequestTimeout = overrides.Registry.RequestTimeout
		}
	}

	// Listen is applied even when empty, so an environment can turn
	// metrics off.
	if overrides.Metrics != nil {
		c.Metrics.Listen = overrides.Metrics.Listen
	}
}

func override(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"APPMGR_ROOT": c.Paths.Root,
		"HOME":        os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["APPMGR_ROOT"] = c.Paths.Root

	c.Paths.Cache = expandVars(c.Paths.Cache, vars)
	c.Paths.Public = expandVars(c.Paths.Public, vars)
	c.Paths.AppData = expandVars(c.Paths.AppData, vars)
	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Socket = expandVars(c.Paths.Socket, vars)
	c.Secrets.IdentityFile = expandVars(c.Secrets.IdentityFile, vars)
	c.Registry.URL = expandVars(c.Registry.URL, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	for name, path := range map[string]string{
		"paths.root":     c.Paths.Root,
		"paths.cache":    c.Paths.Cache,
		"paths.public":   c.Paths.Public,
		"paths.app_data": c.Paths.AppData,
		"paths.state":    c.Paths.State,
		"paths.socket":   c.Paths.Socket,
	} {
		if path == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		} else if !filepath.IsAbs(path) {
			errs = append(errs, fmt.Errorf("%s must be absolute, got %q", name, path))
		}
	}

	if parsed, err := url.Parse(c.Registry.URL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("registry.url must be an http(s) URL, got %q", c.Registry.URL))
	}

	for name, duration := range map[string]Duration{
		"registry.request_timeout":   c.Registry.RequestTimeout,
		"install.download_timeout":   c.Install.DownloadTimeout,
		"install.image_load_timeout": c.Install.ImageLoadTimeout,
		"install.progress_interval":  c.Install.ProgressInterval,
	} {
		if duration <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, duration))
		}
	}

	engines := []string{"auto", "docker", "podman"}
	if !contains(engines, c.Container.Engine) {
		errs = append(errs, fmt.Errorf("container.engine must be one of: %v", engines))
	}

	if c.Secrets.IdentityFile == "" {
		errs = append(errs, fmt.Errorf("secrets.identity_file is required"))
	}

	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			errs = append(errs, fmt.Errorf("metrics.listen: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
// The state directory, which holds the identity and both databases,
// is created mode 0700.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Cache,
		c.Paths.Public,
		c.Paths.AppData,
		filepath.Dir(c.Paths.Socket),
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	for _, path := range []string{c.Paths.State, filepath.Dir(c.Secrets.IdentityFile)} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
