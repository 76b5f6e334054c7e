// Package sandbox holds the top-level configuration for claudebox sessions.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/claudebox/claudebox/internal/container"
	"github.com/claudebox/claudebox/internal/dbutil"
	"github.com/claudebox/claudebox/internal/firewall"
	"github.com/claudebox/claudebox/internal/session"
)

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// Config is the top-level configuration for claudebox. It aggregates all
// subsystem configurations and is populated from a YAML file via ParseConfig
// with environment variable overrides applied on top.
type Config struct {
	// LogLevel is the log level: "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// ProjectDir is the database project directory mounted into the
	// sandbox. Default: current directory.
	ProjectDir string `yaml:"project_dir"`

	Container container.Config `yaml:"container"`
	Firewall  firewall.Config  `yaml:"firewall"`
	Session   session.Config   `yaml:"session"`
	DB        dbutil.Config    `yaml:"db"`
}

// ApplyDefaults sets default values for zero-valued fields and propagates
// shared settings into the subsystem configs: the project directory into the
// container config and the database endpoint into the firewall whitelist.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.ProjectDir == "" {
		c.ProjectDir = "."
	}
	c.Container.ApplyDefaults()
	c.Firewall.ApplyDefaults()
	c.Session.ApplyDefaults()
	c.DB.ApplyDefaults()

	if c.Container.ProjectDir == "" {
		c.Container.ProjectDir = c.ProjectDir
	}
	if c.Firewall.DBHost == "" && c.DB.Server != "" {
		c.Firewall.DBHost = c.DB.Server
		c.Firewall.DBPort = c.DB.Port
	}
}

// Validate checks that required fields are set and values are acceptable.
// The database config is only validated when a server is configured, since
// most commands do not touch the database.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("sandbox: config: invalid log level %q", c.LogLevel)
	}
	if err := c.Container.Validate(); err != nil {
		return err
	}
	if err := c.Firewall.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if c.DB.Server != "" {
		if c.DB.Port < 1 || c.DB.Port > 65535 {
			return fmt.Errorf("sandbox: config: invalid db port %d", c.DB.Port)
		}
	}
	return nil
}

// ParseConfig reads a YAML configuration file, layers environment overrides
// on top, applies defaults, and validates. A missing file is not an error:
// claudebox runs fine on defaults plus environment.
func ParseConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("sandbox: config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults + environment only.
	default:
		return nil, fmt.Errorf("sandbox: config: read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv layers CLAUDEBOX_* environment variables over the file values.
func (c *Config) applyEnv() error {
	if v := os.Getenv("CLAUDEBOX_PROJECT_DIR"); v != "" {
		c.ProjectDir = v
	}
	if v := os.Getenv("CLAUDEBOX_DB_HOST"); v != "" {
		c.DB.Server = v
	}
	if v := os.Getenv("CLAUDEBOX_DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("sandbox: config: CLAUDEBOX_DB_PORT=%q: %w", v, err)
		}
		c.DB.Port = port
	}
	if v := os.Getenv("CLAUDEBOX_DB_NAME"); v != "" {
		c.DB.Database = v
	}
	if v := os.Getenv("CLAUDEBOX_DB_USER"); v != "" {
		c.DB.User = v
	}
	if v := os.Getenv("CLAUDEBOX_DB_PASSWORD"); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv("CLAUDEBOX_ALLOW_WEB"); v != "" {
		allow, err := ParseOnOff(v)
		if err != nil {
			return fmt.Errorf("sandbox: config: CLAUDEBOX_ALLOW_WEB: %w", err)
		}
		c.Firewall.AllowWeb = allow
	}
	return nil
}

// ParseOnOff parses a boolean-like flag value: on/true/yes/1 and
// off/false/no/0 in any case.
func ParseOnOff(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid on/off value %q", v)
}
