// Package dbutil provides SQL Server helpers for database project sandboxes:
// connection checks, schema management, and CSV import/export used by
// integration workflows.
package dbutil

import (
	"fmt"
	"net/url"
	"strconv"
)

// DefaultPort is the SQL Server default port.
const DefaultPort = 1433

// Config holds database connection settings.
type Config struct {
	// Server is the database host.
	Server string `yaml:"server"`

	// Port is the database port. Default: 1433.
	Port int `yaml:"port"`

	// Database is the database name.
	Database string `yaml:"database"`

	// User is the login name.
	User string `yaml:"user"`

	// Password is the login password. Usually supplied via environment or
	// interactive prompt rather than the config file.
	Password string `yaml:"password"`

	// TrustCert skips server certificate verification.
	// Default: true (set by ApplyDefaults) — sandbox databases typically
	// run with self-signed certificates.
	TrustCert bool `yaml:"trust_cert"`
}

// ApplyDefaults sets default values for zero-valued fields.
// On a zero-valued Config, TrustCert defaults to true.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.TrustCert = true
		c.Port = DefaultPort
	}
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("dbutil: config: Server must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("dbutil: config: invalid port %d", c.Port)
	}
	if c.Database == "" {
		return fmt.Errorf("dbutil: config: Database must not be empty")
	}
	if c.User == "" {
		return fmt.Errorf("dbutil: config: User must not be empty")
	}
	return nil
}

// DSN renders the connection string for the sqlserver driver.
func (c *Config) DSN() string {
	q := url.Values{}
	q.Set("database", c.Database)
	if c.TrustCert {
		q.Set("TrustServerCertificate", "true")
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Server + ":" + strconv.Itoa(c.Port),
		RawQuery: q.Encode(),
	}
	return u.String()
}
