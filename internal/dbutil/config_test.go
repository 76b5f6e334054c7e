package dbutil

import (
	"strings"
	"testing"
)

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if !cfg.TrustCert {
		t.Error("TrustCert = false, want true on zero-valued config")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Server: "db.internal", Port: 1433, Database: "app", User: "sa"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing server", func(c *Config) { c.Server = "" }},
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"missing database", func(c *Config) { c.Database = "" }},
		{"missing user", func(c *Config) { c.User = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() error = nil, want error")
			}
		})
	}
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{
		Server:    "db.internal",
		Port:      1433,
		Database:  "app",
		User:      "sa",
		Password:  "p@ss:word",
		TrustCert: true,
	}
	dsn := cfg.DSN()

	for _, frag := range []string{
		"sqlserver://",
		"db.internal:1433",
		"database=app",
		"TrustServerCertificate=true",
	} {
		if !strings.Contains(dsn, frag) {
			t.Errorf("DSN() = %q, missing %q", dsn, frag)
		}
	}
	if strings.Contains(dsn, "p@ss:word") {
		t.Errorf("DSN() = %q, password not escaped", dsn)
	}
}

func TestValidIdent(t *testing.T) {
	if err := validIdent("stage_2024"); err != nil {
		t.Errorf("validIdent() error = %v, want nil", err)
	}
	for _, bad := range []string{"", "x]y", "[x"} {
		if err := validIdent(bad); err == nil {
			t.Errorf("validIdent(%q) error = nil, want error", bad)
		}
	}
}
