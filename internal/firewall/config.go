// Package firewall assembles and applies the outbound-traffic whitelist for
// sandbox containers.
package firewall

import "fmt"

const (
	// DefaultTableName is the nftables table owning sandbox egress chains.
	DefaultTableName = "claudebox"

	// DefaultChainName is the output chain holding the whitelist rules.
	DefaultChainName = "egress"

	// DefaultDBPort is the SQL Server default port.
	DefaultDBPort = 1433
)

// DefaultAllowList is the static set of endpoints every sandbox may reach:
// the assistant API itself plus its telemetry and package registries used
// during a session.
var DefaultAllowList = []AllowEntry{
	{Host: "api.anthropic.com", Protocol: "tcp", Port: 443},
	{Host: "statsig.anthropic.com", Protocol: "tcp", Port: 443},
	{Host: "sentry.io", Protocol: "tcp", Port: 443},
	{Host: "registry.npmjs.org", Protocol: "tcp", Port: 443},
}

// AllowEntry is one static whitelist endpoint.
type AllowEntry struct {
	Host     string `yaml:"host"`
	Protocol string `yaml:"protocol"`
	Port     int    `yaml:"port"`
}

// Config holds the configuration for whitelist assembly and application.
type Config struct {
	// Enabled controls whether firewall setup runs at all.
	// Default: true (set by ApplyDefaults).
	Enabled bool `yaml:"enabled"`

	// TableName is the nftables table name. Default: "claudebox".
	TableName string `yaml:"table_name"`

	// ChainName is the output chain name. Default: "egress".
	ChainName string `yaml:"chain_name"`

	// Interface is the egress interface expected to carry sandbox traffic.
	// It is validated for existence before rules are applied. Default: "eth0".
	Interface string `yaml:"interface"`

	// Resolver is the DNS server ("host:port") used to resolve whitelist
	// hostnames. Empty means the servers from /etc/resolv.conf.
	Resolver string `yaml:"resolver"`

	// AllowList is the static whitelist. Default: DefaultAllowList.
	AllowList []AllowEntry `yaml:"allow_list"`

	// DBHost is the optional database host to whitelist.
	DBHost string `yaml:"db_host"`

	// DBPort is the database port. Default: 1433.
	DBPort int `yaml:"db_port"`

	// AllowWeb opens ports 80 and 443 to any destination.
	AllowWeb bool `yaml:"allow_web"`

	// FailClosed skips the database rule entirely when DBHost cannot be
	// resolved. The default (false) falls back to a port-wide accept to any
	// destination, preserving availability at the cost of a wider allow
	// surface.
	FailClosed bool `yaml:"fail_closed"`
}

// ApplyDefaults sets default values for zero-valued fields.
// On a zero-valued Config, Enabled defaults to true.
func (c *Config) ApplyDefaults() {
	if c.TableName == "" {
		c.Enabled = true
		c.TableName = DefaultTableName
	}
	if c.ChainName == "" {
		c.ChainName = DefaultChainName
	}
	if c.Interface == "" {
		c.Interface = "eth0"
	}
	if c.AllowList == nil {
		c.AllowList = DefaultAllowList
	}
	if c.DBPort == 0 {
		c.DBPort = DefaultDBPort
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TableName == "" {
		return fmt.Errorf("firewall: config: TableName must not be empty when enabled")
	}
	if c.ChainName == "" {
		return fmt.Errorf("firewall: config: ChainName must not be empty when enabled")
	}
	if c.DBPort < 1 || c.DBPort > 65535 {
		return fmt.Errorf("firewall: config: invalid DBPort %d", c.DBPort)
	}
	for i, e := range c.AllowList {
		if e.Host == "" {
			return fmt.Errorf("firewall: config: allow_list[%d]: host must not be empty", i)
		}
		if e.Protocol != "tcp" && e.Protocol != "udp" {
			return fmt.Errorf("firewall: config: allow_list[%d]: invalid protocol %q", i, e.Protocol)
		}
		if e.Port < 1 || e.Port > 65535 {
			return fmt.Errorf("firewall: config: allow_list[%d]: invalid port %d", i, e.Port)
		}
	}
	return nil
}
