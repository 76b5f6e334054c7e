package firewall

import "testing"

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if !cfg.Enabled {
		t.Error("Enabled = false, want true on zero-valued config")
	}
	if cfg.TableName != DefaultTableName {
		t.Errorf("TableName = %q, want %q", cfg.TableName, DefaultTableName)
	}
	if cfg.ChainName != DefaultChainName {
		t.Errorf("ChainName = %q, want %q", cfg.ChainName, DefaultChainName)
	}
	if cfg.DBPort != DefaultDBPort {
		t.Errorf("DBPort = %d, want %d", cfg.DBPort, DefaultDBPort)
	}
	if len(cfg.AllowList) == 0 {
		t.Error("AllowList is empty, want default whitelist")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(c *Config) {}},
		{name: "disabled skips checks", mutate: func(c *Config) {
			c.Enabled = false
			c.ChainName = ""
		}},
		{name: "empty chain", mutate: func(c *Config) { c.ChainName = "" }, wantErr: true},
		{name: "bad db port", mutate: func(c *Config) { c.DBPort = -1 }, wantErr: true},
		{name: "allow entry without host", mutate: func(c *Config) {
			c.AllowList = []AllowEntry{{Protocol: "tcp", Port: 443}}
		}, wantErr: true},
		{name: "allow entry bad protocol", mutate: func(c *Config) {
			c.AllowList = []AllowEntry{{Host: "x", Protocol: "icmp", Port: 443}}
		}, wantErr: true},
		{name: "allow entry bad port", mutate: func(c *Config) {
			c.AllowList = []AllowEntry{{Host: "x", Protocol: "tcp", Port: 0}}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
