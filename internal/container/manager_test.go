package container

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunArgs(t *testing.T) {
	m := NewManager(Config{
		Name:       "claude_proj_10-00-00",
		ProjectDir: "/home/user/proj",
		StateDir:   "/home/user/.claudebox",
		Env:        []string{"CLAUDEBOX_DB_HOST=db.internal", "CLAUDEBOX_DB_PORT=1433"},
	}, testLogger())

	args := m.RunArgs()
	joined := strings.Join(args, " ")

	wantFragments := []string{
		"run -d",
		"--name claude_proj_10-00-00",
		"--cap-add NET_ADMIN",
		"-v /home/user/proj:/workspace",
		"-w /workspace",
		"-v /home/user/.claudebox:/claude-env",
		"-e HOME=/claude-env/home",
		"-e CLAUDEBOX_DB_HOST=db.internal",
		"-e CLAUDEBOX_DB_PORT=1433",
		"--entrypoint tail",
	}
	for _, frag := range wantFragments {
		if !strings.Contains(joined, frag) {
			t.Errorf("RunArgs() = %q, missing %q", joined, frag)
		}
	}

	// Image comes after --entrypoint so docker does not parse it as a flag,
	// and the keep-alive command trails it.
	if args[len(args)-3] != DefaultImage {
		t.Errorf("args[-3] = %q, want image %q", args[len(args)-3], DefaultImage)
	}
	if args[len(args)-2] != "-f" || args[len(args)-1] != "/dev/null" {
		t.Errorf("trailing args = %v, want [-f /dev/null]", args[len(args)-2:])
	}
}

func TestRunArgs_NoStateDir(t *testing.T) {
	m := NewManager(Config{
		Name:       "claude_proj_10-00-00",
		ProjectDir: "/home/user/proj",
	}, testLogger())

	joined := strings.Join(m.RunArgs(), " ")
	if strings.Contains(joined, "/claude-env") {
		t.Errorf("RunArgs() = %q, contains state mount without StateDir", joined)
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Image != DefaultImage {
		t.Errorf("Image = %q, want %q", cfg.Image, DefaultImage)
	}
	if cfg.CommandTimeout != DefaultCommandTimeout {
		t.Errorf("CommandTimeout = %v, want %v", cfg.CommandTimeout, DefaultCommandTimeout)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg:  Config{Image: "img", ProjectDir: "/p"},
		},
		{
			name:    "missing project dir",
			cfg:     Config{Image: "img"},
			wantErr: true,
		},
		{
			name:    "malformed env",
			cfg:     Config{Image: "img", ProjectDir: "/p", Env: []string{"NOEQUALS"}},
			wantErr: true,
		},
		{
			name:    "env empty key",
			cfg:     Config{Image: "img", ProjectDir: "/p", Env: []string{"=v"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
