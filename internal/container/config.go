// Package container builds and runs the docker invocation for sandbox
// sessions.
package container

import (
	"fmt"
	"time"
)

const (
	// DefaultImage is the sandbox image tag.
	DefaultImage = "claudebox:latest"

	// DefaultCommandTimeout bounds non-interactive docker commands.
	DefaultCommandTimeout = 30 * time.Second

	// DefaultWorkdir is where the project is mounted inside the container.
	DefaultWorkdir = "/workspace"
)

// Config holds the container runtime invocation parameters for one session.
type Config struct {
	// Image is the docker image tag. Default: "claudebox:latest".
	Image string `yaml:"image"`

	// Name is the container name, generated per session (not configured).
	Name string `yaml:"-"`

	// ProjectDir is the host project directory bind-mounted at /workspace.
	ProjectDir string `yaml:"project_dir"`

	// StateDir is the host directory holding assistant state (credentials,
	// transcripts), mounted at /claude-env. Empty disables the mount.
	StateDir string `yaml:"state_dir"`

	// Env is extra environment passed into the container (KEY=VALUE).
	Env []string `yaml:"env"`

	// CommandTimeout bounds non-interactive docker commands.
	// Default: 30s.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("container: config: Image must not be empty")
	}
	if c.ProjectDir == "" {
		return fmt.Errorf("container: config: ProjectDir must not be empty")
	}
	for _, e := range c.Env {
		if !validEnvEntry(e) {
			return fmt.Errorf("container: config: invalid env entry %q (want KEY=VALUE)", e)
		}
	}
	return nil
}

func validEnvEntry(e string) bool {
	for i := 0; i < len(e); i++ {
		if e[i] == '=' {
			return i > 0
		}
	}
	return false
}
