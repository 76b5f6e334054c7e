package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Runtime abstracts the container runtime for testability.
type Runtime interface {
	// BuildImage builds the sandbox image from the given build context.
	BuildImage(ctx context.Context, contextDir string) error
	// Run creates and starts the session container in the background.
	Run(ctx context.Context) error
	// IsRunning reports whether the session container is currently running.
	IsRunning(ctx context.Context) bool
	// Session runs an interactive shell inside the container as a child
	// process and waits for it to exit.
	Session(ctx context.Context) error
	// Attach replaces the current process with an interactive shell inside
	// the container. It does not return on success.
	Attach() error
	// Remove force-removes the session container.
	Remove(ctx context.Context) error
}

// Manager implements Runtime using the docker CLI. All sandbox isolation
// (NET_ADMIN for the in-container firewall, mounts, env plumbing) is
// expressed as docker run arguments built by RunArgs.
type Manager struct {
	cfg    Config
	logger *slog.Logger
}

// NewManager creates a Manager for one session.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		cfg:    cfg,
		logger: logger.With("component", "container"),
	}
}

// RunArgs builds the argument list for "docker run". The container gets
// NET_ADMIN so the firewall init inside it can install the egress whitelist,
// and HOME points at the state mount so assistant credentials and
// transcripts persist across sessions.
func (m *Manager) RunArgs() []string {
	args := []string{
		"run", "-d",
		"--name", m.cfg.Name,
		"--cap-add", "NET_ADMIN",
		"-v", m.cfg.ProjectDir + ":" + DefaultWorkdir,
		"-w", DefaultWorkdir,
	}
	if m.cfg.StateDir != "" {
		args = append(args,
			"-v", m.cfg.StateDir+":/claude-env",
			"-e", "HOME=/claude-env/home",
		)
	}
	for _, e := range m.cfg.Env {
		args = append(args, "-e", e)
	}
	// Keep the container alive until the session attaches.
	args = append(args, "--entrypoint", "tail", m.cfg.Image, "-f", "/dev/null")
	return args
}

// BuildImage builds the sandbox image from contextDir. Build output goes to
// stderr so an interactive caller sees progress.
func (m *Manager) BuildImage(ctx context.Context, contextDir string) error {
	if err := m.checkDaemon(ctx); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "docker", "build", "-t", m.cfg.Image, contextDir)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("container: build image %s: %w", m.cfg.Image, err)
	}
	m.logger.Info("image built", "image", m.cfg.Image)
	return nil
}

// Run creates and starts the session container. An existing stopped
// container with the same name is removed first; an already-running one is
// left alone.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.cfg.Validate(); err != nil {
		return err
	}
	if err := m.checkDaemon(ctx); err != nil {
		return err
	}
	if !m.imageExists(ctx) {
		return fmt.Errorf("container: image %q not found, build it with: claudebox run --build", m.cfg.Image)
	}

	if m.exists(ctx) {
		if m.IsRunning(ctx) {
			m.logger.Info("container already running", "name", m.cfg.Name)
			return nil
		}
		if err := m.Remove(ctx); err != nil {
			return fmt.Errorf("container: remove stale container: %w", err)
		}
	}

	cmd := exec.CommandContext(ctx, "docker", m.RunArgs()...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("container: start %s: %w", m.cfg.Name, err)
	}

	m.logger.Info("container started", "name", m.cfg.Name, "image", m.cfg.Image)
	return nil
}

// IsRunning reports whether the session container is running.
func (m *Manager) IsRunning(ctx context.Context) bool {
	out, err := m.output(ctx, "inspect", "-f", "{{.State.Running}}", m.cfg.Name)
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == "true"
}

// Session runs an interactive shell in the container as a child process and
// waits for it to exit, so the caller can run post-session steps such as
// transcript persistence.
func (m *Manager) Session(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "exec", "-it", m.cfg.Name, "/bin/bash")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("container: session in %s: %w", m.cfg.Name, err)
	}
	return nil
}

// Attach replaces the current process with an interactive shell in the
// container. It does not return on success.
func (m *Manager) Attach() error {
	dockerPath, err := exec.LookPath("docker")
	if err != nil {
		return fmt.Errorf("container: docker not found in PATH: %w", err)
	}
	argv := []string{"docker", "exec", "-it", m.cfg.Name, "/bin/bash"}
	return execReplace(dockerPath, argv, os.Environ())
}

// Remove force-removes the session container.
func (m *Manager) Remove(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "rm", "-f", m.cfg.Name)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("container: rm %s: %s: %w", m.cfg.Name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// checkDaemon verifies the docker daemon is reachable.
func (m *Manager) checkDaemon(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CommandTimeout)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		return fmt.Errorf("container: docker daemon not reachable: %w", err)
	}
	return nil
}

// imageExists checks whether the configured image exists locally.
func (m *Manager) imageExists(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CommandTimeout)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "image", "inspect", m.cfg.Image).Run() == nil
}

// exists checks whether a container with the session name exists, running
// or stopped.
func (m *Manager) exists(ctx context.Context) bool {
	out, err := m.output(ctx, "ps", "-a", "-q", "-f", "name=^"+m.cfg.Name+"$")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) != ""
}

func (m *Manager) output(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CommandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "docker", args...).Output()
	return string(out), err
}
