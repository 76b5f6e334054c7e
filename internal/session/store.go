package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Store copies session transcripts from the assistant state directory into
// the project tree and commits them when the project is a git repository.
type Store struct {
	cfg        Config
	projectDir string
	logger     *slog.Logger
}

// NewStore creates a Store for the given project directory.
func NewStore(cfg Config, projectDir string, logger *slog.Logger) *Store {
	cfg.ApplyDefaults()
	return &Store{
		cfg:        cfg,
		projectDir: projectDir,
		logger:     logger.With("component", "session"),
	}
}

// TranscriptDir returns the host directory holding this project's transcript
// files.
func (s *Store) TranscriptDir() (string, error) {
	stateDir := s.cfg.StateDir
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("session: resolve home directory: %w", err)
		}
		stateDir = filepath.Join(home, ".claude")
	}
	abs, err := filepath.Abs(s.projectDir)
	if err != nil {
		return "", fmt.Errorf("session: resolve project dir: %w", err)
	}
	return filepath.Join(stateDir, "projects", ProjectSlug(abs)), nil
}

// Persist copies every transcript file into <project>/<DirName> and, when
// enabled, commits the copies. It returns the number of files copied.
// A missing transcript directory means no sessions were recorded and is not
// an error.
func (s *Store) Persist(ctx context.Context) (int, error) {
	src, err := s.TranscriptDir()
	if err != nil {
		return 0, err
	}

	entries, err := filepath.Glob(filepath.Join(src, "*.jsonl"))
	if err != nil {
		return 0, fmt.Errorf("session: list transcripts: %w", err)
	}
	if len(entries) == 0 {
		s.logger.Info("no transcripts to persist", "dir", src)
		return 0, nil
	}

	dst := filepath.Join(s.projectDir, s.cfg.DirName)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return 0, fmt.Errorf("session: create %s: %w", dst, err)
	}

	copied := 0
	for _, path := range entries {
		data, err := os.ReadFile(path)
		if err != nil {
			return copied, fmt.Errorf("session: read %s: %w", path, err)
		}
		target := filepath.Join(dst, filepath.Base(path))
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return copied, fmt.Errorf("session: write %s: %w", target, err)
		}
		copied++
	}
	s.logger.Info("transcripts persisted", "count", copied, "dir", dst)

	if s.cfg.Commit {
		if err := s.commit(ctx); err != nil {
			return copied, err
		}
	}
	return copied, nil
}

// commit stages and commits the transcript directory. A project that is not
// a git repository, or a clean tree, is skipped silently.
func (s *Store) commit(ctx context.Context) error {
	if err := s.git(ctx, "rev-parse", "--is-inside-work-tree"); err != nil {
		s.logger.Info("project is not a git repository, skipping commit")
		return nil
	}

	if err := s.git(ctx, "add", "--", s.cfg.DirName); err != nil {
		return fmt.Errorf("session: git add: %w", err)
	}

	out, err := s.gitOutput(ctx, "status", "--porcelain", "--", s.cfg.DirName)
	if err != nil {
		return fmt.Errorf("session: git status: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		s.logger.Info("transcripts unchanged, skipping commit")
		return nil
	}

	if err := s.git(ctx, "commit", "-m", s.cfg.CommitMessage, "--", s.cfg.DirName); err != nil {
		return fmt.Errorf("session: git commit: %w", err)
	}
	s.logger.Info("transcripts committed")
	return nil
}

func (s *Store) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", s.projectDir}, args...)...)
	return cmd.Run()
}

func (s *Store) gitOutput(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", s.projectDir}, args...)...)
	out, err := cmd.Output()
	return string(out), err
}

// ProjectSlug converts an absolute project path into the directory name the
// assistant uses under its state root: every character outside
// [A-Za-z0-9-] becomes a dash.
func ProjectSlug(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	for _, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
