package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestProjectSlug(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/home/user/proj", "-home-user-proj"},
		{"/home/user/My Project", "-home-user-My-Project"},
		{"/srv/app.v2", "-srv-app-v2"},
		{"/x/a_b", "-x-a-b"},
	}
	for _, tt := range tests {
		if got := ProjectSlug(tt.path); got != tt.want {
			t.Errorf("ProjectSlug(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestStore_TranscriptDir(t *testing.T) {
	cfg := Config{StateDir: "/state"}
	s := NewStore(cfg, "/home/user/proj", testLogger())

	got, err := s.TranscriptDir()
	if err != nil {
		t.Fatalf("TranscriptDir() error = %v", err)
	}
	want := filepath.Join("/state", "projects", "-home-user-proj")
	if got != want {
		t.Errorf("TranscriptDir() = %q, want %q", got, want)
	}
}

func TestStore_PersistCopiesTranscripts(t *testing.T) {
	stateDir := t.TempDir()
	projectDir := t.TempDir()

	abs, err := filepath.Abs(projectDir)
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(stateDir, "projects", ProjectSlug(abs))
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.jsonl", "b.jsonl"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte(`{"type":"user"}`+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Non-transcript files are ignored.
	if err := os.WriteFile(filepath.Join(src, "a.jsonl.bak"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Commit disabled: the temp dir is not a git repository and the test
	// only covers the copy step.
	cfg := Config{StateDir: stateDir, DirName: "sessions", Commit: false, CommitMessage: "x"}
	s := NewStore(cfg, projectDir, testLogger())

	copied, err := s.Persist(context.Background())
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if copied != 2 {
		t.Errorf("Persist() copied = %d, want 2", copied)
	}
	for _, name := range []string{"a.jsonl", "b.jsonl"} {
		if _, err := os.Stat(filepath.Join(projectDir, "sessions", name)); err != nil {
			t.Errorf("persisted file %s missing: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(projectDir, "sessions", "a.jsonl.bak")); !os.IsNotExist(err) {
		t.Error("backup file was copied, want transcripts only")
	}
}

func TestStore_PersistNoTranscripts(t *testing.T) {
	cfg := Config{StateDir: t.TempDir()}
	s := NewStore(cfg, t.TempDir(), testLogger())

	copied, err := s.Persist(context.Background())
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if copied != 0 {
		t.Errorf("Persist() copied = %d, want 0", copied)
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if !cfg.Commit {
		t.Error("Commit = false, want true on zero-valued config")
	}
	if cfg.DirName != DefaultDirName {
		t.Errorf("DirName = %q, want %q", cfg.DirName, DefaultDirName)
	}
	if cfg.CommitMessage != DefaultCommitMessage {
		t.Errorf("CommitMessage = %q, want %q", cfg.CommitMessage, DefaultCommitMessage)
	}
}
