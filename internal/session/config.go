// Package session persists and compacts assistant conversation transcripts.
package session

import "fmt"

const (
	// DefaultDirName is the directory inside the project that receives
	// persisted transcripts.
	DefaultDirName = "sessions"

	// DefaultCommitMessage is used for the conditional git commit.
	DefaultCommitMessage = "Save assistant session transcripts"

	// DefaultMaxContentSize is the compaction threshold for tool result
	// strings, in bytes.
	DefaultMaxContentSize = 1000
)

// Config holds transcript persistence settings.
type Config struct {
	// StateDir is the assistant state root on the host (the directory that
	// holds projects/<slug>/*.jsonl). Empty means $HOME/.claude, resolved
	// by the Store.
	StateDir string `yaml:"state_dir"`

	// DirName is the in-project directory receiving copies.
	// Default: "sessions".
	DirName string `yaml:"dir_name"`

	// Commit controls the conditional git commit after copying.
	// Default: true (set by ApplyDefaults).
	Commit bool `yaml:"commit"`

	// CommitMessage is the git commit message.
	CommitMessage string `yaml:"commit_message"`
}

// ApplyDefaults sets default values for zero-valued fields.
// On a zero-valued Config, Commit defaults to true.
func (c *Config) ApplyDefaults() {
	if c.DirName == "" {
		c.Commit = true
		c.DirName = DefaultDirName
	}
	if c.CommitMessage == "" {
		c.CommitMessage = DefaultCommitMessage
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	if c.DirName == "" {
		return fmt.Errorf("session: config: DirName must not be empty")
	}
	return nil
}
