package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/claudebox/claudebox/internal/fsutil"
)

// CompactOptions control transcript compaction.
type CompactOptions struct {
	// MaxContentSize is the threshold above which tool result strings are
	// truncated. Default: 1000.
	MaxContentSize int

	// KeepLast, when positive, drops all but the last N messages. A leading
	// file-history-snapshot line is always preserved.
	KeepLast int

	// DryRun computes statistics without writing anything.
	DryRun bool

	// Output is the destination path. Empty means rewrite the input in
	// place, after moving the original to a .bak file once.
	Output string
}

// CompactStats summarizes a compaction run.
type CompactStats struct {
	OriginalMessages int
	Messages         int
	OriginalBytes    int64
	Bytes            int64
}

// Compactor shrinks transcript files by truncating large tool results while
// preserving conversation flow. Thinking blocks carry cryptographic
// signatures and are never modified; user messages and assistant text are
// left intact.
type Compactor struct {
	opts   CompactOptions
	logger *slog.Logger
}

// NewCompactor creates a Compactor.
func NewCompactor(opts CompactOptions, logger *slog.Logger) *Compactor {
	if opts.MaxContentSize <= 0 {
		opts.MaxContentSize = DefaultMaxContentSize
	}
	return &Compactor{
		opts:   opts,
		logger: logger.With("component", "session"),
	}
}

// Compact reads a .jsonl transcript, truncates oversized tool result
// content, optionally keeps only the trailing messages, and writes the
// result atomically.
func (c *Compactor) Compact(inputPath string) (CompactStats, error) {
	var stats CompactStats

	info, err := os.Stat(inputPath)
	if err != nil {
		return stats, fmt.Errorf("session: compact: %w", err)
	}
	stats.OriginalBytes = info.Size()

	lines, err := readJSONLines(inputPath)
	if err != nil {
		return stats, err
	}
	stats.OriginalMessages = len(lines)

	if c.opts.KeepLast > 0 && len(lines) > c.opts.KeepLast {
		lines = keepLast(lines, c.opts.KeepLast)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range lines {
		lines[i] = truncateContent(lines[i], c.opts.MaxContentSize, false)
		if err := enc.Encode(lines[i]); err != nil {
			return stats, fmt.Errorf("session: compact: encode line: %w", err)
		}
	}
	stats.Messages = len(lines)
	stats.Bytes = int64(buf.Len())

	c.logger.Info("transcript compacted",
		"original_messages", stats.OriginalMessages,
		"messages", stats.Messages,
		"original_bytes", stats.OriginalBytes,
		"bytes", stats.Bytes,
	)

	if c.opts.DryRun {
		return stats, nil
	}

	outputPath := c.opts.Output
	if outputPath == "" || outputPath == inputPath {
		outputPath = inputPath
		// Move the original aside once so a compaction can be undone.
		backupPath := strings.TrimSuffix(inputPath, ".jsonl") + ".jsonl.bak"
		if _, err := os.Stat(backupPath); os.IsNotExist(err) {
			if err := os.Rename(inputPath, backupPath); err != nil {
				return stats, fmt.Errorf("session: compact: backup: %w", err)
			}
			c.logger.Info("backup written", "path", backupPath)
		}
	}

	if err := fsutil.WriteFileAtomic(outputPath, buf.Bytes(), 0o644); err != nil {
		return stats, fmt.Errorf("session: compact: write %s: %w", outputPath, err)
	}
	return stats, nil
}

// readJSONLines parses a .jsonl file, skipping blank lines.
func readJSONLines(path string) ([]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("session: compact: %w", err)
	}
	defer f.Close()

	var lines []any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 64<<20)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, fmt.Errorf("session: compact: parse %s: %w", path, err)
		}
		lines = append(lines, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("session: compact: read %s: %w", path, err)
	}
	return lines, nil
}

// keepLast keeps the trailing n messages. The first line is pinned when it
// is a file-history-snapshot, since later messages reference it.
func keepLast(lines []any, n int) []any {
	var snapshot any
	if first, ok := lines[0].(map[string]any); ok && first["type"] == "file-history-snapshot" {
		snapshot = lines[0]
	}
	kept := lines[len(lines)-n:]
	if snapshot != nil {
		return append([]any{snapshot}, kept...)
	}
	return kept
}

// truncateContent recursively truncates large strings in nested structures.
// Only strings inside tool_result blocks are shortened; thinking blocks
// (identified by their signature field) are returned untouched.
func truncateContent(v any, maxSize int, inToolResult bool) any {
	switch val := v.(type) {
	case string:
		if !inToolResult || len(val) <= maxSize {
			return val
		}
		// maxSize counts characters, not bytes, and the cut points must not
		// split a multibyte rune.
		runes := []rune(val)
		if len(runes) <= maxSize {
			return val
		}
		half := maxSize / 2
		return fmt.Sprintf("%s\n\n... [TRUNCATED %d chars] ...\n\n%s",
			string(runes[:half]), len(runes)-maxSize, string(runes[len(runes)-half:]))
	case map[string]any:
		if val["type"] == "thinking" {
			if _, ok := val["signature"]; ok {
				return val
			}
		}
		isToolResult := val["type"] == "tool_result"
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = truncateContent(item, maxSize, inToolResult || isToolResult)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = truncateContent(item, maxSize, inToolResult)
		}
		return out
	default:
		return v
	}
}
