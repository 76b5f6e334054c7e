package session

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTranscript(t *testing.T, dir string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, "session.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var v map[string]any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			t.Fatalf("parse output line %q: %v", line, err)
		}
		out = append(out, v)
	}
	return out
}

func TestCompact_TruncatesToolResults(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("x", 500)
	lines := []string{
		`{"type":"user","message":{"content":"` + big + `"}}`,
		`{"message":{"content":[{"type":"tool_result","content":"` + big + `"}]}}`,
	}
	path := writeTranscript(t, dir, lines)

	c := NewCompactor(CompactOptions{MaxContentSize: 100}, testLogger())
	stats, err := c.Compact(path)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if stats.OriginalMessages != 2 || stats.Messages != 2 {
		t.Errorf("stats = %+v, want 2 messages in and out", stats)
	}

	out := readLines(t, path)

	// User content untouched.
	userContent := out[0]["message"].(map[string]any)["content"].(string)
	if len(userContent) != 500 {
		t.Errorf("user content length = %d, want 500 (never truncated)", len(userContent))
	}

	// Tool result truncated with marker.
	blocks := out[1]["message"].(map[string]any)["content"].([]any)
	toolContent := blocks[0].(map[string]any)["content"].(string)
	if !strings.Contains(toolContent, "[TRUNCATED 400 chars]") {
		t.Errorf("tool result = %q, missing truncation marker", toolContent)
	}
	if len(toolContent) >= 500 {
		t.Errorf("tool result length = %d, want shorter than original", len(toolContent))
	}
}

func TestCompact_TruncationKeepsValidUTF8(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("é", 300)
	lines := []string{
		`{"message":{"content":[{"type":"tool_result","content":"` + big + `"}]}}`,
	}
	path := writeTranscript(t, dir, lines)

	c := NewCompactor(CompactOptions{MaxContentSize: 103}, testLogger())
	if _, err := c.Compact(path); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}

	out := readLines(t, path)
	blocks := out[0]["message"].(map[string]any)["content"].([]any)
	toolContent := blocks[0].(map[string]any)["content"].(string)
	if !utf8.ValidString(toolContent) {
		t.Errorf("truncated tool result is not valid UTF-8: %q", toolContent)
	}
	// The limit and the reported count are in characters, not bytes.
	if !strings.Contains(toolContent, "[TRUNCATED 197 chars]") {
		t.Errorf("tool result = %q, want marker for 197 truncated chars", toolContent)
	}
	if got := strings.Count(toolContent, "é"); got != 102 {
		t.Errorf("kept %d é runes, want 102", got)
	}
}

func TestCompact_ThinkingBlocksUntouched(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("t", 500)
	lines := []string{
		`{"message":{"content":[{"type":"tool_result","content":[{"type":"thinking","signature":"sig","thinking":"` + big + `"}]}]}}`,
	}
	path := writeTranscript(t, dir, lines)

	c := NewCompactor(CompactOptions{MaxContentSize: 100}, testLogger())
	if _, err := c.Compact(path); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}

	out := readLines(t, path)
	blocks := out[0]["message"].(map[string]any)["content"].([]any)
	inner := blocks[0].(map[string]any)["content"].([]any)
	thinking := inner[0].(map[string]any)["thinking"].(string)
	if len(thinking) != 500 {
		t.Errorf("thinking length = %d, want 500 (signed blocks are never truncated)", len(thinking))
	}
}

func TestCompact_KeepLastPinsSnapshot(t *testing.T) {
	dir := t.TempDir()
	lines := []string{
		`{"type":"file-history-snapshot","id":"snap"}`,
		`{"type":"user","n":1}`,
		`{"type":"assistant","n":2}`,
		`{"type":"user","n":3}`,
		`{"type":"assistant","n":4}`,
	}
	path := writeTranscript(t, dir, lines)

	c := NewCompactor(CompactOptions{KeepLast: 2}, testLogger())
	stats, err := c.Compact(path)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if stats.Messages != 3 {
		t.Fatalf("stats.Messages = %d, want 3 (snapshot + last 2)", stats.Messages)
	}

	out := readLines(t, path)
	if out[0]["type"] != "file-history-snapshot" {
		t.Errorf("out[0].type = %v, want file-history-snapshot", out[0]["type"])
	}
	if out[1]["n"].(float64) != 3 || out[2]["n"].(float64) != 4 {
		t.Errorf("kept messages = %v, want last two", out[1:])
	}
}

func TestCompact_BackupWrittenOnce(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, []string{`{"type":"user","message":{"content":"hi"}}`})
	backup := filepath.Join(dir, "session.jsonl.bak")

	c := NewCompactor(CompactOptions{}, testLogger())
	if _, err := c.Compact(path); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	original, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("backup not written: %v", err)
	}

	// Second run must not overwrite the backup.
	if _, err := c.Compact(path); err != nil {
		t.Fatalf("Compact() second run error = %v", err)
	}
	again, err := os.ReadFile(backup)
	if err != nil {
		t.Fatal(err)
	}
	if string(original) != string(again) {
		t.Error("backup was overwritten by second compaction")
	}
}

func TestCompact_DryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, []string{`{"type":"user","message":{"content":"hi"}}`})
	before, _ := os.ReadFile(path)

	c := NewCompactor(CompactOptions{DryRun: true}, testLogger())
	stats, err := c.Compact(path)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if stats.OriginalMessages != 1 {
		t.Errorf("stats.OriginalMessages = %d, want 1", stats.OriginalMessages)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("dry run modified the input file")
	}
	if _, err := os.Stat(filepath.Join(dir, "session.jsonl.bak")); !os.IsNotExist(err) {
		t.Error("dry run created a backup file")
	}
}

func TestCompact_SeparateOutputLeavesInput(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, []string{`{"type":"user","message":{"content":"hi"}}`})
	out := filepath.Join(dir, "compacted.jsonl")

	c := NewCompactor(CompactOptions{Output: out}, testLogger())
	if _, err := c.Compact(path); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "session.jsonl.bak")); !os.IsNotExist(err) {
		t.Error("backup created despite separate output path")
	}
}
