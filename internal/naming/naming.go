// Package naming generates container runtime identifiers for sandbox sessions.
package naming

import (
	"path/filepath"
	"strings"
	"time"
)

// Prefix is the fixed literal prepended to every generated container name.
const Prefix = "claude"

// maxLabelLength caps the sanitized project label so the full identifier
// stays within container runtime name limits.
const maxLabelLength = 40

// ContainerName derives a container runtime identifier from a project
// directory path and a timestamp. The final path segment becomes the label:
// spaces are replaced with underscores, characters outside [A-Za-z0-9_.-]
// are removed, and the result is truncated to 40 characters. The identifier
// is "claude_<label>_HH-MM-SS" in local time.
//
// Uniqueness is best-effort at second granularity: two calls within the
// same second produce the same name.
func ContainerName(path string, now time.Time) string {
	label := sanitizeLabel(filepath.Base(filepath.Clean(path)))
	return Prefix + "_" + label + "_" + now.Format("15-04-05")
}

// sanitizeLabel makes a project name safe for use in a container identifier.
// An input with no safe characters degrades to an empty label.
func sanitizeLabel(name string) string {
	name = strings.ReplaceAll(name, " ", "_")

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isSafe(r) {
			b.WriteRune(r)
		}
	}
	label := b.String()

	if len(label) > maxLabelLength {
		label = label[:maxLabelLength]
	}
	return label
}

func isSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.' || r == '-':
		return true
	}
	return false
}
