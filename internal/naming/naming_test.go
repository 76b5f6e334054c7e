package naming

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

var namePattern = regexp.MustCompile(`^claude_[A-Za-z0-9_.-]{0,40}_\d{2}-\d{2}-\d{2}$`)

func TestContainerName_SpacesBecomeUnderscores(t *testing.T) {
	now := time.Date(2026, 8, 23, 14, 32, 5, 0, time.Local)
	got := ContainerName("/home/user/My Project", now)
	want := "claude_My_Project_14-32-05"
	if got != want {
		t.Errorf("ContainerName() = %q, want %q", got, want)
	}
}

func TestContainerName_DisallowedCharsStripped(t *testing.T) {
	now := time.Date(2026, 8, 23, 9, 1, 2, 0, time.Local)
	got := ContainerName("/home/user/project@123", now)
	want := "claude_project123_09-01-02"
	if got != want {
		t.Errorf("ContainerName() = %q, want %q", got, want)
	}
}

func TestContainerName_MatchesPattern(t *testing.T) {
	now := time.Date(2026, 8, 23, 0, 0, 0, 0, time.Local)
	paths := []string{
		"/home/user/My Project",
		"/tmp/project@123",
		"/srv/a b c!@#$%^&*()",
		"/опасный/путь",
		"/",
		".",
		"relative/dir name",
		"/x/" + strings.Repeat("y", 100),
		"/emoji/🚀 launch",
	}
	for _, p := range paths {
		got := ContainerName(p, now)
		if !namePattern.MatchString(got) {
			t.Errorf("ContainerName(%q) = %q, does not match %v", p, got, namePattern)
		}
	}
}

func TestContainerName_LabelTruncatedTo40(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.Local)
	long := strings.Repeat("a", 80)
	got := ContainerName("/projects/"+long, now)

	label := strings.TrimPrefix(got, "claude_")
	label = strings.TrimSuffix(label, "_12-00-00")
	if len(label) != 40 {
		t.Errorf("label length = %d, want 40 (label %q)", len(label), label)
	}
}

func TestContainerName_EmptyLabelDegrades(t *testing.T) {
	now := time.Date(2026, 8, 23, 7, 8, 9, 0, time.Local)
	// Every character stripped: label segment is empty but the name is
	// still well-formed.
	got := ContainerName("/home/user/日本語", now)
	want := "claude__07-08-09"
	if got != want {
		t.Errorf("ContainerName() = %q, want %q", got, want)
	}
	if !namePattern.MatchString(got) {
		t.Errorf("ContainerName() = %q, does not match %v", got, namePattern)
	}
}

func TestContainerName_DiffersAcrossSeconds(t *testing.T) {
	t1 := time.Date(2026, 8, 23, 10, 0, 0, 0, time.Local)
	t2 := t1.Add(time.Second)
	a := ContainerName("/home/user/proj", t1)
	b := ContainerName("/home/user/proj", t2)
	if a == b {
		t.Errorf("names for different seconds are equal: %q", a)
	}
}

func TestContainerName_SameSecondCollides(t *testing.T) {
	// Documented non-uniqueness: identical inputs within the same second
	// produce identical names.
	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.Local)
	a := ContainerName("/home/user/proj", now)
	b := ContainerName("/home/user/proj", now.Add(500*time.Millisecond))
	if a != b {
		t.Errorf("names within the same second differ: %q vs %q", a, b)
	}
}
