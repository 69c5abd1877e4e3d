package lockfile

import (
	"strings"
	"testing"
)

func TestMarshalDeterministicAndTrailingNewline(t *testing.T) {
	l := New("https://example.com/registry.git", "main", "2026-07-31T00:00:00Z")
	l.Spaces["base@abc1234"] = SpaceEntry{ID: "base", Commit: "abc1234", Path: "spaces/base", Integrity: "sha256:" + strings.Repeat("a", 64), Plugin: PluginRef{Name: "base"}}

	data1, err := Marshal(l)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	data2, err := Marshal(l)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data1) != string(data2) {
		t.Error("Marshal is not deterministic across calls")
	}
	if !strings.HasSuffix(string(data1), "\n") {
		t.Error("expected trailing newline")
	}
	if !strings.Contains(string(data1), "\n  \"") {
		t.Error("expected 2-space indent")
	}
}

func TestParseRejectsBadVersions(t *testing.T) {
	l := New("https://example.com/registry.git", "main", "now")
	data, _ := Marshal(l)

	if _, err := Parse(data); err != nil {
		t.Fatalf("valid lock failed to parse: %v", err)
	}

	bad := strings.Replace(string(data), `"lockfileVersion": 1`, `"lockfileVersion": 2`, 1)
	if _, err := Parse([]byte(bad)); err == nil {
		t.Error("expected error for wrong lockfileVersion")
	}
}

func TestParseRejectsBadRegistryType(t *testing.T) {
	l := New("https://example.com/registry.git", "main", "now")
	l.Registry.Type = "svn"
	data, _ := Marshal(l)
	if _, err := Parse(data); err == nil {
		t.Error("expected error for non-git registry type")
	}
}

func TestParseRejectsInvalidCommitAndIntegrity(t *testing.T) {
	l := New("https://example.com/registry.git", "main", "now")
	l.Spaces["x@bad"] = SpaceEntry{ID: "x", Commit: "not-hex!", Path: "spaces/x", Integrity: "sha256:" + strings.Repeat("a", 64)}
	data, _ := Marshal(l)
	if _, err := Parse(data); err == nil {
		t.Error("expected error for invalid commit")
	}

	l2 := New("https://example.com/registry.git", "main", "now")
	l2.Spaces["x@abc1234"] = SpaceEntry{ID: "x", Commit: "abc1234", Path: "spaces/x", Integrity: "not-an-integrity"}
	data2, _ := Marshal(l2)
	if _, err := Parse(data2); err == nil {
		t.Error("expected error for invalid integrity")
	}
}

func TestEnvHashDeterministic(t *testing.T) {
	spaces := map[string]SpaceEntry{
		"base@abc": {Integrity: "sha256:" + strings.Repeat("a", 64)},
		"app@def":  {Integrity: "sha256:" + strings.Repeat("b", 64)},
	}
	order := []string{"base@abc", "app@def"}

	h1 := EnvHash(order, spaces)
	h2 := EnvHash(order, spaces)
	if h1 != h2 {
		t.Error("EnvHash is not deterministic")
	}

	reordered := []string{"app@def", "base@abc"}
	h3 := EnvHash(reordered, spaces)
	if h1 == h3 {
		t.Error("EnvHash should depend on load order")
	}
}

func TestHarnessEnvHashDiffersByHarness(t *testing.T) {
	spaces := map[string]SpaceEntry{
		"base@abc": {Integrity: "sha256:" + strings.Repeat("a", 64)},
	}
	order := []string{"base@abc"}

	h1 := HarnessEnvHash(order, spaces, "claude", "1.0.0")
	h2 := HarnessEnvHash(order, spaces, "codex", "1.0.0")
	if h1 == h2 {
		t.Error("HarnessEnvHash should differ by harness id")
	}
}

func TestFindCompatiblePin(t *testing.T) {
	l := New("https://example.com/registry.git", "main", "now")
	l.Spaces["base@abc1234"] = SpaceEntry{ID: "base", Commit: "abc1234"}

	commit, ok := l.FindCompatiblePin("base")
	if !ok || commit != "abc1234" {
		t.Errorf("FindCompatiblePin = (%q, %v), want (abc1234, true)", commit, ok)
	}

	if _, ok := l.FindCompatiblePin("missing"); ok {
		t.Error("expected no pin for unknown id")
	}
}
