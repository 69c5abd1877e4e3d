package spaceref

import "testing"

func TestParseSelector(t *testing.T) {
	tests := []struct {
		text     string
		wantKind SelectorKind
	}{
		{"dev", SelectorDev},
		{"HEAD", SelectorHead},
		{"git:abc1234", SelectorGitPin},
		{"^1.0.0", SelectorSemver},
		{"~1.0.0", SelectorSemver},
		{"1.2.3", SelectorSemver},
		{"1.2.3-rc.1", SelectorSemver},
		{"stable", SelectorDistTag},
		{"latest", SelectorDistTag},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			sel, err := ParseSelector(tt.text)
			if err != nil {
				t.Fatalf("ParseSelector(%q) error: %v", tt.text, err)
			}
			if sel.Kind != tt.wantKind {
				t.Errorf("ParseSelector(%q).Kind = %v, want %v", tt.text, sel.Kind, tt.wantKind)
			}
		})
	}
}

func TestParseSelectorInvalid(t *testing.T) {
	invalid := []string{"git:xyz", "git:abc", "^not-a-version", ""}
	for _, text := range invalid {
		if _, err := ParseSelector(text); err == nil {
			t.Errorf("ParseSelector(%q) expected error, got nil", text)
		}
	}
}

func TestParsePlainRef(t *testing.T) {
	ref, err := Parse("space:base@^1.0.0")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ref.Kind != RefPlain {
		t.Errorf("Kind = %v, want RefPlain", ref.Kind)
	}
	if ref.ID != "base" {
		t.Errorf("ID = %q, want base", ref.ID)
	}
	if ref.Selector.Kind != SelectorSemver || !ref.Selector.IsRange {
		t.Errorf("unexpected selector %+v", ref.Selector)
	}
}

func TestParseDefaultsToDev(t *testing.T) {
	ref, err := Parse("space:base")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ref.Selector.Kind != SelectorDev || !ref.Selector.DefaultedToDev {
		t.Errorf("expected defaulted dev selector, got %+v", ref.Selector)
	}
}

func TestParseProjectRef(t *testing.T) {
	ref, err := Parse("space:project:tools@dev")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ref.Kind != RefProject {
		t.Errorf("Kind = %v, want RefProject", ref.Kind)
	}
	if ref.ID != "tools" {
		t.Errorf("ID = %q, want tools", ref.ID)
	}
}

func TestParsePathRef(t *testing.T) {
	ref, err := Parse("space:path:./local/My Tool@dev")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ref.Kind != RefPath {
		t.Errorf("Kind = %v, want RefPath", ref.Kind)
	}
	if ref.Path != "./local/My Tool" {
		t.Errorf("Path = %q", ref.Path)
	}
	if ref.ID != "my-tool" {
		t.Errorf("synthetic ID = %q, want my-tool", ref.ID)
	}
}

func TestParsePathRefRequiresSelector(t *testing.T) {
	if _, err := Parse("space:path:./local/tool"); err == nil {
		t.Fatal("expected error for path ref missing selector")
	}
}

func TestParseInvalidID(t *testing.T) {
	invalid := []string{"space:UPPER", "space:has_underscore", "space:", "space:-leading-dash"}
	for _, ref := range invalid {
		if _, err := Parse(ref); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", ref)
		}
	}
}

// TestFormatRoundTrip exercises P1: format(parse(s)) == s when s contains
// an explicit selector.
func TestFormatRoundTrip(t *testing.T) {
	refs := []string{
		"space:base@^1.0.0",
		"space:base@dev",
		"space:base@HEAD",
		"space:base@git:abc1234",
		"space:project:tools@stable",
		"space:path:./local/tool@dev",
	}
	for _, s := range refs {
		ref, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", s, err)
		}
		if got := ref.Format(); got != s {
			t.Errorf("Format() = %q, want %q", got, s)
		}
	}
}
