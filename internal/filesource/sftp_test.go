package filesource

import "testing"

func TestShellQuote(t *testing.T) {
	got := shellQuote("/data/add/ABCD's_file.zip")
	want := `'/data/add/ABCD'\''s_file.zip'`
	if got != want {
		t.Errorf("shellQuote() = %q, want %q", got, want)
	}
}

func TestOrDefault(t *testing.T) {
	if orDefault("", "phenodcc") != "phenodcc" {
		t.Error("empty value should fall back to default")
	}
	if orDefault("alice", "phenodcc") != "alice" {
		t.Error("non-empty value should be kept")
	}
}
