package permissions

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if !m.Allows("anything", nil) {
		t.Fatal("empty map should allow everything")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestAllows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.json")
	if err := os.WriteFile(path, []byte(`{"give-money": ["r1", "r2"]}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !m.Allows("give-money", []string{"r3", "r2"}) {
		t.Fatal("member with an allowed role was rejected")
	}
	if m.Allows("give-money", []string{"r3"}) {
		t.Fatal("member without an allowed role was accepted")
	}
	if m.Allows("give-money", nil) {
		t.Fatal("member without roles was accepted")
	}
	if !m.Allows("report", []string{"r3"}) {
		t.Fatal("unlisted command should be open to everyone")
	}
}
