package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Learning Go  ", "Learning Go"},
		{"Go: The Complete Guide", "Go_ The Complete Guide"},
		{"TCP/IP Illustrated", "TCPIP Illustrated"},
		{`What? A "Book"`, "What_ A _Book_"},
		{"Node.js Basics", "Node.js Basics"},
	}

	for _, tt := range tests {
		result := CleanName(tt.input)
		if result != tt.expected {
			t.Errorf("CleanName(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestMoveNoClobber(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Foo.pdf")
	if err := os.WriteFile(src, []byte("new"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dst := filepath.Join(dir, "sub", "Foo.pdf")
	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	used, err := MoveNoClobber(src, dst)
	if err != nil {
		t.Fatalf("MoveNoClobber: %v", err)
	}
	if want := filepath.Join(dir, "sub", "Foo_1.pdf"); used != want {
		t.Errorf("expected %s, got %s", want, used)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "old" {
		t.Errorf("existing file was overwritten: %q", data)
	}
	if FileExists(src) {
		t.Error("source still exists after move")
	}
}

func TestMoveNoClobberFree(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Bar [code].zip")
	if err := os.WriteFile(src, []byte("zip"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dst := filepath.Join(dir, "Bar [code] copy.zip")
	used, err := MoveNoClobber(src, dst)
	if err != nil {
		t.Fatalf("MoveNoClobber: %v", err)
	}
	if used != dst {
		t.Errorf("expected %s, got %s", dst, used)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	if FileExists(dir) {
		t.Error("directory reported as file")
	}
	if FileExists(filepath.Join(dir, "missing")) {
		t.Error("missing file reported as existing")
	}
}
