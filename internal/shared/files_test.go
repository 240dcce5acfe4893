package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Run("creates directories and file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a", "b", "state.json")

		if err := WriteFileAtomic(path, []byte(`{"v":1}`), 0o644); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read file: %v", err)
		}
		if string(data) != `{"v":1}` {
			t.Errorf("unexpected content %q", data)
		}
	})

	t.Run("replaces existing file without leftovers", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "state.json")

		if err := WriteFileAtomic(path, []byte("old"), 0o644); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := WriteFileAtomic(path, []byte("new"), 0o644); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, _ := os.ReadFile(path)
		if string(data) != "new" {
			t.Errorf("expected new content, got %q", data)
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("failed to read dir: %v", err)
		}
		if len(entries) != 1 {
			t.Errorf("expected only the target file, got %d entries", len(entries))
		}
	})
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if !FileExists(path) {
		t.Error("expected file to exist")
	}
	if FileExists(dir) {
		t.Error("directory should not count as a file")
	}
	if FileExists(filepath.Join(dir, "missing")) {
		t.Error("missing file should not exist")
	}
}
