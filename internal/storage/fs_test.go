package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/K9kd22r8/logseq/internal/apperr"
	"github.com/K9kd22r8/logseq/internal/checksum"
)

func tempGraph(t *testing.T, files map[string]string) *FS {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestRead(t *testing.T) {
	s := tempGraph(t, map[string]string{"pages/note.md": "- hello\n"})
	got, err := s.Read("pages/note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "- hello\n" {
		t.Errorf("content mismatch: got %q", got)
	}
	if _, err := s.Read("pages/missing.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	s := tempGraph(t, map[string]string{
		"pages/a.md":              "a",
		"journals/2023_06_29.md":  "b",
		"pages/c.markdown":        "c",
		"whiteboards/board.json":  "{}",
		"pages/data.json":         "{}",
		"readme.txt":              "not a page",
		".git/HEAD":               "ref",
		"logseq/.recycle/old.md":  "gone",
		"logseq/bak/pages/old.md": "backup",
	})

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var paths []string
	for _, it := range items {
		paths = append(paths, it.Path)
	}
	sort.Strings(paths)
	want := []string{"journals/2023_06_29.md", "logseq/bak/pages/old.md", "pages/a.md", "pages/c.markdown", "whiteboards/board.json"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
	for _, it := range items {
		if it.Path == "pages/a.md" && it.Checksum != checksum.Sum([]byte("a")) {
			t.Errorf("checksum = %q", it.Checksum)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempGraph(t, nil)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow"} {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "graph-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}
