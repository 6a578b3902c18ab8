package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAndRead(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ref, err := s.Save("../../evil/points.csv", strings.NewReader("1,2\n"), 1024)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(ref, "_points.csv") || strings.Contains(ref, "/") {
		t.Fatalf("unexpected ref %q", ref)
	}
	for _, r := range []string{ref, "/" + ref, "./" + ref} {
		data, err := s.Read(r)
		if err != nil {
			t.Fatalf("Read(%q): %v", r, err)
		}
		if string(data) != "1,2\n" {
			t.Fatalf("Read(%q) = %q", r, data)
		}
	}
}

func TestSave_TooLarge(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Save("big.csv", strings.NewReader("0123456789"), 5); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("want ErrTooLarge, got %v", err)
	}
	entries, _ := os.ReadDir(s.Root())
	if len(entries) != 0 {
		t.Fatalf("partial upload left behind: %v", entries)
	}
}

func TestResolve_StaysInsideRoot(t *testing.T) {
	parent := t.TempDir()
	secret := filepath.Join(parent, "secret.txt")
	if err := os.WriteFile(secret, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := New(filepath.Join(parent, "uploads"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, ref := range []string{"../secret.txt", "a/../../secret.txt", "/../secret.txt"} {
		path, err := s.Resolve(ref)
		if err == nil && !strings.HasPrefix(path, s.Root()+string(filepath.Separator)) {
			t.Fatalf("Resolve(%q) escaped to %q", ref, path)
		}
		if _, err := s.Read(ref); err == nil {
			t.Fatalf("Read(%q) should fail", ref)
		}
	}
	if _, err := s.Resolve(""); !errors.Is(err, ErrEmptyRef) {
		t.Fatalf("want ErrEmptyRef, got %v", err)
	}
	if _, err := s.Resolve("/"); !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("root itself is not a file reference, got %v", err)
	}
}

func TestResolve_SymlinkEscape(t *testing.T) {
	parent := t.TempDir()
	secret := filepath.Join(parent, "secret.txt")
	if err := os.WriteFile(secret, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := New(filepath.Join(parent, "uploads"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := os.Symlink(secret, filepath.Join(s.Root(), "link.csv")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := s.Resolve("link.csv"); !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("want ErrOutsideRoot, got %v", err)
	}
}
