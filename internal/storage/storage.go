// Package storage keeps uploaded tabular files under a single root and
// resolves client-supplied references back to them without leaving it.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrOutsideRoot = errors.New("reference escapes storage root")
	ErrEmptyRef    = errors.New("empty file reference")
	ErrTooLarge    = errors.New("upload exceeds size limit")
)

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	// compare against the real path so symlinked roots still work
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return &Store{root: abs}, nil
}

func (s *Store) Root() string { return s.root }

// Save stores r as "<uuid>_<base name>" and returns that reference.
func (s *Store) Save(name string, r io.Reader, limit int64) (string, error) {
	ref := fmt.Sprintf("%s_%s", uuid.New().String(), sanitize(name))
	path := filepath.Join(s.root, ref)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return ref, nil
}

func sanitize(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		if r == '/' || r == 0 || r < ' ' {
			return '_'
		}
		return r
	}, base)
	if base == "." || base == ".." || base == "" {
		return "upload"
	}
	return base
}

// Resolve maps a reference to an absolute path inside the root. A leading
// "/" is treated as the root itself.
func (s *Store) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrEmptyRef
	}
	clean := filepath.Clean("/" + filepath.ToSlash(ref))
	path := filepath.Join(s.root, filepath.FromSlash(clean))
	if !within(s.root, path) {
		return "", ErrOutsideRoot
	}
	if real, err := filepath.EvalSymlinks(path); err == nil && !within(s.root, real) {
		return "", ErrOutsideRoot
	}
	return path, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Read returns the bytes behind ref.
func (s *Store) Read(ref string) ([]byte, error) {
	path, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
