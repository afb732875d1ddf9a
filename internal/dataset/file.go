// Package dataset persists Pair sequences as JSON arrays.
//
// The same format serves the master dataset and the transient recovery log.
// A zero-length file is a valid, empty dataset.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pbaille/synergy/internal/domain"
)

// ErrNotExist is returned by Load when the file was never created.
var ErrNotExist = fs.ErrNotExist

// MalformedError reports a file whose content is not a Pair array.
type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed dataset %s: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is a *MalformedError.
func IsMalformed(err error) bool {
	var m *MalformedError
	return errors.As(err, &m)
}

// File is a dataset stored at Path.
type File struct {
	Path string
}

// Open returns a File for path. Nothing is read or created.
func Open(path string) *File {
	return &File{Path: path}
}

// Exists reports whether the file is present, empty or not.
func (f *File) Exists() (bool, error) {
	_, err := os.Stat(f.Path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", f.Path, err)
}

// Load reads all pairs. Empty content yields an empty slice.
func (f *File) Load() ([]domain.Pair, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	return Decode(f.Path, data)
}

// Decode parses a dataset body; path is only used in errors.
func Decode(path string, data []byte) ([]domain.Pair, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []domain.Pair{}, nil
	}
	var pairs []domain.Pair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, &MalformedError{Path: path, Err: err}
	}
	if pairs == nil {
		pairs = []domain.Pair{}
	}
	return pairs, nil
}

// Save replaces the file content with pairs.
// The write goes through a temp file and a rename so a crash never leaves
// a half-written dataset behind.
func (f *File) Save(pairs []domain.Pair) error {
	if pairs == nil {
		pairs = []domain.Pair{}
	}
	data, err := json.MarshalIndent(pairs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.Path, err)
	}
	return writeAtomic(f.Path, data)
}

// Truncate empties the file, creating it when absent.
func (f *File) Truncate() error {
	return writeAtomic(f.Path, nil)
}

// Touch creates an empty file if none exists. Existing content is kept.
func (f *File) Touch() error {
	file, err := os.OpenFile(f.Path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("touch %s: %w", f.Path, err)
	}
	return file.Close()
}

// MoveAside renames the file to Path + "." + suffix and returns the new path.
// A later Load, Save or Touch on f starts from a fresh file.
func (f *File) MoveAside(suffix string) (string, error) {
	dest := f.Path + "." + suffix
	if err := os.Rename(f.Path, dest); err != nil {
		return "", fmt.Errorf("move %s aside: %w", f.Path, err)
	}
	return dest, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
