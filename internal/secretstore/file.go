package secretstore

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

// File is a plain-file-backed secret store used when no OS keyring is
// available (headless environments, --mock runs, tests). Secrets are
// written with the atomic temp-file-then-rename pattern so a crash never
// leaves a partially written seed on disk.
type File struct {
	dir string
}

// NewFile returns a File-backed secret store rooted at dir. The directory
// is created on first Store if it does not exist.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

func (f *File) path(name string) string {
	return filepath.Join(f.dir, name+".secret")
}

// Load reads the named secret. found is false (nil error) if the file does
// not exist.
func (f *File) Load(name string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("secretstore: read %q: %w", name, err)
	}
	raw, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, false, fmt.Errorf("secretstore: decode %q: %w", name, err)
	}
	return raw, true, nil
}

// Store persists value under name using an atomic write.
func (f *File) Store(name string, value []byte) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("secretstore: mkdir: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(value)

	tmp, err := os.CreateTemp(f.dir, ".secret-*.tmp")
	if err != nil {
		return fmt.Errorf("secretstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.WriteString(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("secretstore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("secretstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path(name)); err != nil {
		return fmt.Errorf("secretstore: rename temp file: %w", err)
	}
	committed = true
	return nil
}

// Delete removes the named secret. A missing file is not an error.
func (f *File) Delete(name string) error {
	if err := os.Remove(f.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("secretstore: delete %q: %w", name, err)
	}
	return nil
}
