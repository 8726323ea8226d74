// Package media locates uploaded and generated files under MEDIA_ROOT.
package media

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Root is the directory every uploaded or generated file lives under
type Root string

// Path resolves a stored file reference. Absolute references are returned
// unchanged, relative ones are taken relative to the root.
func (r Root) Path(ref string) string {
	if ref == "" || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(string(r), ref)
}

// Join returns a path under the root
func (r Root) Join(elem ...string) string {
	return filepath.Join(append([]string{string(r)}, elem...)...)
}

// Create opens a new file under the root, creating parent directories
func (r Root) Create(name string) (*os.File, string, error) {
	path := r.Join(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create media directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create media file %s: %w", name, err)
	}
	return f, path, nil
}

// WriteFile writes data to a file under the root, returning its path
func (r Root) WriteFile(name string, data []byte) (string, error) {
	f, path, err := r.Create(name)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// Remove deletes a stored file reference, ignoring files already gone
func (r Root) Remove(ref string) error {
	if ref == "" {
		return nil
	}
	if err := os.RemoveAll(r.Path(ref)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SafeName replaces path separators and dots so a display name can be
// used as a file name.
func SafeName(name string) string {
	return strings.NewReplacer("/", "_", ".", "_", `\`, "_").Replace(name)
}

// Save copies an upload into dir under the root and returns its relative
// reference. A random prefix keeps uploads with the same name apart.
func (r Root) Save(dir, fileName string, src io.Reader) (string, error) {
	base := filepath.Base(fileName)
	ext := filepath.Ext(base)
	ref := path.Join(dir, uuid.NewString()[:8]+"_"+SafeName(strings.TrimSuffix(base, ext))+ext)
	f, _, err := r.Create(ref)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		_ = r.Remove(ref)
		return "", fmt.Errorf("failed to store %s: %w", fileName, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return ref, nil
}
