package deployment

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// bundleWriter writes a gzipped tarball entry by entry
type bundleWriter struct {
	gz  *gzip.Writer
	tw  *tar.Writer
	now time.Time
}

func newBundleWriter(w io.Writer) *bundleWriter {
	gz := gzip.NewWriter(w)
	return &bundleWriter{gz: gz, tw: tar.NewWriter(gz), now: time.Now()}
}

func (b *bundleWriter) writeBytes(name string, data []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  b.now,
		Typeflag: tar.TypeReg,
	}
	if err := b.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", name, err)
	}
	if _, err := b.tw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func (b *bundleWriter) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return b.writeBytes(name, data)
}

// writeFile copies a file from disk into the archive
func (b *bundleWriter) writeFile(name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Typeflag: tar.TypeReg,
	}
	if err := b.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", name, err)
	}
	if _, err := io.Copy(b.tw, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func (b *bundleWriter) Close() error {
	if err := b.tw.Close(); err != nil {
		return err
	}
	return b.gz.Close()
}

// archivePath names a file inside the files/ tree of an archive
func archivePath(kind string, id uint, ref string) string {
	return path.Join(filesDir, kind, fmt.Sprintf("%d_%s", id, path.Base(filepath.ToSlash(ref))))
}

// checkEntryName rejects entries that would land outside the extraction
// directory.
func checkEntryName(name string) (string, error) {
	if name == "" || path.IsAbs(name) || filepath.IsAbs(name) || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("invalid archive entry %q: absolute path", name)
	}
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid archive entry %q: parent directory reference", name)
		}
	}
	return path.Clean(filepath.ToSlash(name)), nil
}

// extract unpacks a gzipped tarball into dir, returning the names of the
// regular files it wrote.
func extract(r io.Reader, dir string) ([]string, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("deployment archive is not gzip compressed: %w", err)
	}
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return names, fmt.Errorf("failed to read deployment archive: %w", err)
		}
		name, err := checkEntryName(hdr.Name)
		if err != nil {
			return names, err
		}
		target := filepath.Join(dir, filepath.FromSlash(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return names, err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return names, err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return names, err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return names, err
			}
			if err := f.Close(); err != nil {
				return names, err
			}
			names = append(names, name)
		default:
			return names, fmt.Errorf("invalid archive entry %q: unsupported type %c", hdr.Name, hdr.Typeflag)
		}
	}
}
