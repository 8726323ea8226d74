package nlp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Files inside a model pack
const (
	ModelPackCDBFile   = "cdb.dat"
	ModelPackVocabFile = "vocab.dat"
	metaCATDirPrefix   = "meta_"
)

// ModelPack is an unpacked model pack
type ModelPack struct {
	Dir      string
	CDB      *CDB
	Vocab    *Vocab
	MetaCATs []*MetaCAT
	// MetaCATDirs maps each MetaCAT name to its unpacked directory
	MetaCATDirs map[string]string
}

// CAT assembles the pack components
func (mp *ModelPack) CAT() *CAT {
	return NewCAT(mp.CDB, mp.Vocab, mp.MetaCATs)
}

// UnpackDir is the directory a model pack zip is extracted into
func UnpackDir(zipPath string) string {
	return strings.TrimSuffix(zipPath, filepath.Ext(zipPath))
}

// LoadModelPack extracts zipPath next to itself, unless already extracted,
// and loads every component.
func LoadModelPack(zipPath string) (*ModelPack, error) {
	dir := UnpackDir(zipPath)
	if _, err := os.Stat(filepath.Join(dir, ModelPackCDBFile)); os.IsNotExist(err) {
		if err := Unzip(zipPath, dir); err != nil {
			return nil, err
		}
	}
	return LoadModelPackDir(dir)
}

// LoadModelPackDir loads an already extracted model pack
func LoadModelPackDir(dir string) (*ModelPack, error) {
	cdb, err := LoadCDB(filepath.Join(dir, ModelPackCDBFile))
	if err != nil {
		return nil, err
	}
	vocab, err := LoadVocab(filepath.Join(dir, ModelPackVocabFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	mp := &ModelPack{Dir: dir, CDB: cdb, Vocab: vocab, MetaCATDirs: map[string]string{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list model pack %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), metaCATDirPrefix) {
			continue
		}
		metaDir := filepath.Join(dir, e.Name())
		m, err := LoadMetaCAT(metaDir)
		if err != nil {
			return nil, err
		}
		mp.MetaCATs = append(mp.MetaCATs, m)
		mp.MetaCATDirs[m.Name] = metaDir
	}
	sort.Slice(mp.MetaCATs, func(i, j int) bool { return mp.MetaCATs[i].Name < mp.MetaCATs[j].Name })
	return mp, nil
}

// WriteModelPack builds a model pack zip at path
func WriteModelPack(path string, cdb *CDB, vocab *Vocab, metaCATs []*MetaCAT) error {
	staging, err := os.MkdirTemp("", "modelpack-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := cdb.Save(filepath.Join(staging, ModelPackCDBFile)); err != nil {
		return err
	}
	if vocab != nil {
		if err := vocab.Save(filepath.Join(staging, ModelPackVocabFile)); err != nil {
			return err
		}
	}
	for _, m := range metaCATs {
		if err := m.Save(filepath.Join(staging, metaCATDirPrefix+m.Name)); err != nil {
			return err
		}
	}
	return Zip(staging, path)
}

// Zip writes every regular file under dir into a zip at path
func Zip(dir, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	err = filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to zip %s: %w", dir, err)
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return out.Close()
}

// Unzip extracts a zip into dir, rejecting entries escaping it
func Unzip(zipPath, dir string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open model pack %s: %w", zipPath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target := filepath.Join(dir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return fmt.Errorf("model pack entry %q escapes %s", f.Name, dir)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
