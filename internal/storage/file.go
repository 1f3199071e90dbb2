package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
)

const dirPerm = 0o755

// File is the local filesystem backend.
type File struct{}

// NewFile returns the local filesystem backend.
func NewFile() *File {
	return &File{}
}

type fileReader struct {
	*os.File
	size int64
}

func (r *fileReader) Size() int64 { return r.size }

// Open opens a local file.
func (b *File) Open(_ context.Context, loc Location) (Reader, error) {
	f, err := os.Open(loc.Key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "open "+loc.String(), err)
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileReader{File: f, size: info.Size()}, nil
}

// Create writes to a temporary sibling that is renamed into place on Close.
func (b *File) Create(_ context.Context, loc Location) (Writer, error) {
	if loc.IsDir() {
		return nil, apperrors.New(apperrors.ErrConfiguration, "create", "%q names a directory", loc.Key)
	}
	dir := filepath.Dir(loc.Key)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(loc.Key)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &fileWriter{File: tmp, target: loc.Key}, nil
}

type fileWriter struct {
	*os.File
	target string
	done   bool
}

func (w *fileWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.File.Close(); err != nil {
		_ = os.Remove(w.File.Name())
		return err
	}
	if err := os.Rename(w.File.Name(), w.target); err != nil {
		_ = os.Remove(w.File.Name())
		return err
	}
	return nil
}

func (w *fileWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	_ = w.File.Close()
	return os.Remove(w.File.Name())
}

// List walks the directory containing prefix and returns matching files.
func (b *File) List(_ context.Context, prefix Location) ([]ObjectInfo, error) {
	root := prefix.Key
	if !prefix.IsDir() {
		root = filepath.Dir(prefix.Key)
	}

	var out []ObjectInfo
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || !strings.HasPrefix(p, prefix.Key) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ObjectInfo{
			Location:     Location{Scheme: SchemeFile, Key: p},
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Location.Key < out[j].Location.Key })
	return out, nil
}
