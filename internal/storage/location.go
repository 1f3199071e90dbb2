// Package storage resolves archive URIs to byte-stream backends: the local
// filesystem, MinIO, Amazon S3 and an in-process memory store.
package storage

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
)

// URI schemes understood by the resolver.
const (
	SchemeFile   = "file"
	SchemeMemory = "mem"
	SchemeMinIO  = "minio"
	SchemeS3     = "s3"
)

// Location is a parsed archive URI.
type Location struct {
	Scheme string
	// Bucket is empty for the local filesystem.
	Bucket string
	// Key is the object key, or the filesystem path for SchemeFile.
	Key string
}

// ParseLocation parses raw. Bare paths and file:// URIs map to SchemeFile.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, apperrors.New(apperrors.ErrConfiguration, "parse location", "empty URI")
	}

	if !strings.Contains(raw, "://") {
		return Location{Scheme: SchemeFile, Key: filepath.Clean(raw) + trailingSlash(raw)}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, apperrors.Wrap(apperrors.ErrConfiguration, "parse location", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == SchemeFile {
		p := u.Path
		if u.Host != "" {
			p = u.Host + p
		}
		return Location{Scheme: SchemeFile, Key: filepath.Clean(p) + trailingSlash(p)}, nil
	}

	if u.Host == "" {
		return Location{}, apperrors.New(apperrors.ErrConfiguration, "parse location", "missing bucket in %q", raw)
	}

	return Location{
		Scheme: scheme,
		Bucket: u.Host,
		Key:    strings.TrimPrefix(u.Path, "/"),
	}, nil
}

func trailingSlash(p string) string {
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		return "/"
	}
	return ""
}

// String renders the location back to URI form.
func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return l.Key
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// IsDir reports whether the location names a prefix rather than an object.
func (l Location) IsDir() bool {
	return l.Key == "" || strings.HasSuffix(l.Key, "/")
}

// Join appends name to the location.
func (l Location) Join(name string) Location {
	out := l
	if l.Scheme == SchemeFile {
		out.Key = filepath.Join(l.Key, name)
		return out
	}
	if l.Key == "" {
		out.Key = name
		return out
	}
	out.Key = strings.TrimSuffix(l.Key, "/") + "/" + name
	return out
}

// Base returns the last element of the key.
func (l Location) Base() string {
	if l.Scheme == SchemeFile {
		return filepath.Base(l.Key)
	}
	return path.Base(l.Key)
}
