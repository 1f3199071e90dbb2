package storage

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
)

var errWriterClosed = errors.New("writer already closed")

// Memory is an in-process object store addressed as mem://bucket/key.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
	now     func() time.Time
}

type memObject struct {
	data     []byte
	modified time.Time
}

// NewMemory returns an empty memory store.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]memObject),
		now:     time.Now,
	}
}

func memKey(loc Location) string {
	return loc.Bucket + "/" + loc.Key
}

// Put stores data directly with the given modification time.
func (m *Memory) Put(loc Location, data []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(loc)] = memObject{data: bytes.Clone(data), modified: modified}
}

type memReader struct {
	*bytes.Reader
}

func (r memReader) Close() error { return nil }

// Open returns a reader over a snapshot of the object.
func (m *Memory) Open(_ context.Context, loc Location) (Reader, error) {
	m.mu.RLock()
	obj, ok := m.objects[memKey(loc)]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, "open", "%s", loc.String())
	}
	return memReader{Reader: bytes.NewReader(obj.data)}, nil
}

// Create returns a buffered writer committed on Close.
func (m *Memory) Create(_ context.Context, loc Location) (Writer, error) {
	if loc.IsDir() {
		return nil, apperrors.New(apperrors.ErrConfiguration, "create", "%q names a prefix", loc.String())
	}
	return &memWriter{store: m, loc: loc}, nil
}

type memWriter struct {
	store *Memory
	loc   Location
	buf   bytes.Buffer
	done  bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, errWriterClosed
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	w.store.Put(w.loc, w.buf.Bytes(), w.store.now())
	return nil
}

func (w *memWriter) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}

// List returns objects in the bucket whose key starts with prefix.Key.
func (m *Memory) List(_ context.Context, prefix Location) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ObjectInfo
	for k, obj := range m.objects {
		bucket, key, _ := strings.Cut(k, "/")
		if bucket != prefix.Bucket || !strings.HasPrefix(key, prefix.Key) {
			continue
		}
		out = append(out, ObjectInfo{
			Location:     Location{Scheme: prefix.Scheme, Bucket: bucket, Key: key},
			Size:         int64(len(obj.data)),
			LastModified: obj.modified,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location.Key < out[j].Location.Key })
	return out, nil
}
