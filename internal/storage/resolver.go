package storage

import (
	"context"
	"sync"

	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
)

// Resolver maps URI schemes to backends.
type Resolver struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBackend registers b for scheme.
func WithBackend(scheme string, b Backend) Option {
	return func(r *Resolver) {
		r.backends[scheme] = b
	}
}

// NewResolver returns a resolver with the local filesystem registered.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		backends: map[string]Backend{SchemeFile: NewFile()},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces the backend for scheme.
func (r *Resolver) Register(scheme string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[scheme] = b
}

// Resolve parses raw and selects its backend. An unknown scheme is a
// configuration error and no I/O happens.
func (r *Resolver) Resolve(raw string) (Backend, Location, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, Location{}, err
	}

	r.mu.RLock()
	b, ok := r.backends[loc.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, Location{}, apperrors.New(apperrors.ErrConfiguration, "resolve", "unsupported URI scheme %q in %q", loc.Scheme, raw)
	}
	return b, loc, nil
}

// Open resolves raw and opens it for reading.
func (r *Resolver) Open(ctx context.Context, raw string) (Reader, error) {
	b, loc, err := r.Resolve(raw)
	if err != nil {
		return nil, err
	}
	return b.Open(ctx, loc)
}

// Create resolves raw and opens it for writing.
func (r *Resolver) Create(ctx context.Context, raw string) (Writer, error) {
	b, loc, err := r.Resolve(raw)
	if err != nil {
		return nil, err
	}
	return b.Create(ctx, loc)
}

// List resolves raw and lists objects under it.
func (r *Resolver) List(ctx context.Context, raw string) ([]ObjectInfo, error) {
	b, loc, err := r.Resolve(raw)
	if err != nil {
		return nil, err
	}
	return b.List(ctx, loc)
}

// ReadFile opens raw and reads it whole.
func (r *Resolver) ReadFile(ctx context.Context, raw string) ([]byte, error) {
	rd, err := r.Open(ctx, raw)
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	return ReadAll(rd)
}

// WriteFile writes data to raw, committing on success.
func (r *Resolver) WriteFile(ctx context.Context, raw string, data []byte) error {
	w, err := r.Create(ctx, raw)
	if err != nil {
		return err
	}
	if _, err = w.Write(data); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}
