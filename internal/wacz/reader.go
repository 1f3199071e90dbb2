package wacz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/jonesrussell/north-cloud/webarchive/internal/cdxj"
	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
	"github.com/jonesrussell/north-cloud/webarchive/internal/warc"
)

// ReadOptions configures how containers are opened.
type ReadOptions struct {
	Logger logger.Logger
	// OnSkippedLine is called for each index line that fails to parse.
	OnSkippedLine func(uri string, line int, err error)
}

func (o *ReadOptions) setDefaults() {
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
}

// member is a records file inside the container.
type member struct {
	file       *zip.File
	dataOffset int64
	size       int64
	stored     bool
}

// Archive is an opened container. It keeps one handle on the container
// for its lifetime; Resolve uses positioned reads and is safe for
// concurrent use.
type Archive struct {
	uri      string
	source   int
	handle   storage.Reader
	manifest *Manifest
	members  map[string]*member
	index    *Index
	opts     ReadOptions
}

// Open loads the manifest and index of the container at uri.
func Open(ctx context.Context, resolver *storage.Resolver, uri string, opts ReadOptions) (*Archive, error) {
	return open(ctx, resolver, uri, 0, opts)
}

func open(ctx context.Context, resolver *storage.Resolver, uri string, source int, opts ReadOptions) (*Archive, error) {
	opts.setDefaults()

	handle, err := resolver.Open(ctx, uri)
	if err != nil {
		return nil, err
	}

	a, err := load(handle, uri, source, opts)
	if err != nil {
		_ = handle.Close()
		return nil, err
	}

	opts.Logger.Info("Opened container",
		logger.URI(uri),
		logger.Int("source", source),
		logger.Int("entries", a.index.Len()),
		logger.Int("members", len(a.members)))
	return a, nil
}

func load(handle storage.Reader, uri string, source int, opts ReadOptions) (*Archive, error) {
	zr, err := zip.NewReader(handle, handle.Size())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrFormat, "open "+uri, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	mf, ok := files[ManifestPath]
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, "open "+uri, "no %s in container", ManifestPath)
	}
	raw, err := readMember(mf)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrFormat, "read manifest of "+uri, err)
	}
	var m Manifest
	if err = json.Unmarshal(raw, &m); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrFormat, "parse manifest of "+uri, err)
	}
	if err = m.checkVersion(); err != nil {
		return nil, err
	}

	a := &Archive{
		uri:      uri,
		source:   source,
		handle:   handle,
		manifest: &m,
		members:  make(map[string]*member),
		opts:     opts,
	}

	for name, f := range files {
		if !strings.HasPrefix(name, ArchiveDir) || strings.HasSuffix(name, "/") {
			continue
		}
		off, offErr := f.DataOffset()
		if offErr != nil {
			return nil, apperrors.Wrap(apperrors.ErrFormat, "locate "+name, offErr)
		}
		a.members[strings.TrimPrefix(name, ArchiveDir)] = &member{
			file:       f,
			dataOffset: off,
			size:       int64(f.UncompressedSize64),
			stored:     f.Method == zip.Store,
		}
	}

	paths := m.indexPaths(func(p string) bool { _, ok := files[p]; return ok })
	if len(paths) == 0 {
		return nil, apperrors.New(apperrors.ErrFormat, "open "+uri, "container has no index")
	}

	var entries []*cdxj.Entry
	for _, p := range paths {
		loaded, loadErr := a.loadIndex(files[p])
		if loadErr != nil {
			return nil, loadErr
		}
		entries = append(entries, loaded...)
	}
	a.index = NewIndex(entries)
	return a, nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (a *Archive) loadIndex(f *zip.File) ([]*cdxj.Entry, error) {
	raw, err := readMember(f)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrFormat, "read "+f.Name, err)
	}
	var r io.Reader = bytes.NewReader(raw)
	if strings.HasSuffix(f.Name, ".gz") {
		zr, zerr := gzip.NewReader(r)
		if zerr != nil {
			return nil, apperrors.Wrap(apperrors.ErrFormat, "gunzip "+f.Name, zerr)
		}
		defer zr.Close()
		r = zr
	}

	entries, bad, err := cdxj.Read(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrFormat, "read "+f.Name, err)
	}
	for _, le := range bad {
		a.opts.Logger.Warn("Skipping malformed index line",
			logger.URI(a.uri),
			logger.String("member", f.Name),
			logger.Int("line", le.Line),
			logger.Error(le.Err))
		if a.opts.OnSkippedLine != nil {
			a.opts.OnSkippedLine(a.uri, le.Line, le.Err)
		}
	}
	for _, e := range entries {
		e.Source = a.source
	}
	return entries, nil
}

// URI returns the container location.
func (a *Archive) URI() string { return a.uri }

// Manifest returns the parsed datapackage.json.
func (a *Archive) Manifest() *Manifest { return a.manifest }

// Index returns the container's index.
func (a *Archive) Index() *Index { return a.index }

// Resolve returns exactly the bytes loc addresses.
func (a *Archive) Resolve(_ context.Context, loc cdxj.Locator) ([]byte, error) {
	m, ok := a.members[loc.Filename]
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, "resolve", "no records file %q in %s", loc.Filename, a.uri)
	}
	if loc.Offset < 0 || loc.Length <= 0 || loc.End() > m.size {
		return nil, apperrors.New(apperrors.ErrRange, "resolve", "%s outside member of %d bytes", loc, m.size)
	}

	buf := make([]byte, loc.Length)
	if m.stored {
		n, err := a.handle.ReadAt(buf, m.dataOffset+loc.Offset)
		if n < len(buf) {
			if err == nil || errors.Is(err, io.EOF) {
				return nil, apperrors.New(apperrors.ErrRange, "resolve", "%s past end of container", loc)
			}
			return nil, fmt.Errorf("read %s: %w", loc, err)
		}
		return buf, nil
	}

	rc, err := m.file.Open()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrFormat, "open "+loc.Filename, err)
	}
	defer rc.Close()
	if _, err = io.CopyN(io.Discard, rc, loc.Offset); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRange, "resolve", err)
	}
	if _, err = io.ReadFull(rc, buf); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRange, "resolve", err)
	}
	return buf, nil
}

// Record resolves and decodes the record at loc.
func (a *Archive) Record(ctx context.Context, loc cdxj.Locator) (*warc.Decoded, error) {
	raw, err := a.Resolve(ctx, loc)
	if err != nil {
		return nil, err
	}
	decoded, err := warc.Decode(raw)
	if err != nil {
		return nil, apperrors.WrapWithContextf(err, "decode %s", loc)
	}
	if decoded.DigestMismatch {
		a.opts.Logger.Warn("Record block digest mismatch",
			logger.URI(a.uri),
			logger.Locator(loc),
			logger.String("record_id", decoded.Record.ID()))
	}
	return decoded, nil
}

// Response resolves e and returns its archived HTTP response.
func (a *Archive) Response(ctx context.Context, e *cdxj.Entry) (*domain.Response, error) {
	decoded, err := a.Record(ctx, e.Locator)
	if err != nil {
		return nil, err
	}
	rec := decoded.Record
	if rec.Type() != warc.TypeResponse {
		return nil, apperrors.New(apperrors.ErrFormat, "response", "record at %s is %q, not a response", e.Locator, rec.Type())
	}
	msg, err := warc.ParseResponse(rec.Block)
	if err != nil {
		return nil, err
	}
	return &domain.Response{
		URL:        rec.TargetURI(),
		Protocol:   msg.Protocol,
		StatusCode: msg.StatusCode,
		Reason:     msg.Reason,
		Headers:    msg.Headers,
		Body:       msg.Body,
		CapturedAt: rec.Date(),
	}, nil
}

// Close releases the container handle.
func (a *Archive) Close() error {
	return a.handle.Close()
}
