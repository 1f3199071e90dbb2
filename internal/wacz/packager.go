package wacz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"hash"
	"io"
	"path"
	"time"

	"github.com/klauspost/compress/zip"

	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
	"github.com/jonesrussell/north-cloud/webarchive/internal/warc"
)

// PackOptions configures a Packager.
type PackOptions struct {
	Collection  string
	Title       string
	Description string
	Software    string
	// Start is the session start time used to fill destination
	// placeholders and the manifest creation date.
	Start  time.Time
	Clock  func() time.Time
	Logger logger.Logger
}

// Confirmation describes an uploaded container.
type Confirmation struct {
	URI      string
	Bytes    int64
	Hash     string
	Manifest *Manifest
}

// Packager bundles records and index files into a container.
type Packager struct {
	resolver *storage.Resolver
	opts     PackOptions
}

// NewPackager creates a Packager.
func NewPackager(resolver *storage.Resolver, opts PackOptions) *Packager {
	if opts.Collection == "" {
		opts.Collection = DefaultName
	}
	if opts.Software == "" {
		opts.Software = DefaultSoftware
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Start.IsZero() {
		opts.Start = opts.Clock()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Packager{resolver: resolver, opts: opts}
}

// Destination expands a templated destination and appends the default
// container name when it names a directory. It performs no I/O.
func (p *Packager) Destination(destination string) (string, error) {
	expanded, err := storage.ExpandTemplate(destination, storage.TemplateVars{
		Time:       p.opts.Start,
		Collection: p.opts.Collection,
	})
	if err != nil {
		return "", err
	}
	_, loc, err := p.resolver.Resolve(expanded)
	if err != nil {
		return "", err
	}
	if loc.IsDir() {
		loc = loc.Join(p.opts.Collection + "-" + p.opts.Start.UTC().Format(storage.TimestampLayout) + ".wacz")
	}
	return loc.String(), nil
}

// hashingWriter counts and hashes everything written through it.
type hashingWriter struct {
	w    io.Writer
	h    hash.Hash
	size int64
}

func newHashingWriter(w io.Writer) *hashingWriter {
	return &hashingWriter{w: w, h: sha256.New()}
}

func (hw *hashingWriter) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	hw.h.Write(p[:n])
	hw.size += int64(n)
	return n, err
}

func (hw *hashingWriter) sum() string {
	return "sha256:" + hex.EncodeToString(hw.h.Sum(nil))
}

// Pack writes a container holding recordsFiles and indexFiles to
// destination. The destination is validated before anything is read or
// uploaded; on failure nothing is committed.
func (p *Packager) Pack(ctx context.Context, recordsFiles, indexFiles []string, destination string) (*Confirmation, error) {
	if len(recordsFiles) == 0 {
		return nil, apperrors.New(apperrors.ErrConfiguration, "pack", "no records files")
	}
	dest, err := p.Destination(destination)
	if err != nil {
		return nil, err
	}

	sink, err := p.resolver.Create(ctx, dest)
	if err != nil {
		return nil, err
	}

	conf, err := p.write(ctx, sink, recordsFiles, indexFiles)
	if err != nil {
		_ = sink.Abort()
		return nil, err
	}
	if err = sink.Close(); err != nil {
		return nil, apperrors.WrapWithContextf(err, "commit container %s", dest)
	}
	conf.URI = dest

	p.opts.Logger.Info("Container uploaded",
		logger.URI(dest),
		logger.Int64("bytes", conf.Bytes),
		logger.Int("resources", len(conf.Manifest.Resources)))
	return conf, nil
}

func (p *Packager) write(ctx context.Context, sink io.Writer, recordsFiles, indexFiles []string) (*Confirmation, error) {
	out := newHashingWriter(sink)
	zw := zip.NewWriter(out)

	m := &Manifest{
		Profile:     ProfileName,
		Title:       p.opts.Title,
		Description: p.opts.Description,
		Created:     formatManifestDate(p.opts.Start),
		Modified:    formatManifestDate(p.opts.Clock()),
		WACZVersion: WACZVersion,
		Software:    p.opts.Software,
	}
	if m.Title == "" {
		m.Title = p.opts.Collection
	}

	for _, uri := range recordsFiles {
		res, err := p.addMember(ctx, zw, uri, ArchiveDir+path.Base(uri), zip.Store)
		if err != nil {
			return nil, err
		}
		m.Resources = append(m.Resources, res)
		if m.MainPageURL == "" {
			m.MainPageURL, m.MainPageDate = p.mainPage(ctx, uri)
		}
	}
	for i, uri := range indexFiles {
		name := DefaultIndexPath
		if len(indexFiles) > 1 {
			name = IndexDir + path.Base(uri)
			if i == 0 {
				name = DefaultIndexPath
			}
		}
		res, err := p.addMember(ctx, zw, uri, name, zip.Deflate)
		if err != nil {
			return nil, err
		}
		m.Resources = append(m.Resources, res)
	}

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if err = p.writeBytes(zw, ManifestPath, manifest); err != nil {
		return nil, err
	}
	manifestSum := sha256.Sum256(manifest)
	digest, err := json.MarshalIndent(manifestDigest{
		Path: ManifestPath,
		Hash: "sha256:" + hex.EncodeToString(manifestSum[:]),
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	if err = p.writeBytes(zw, DigestPath, digest); err != nil {
		return nil, err
	}

	if err = zw.Close(); err != nil {
		return nil, err
	}
	return &Confirmation{Bytes: out.size, Hash: out.sum(), Manifest: m}, nil
}

func (p *Packager) addMember(ctx context.Context, zw *zip.Writer, uri, name string, method uint16) (Resource, error) {
	src, err := p.resolver.Open(ctx, uri)
	if err != nil {
		return Resource{}, apperrors.WrapWithContextf(err, "open staged file %s", uri)
	}
	defer src.Close()

	dst, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   method,
		Modified: p.opts.Start.UTC(),
	})
	if err != nil {
		return Resource{}, err
	}
	hw := newHashingWriter(dst)
	if _, err = io.Copy(hw, storage.Stream(src)); err != nil {
		return Resource{}, apperrors.WrapWithContextf(err, "copy %s", uri)
	}
	return Resource{Name: path.Base(name), Path: name, Hash: hw.sum(), Bytes: hw.size}, nil
}

func (p *Packager) writeBytes(zw *zip.Writer, name string, data []byte) error {
	dst, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: p.opts.Start.UTC(),
	})
	if err != nil {
		return err
	}
	_, err = dst.Write(data)
	return err
}

// mainPage returns the URL and date of the first request record.
func (p *Packager) mainPage(ctx context.Context, uri string) (string, string) {
	src, err := p.resolver.Open(ctx, uri)
	if err != nil {
		return "", ""
	}
	defer src.Close()

	r, err := warc.NewReader(storage.Stream(src))
	if err != nil {
		return "", ""
	}
	for {
		rec, err := r.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.opts.Logger.Warn("Stopped scanning records for main page", logger.URI(uri), logger.Error(err))
			}
			return "", ""
		}
		if rec.Type() == warc.TypeRequest {
			return rec.TargetURI(), rec.Headers.Get(warc.FieldDate)
		}
	}
}
