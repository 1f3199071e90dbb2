package wacz

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/webarchive/internal/cdxj"
	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
	"github.com/jonesrussell/north-cloud/webarchive/internal/warc"
)

// Options configures a Writer.
type Options struct {
	// Collection names the records file and the container.
	Collection  string
	Title       string
	Description string
	Software    string
	// Compress writes each record as its own gzip member (.warc.gz).
	Compress bool
	// RobotsObey is recorded in the warcinfo record.
	RobotsObey bool
	// Hostname is embedded in the records file name.
	Hostname string
	// Clock and NewRecordID are replaceable for reproducible output.
	// NewRecordID must be safe for concurrent use.
	Clock       func() time.Time
	NewRecordID func() string
	Logger      logger.Logger
}

// DefaultOptions returns options for gzip-compressed records.
func DefaultOptions() Options {
	return Options{Collection: DefaultName, Compress: true}
}

func (o *Options) setDefaults() {
	if o.Collection == "" {
		o.Collection = DefaultName
	}
	if o.Software == "" {
		o.Software = DefaultSoftware
	}
	if o.Hostname == "" {
		o.Hostname, _ = os.Hostname()
		if o.Hostname == "" {
			o.Hostname = "localhost"
		}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.NewRecordID == nil {
		o.NewRecordID = warc.NewRecordID
	}
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
}

type writerState int

const (
	stateOpen writerState = iota
	stateFinalized
	stateAborted
	stateFailed
)

// Writer appends transactions to a records file and builds its index.
// All methods are safe for concurrent use.
type Writer struct {
	opts     Options
	resolver *storage.Resolver
	dir      storage.Location
	started  time.Time

	mu          sync.Mutex
	state       writerState
	records     storage.Writer
	recordsName string
	recordsHash hash.Hash
	offset      int64
	count       int
	entries     []*cdxj.Entry
	mainPage    *cdxj.Entry
}

// OpenWriter creates the records file under destination, a directory URI, and
// writes its warcinfo record.
func OpenWriter(ctx context.Context, resolver *storage.Resolver, destination string, opts Options) (*Writer, error) {
	opts.setDefaults()

	_, dir, err := resolver.Resolve(destination)
	if err != nil {
		return nil, err
	}

	started := opts.Clock().UTC()
	name := recordsFileName(opts.Collection, started, opts.Hostname, opts.Compress)
	sink, err := resolver.Create(ctx, dir.Join(name).String())
	if err != nil {
		return nil, apperrors.WrapWithContextf(err, "create records file %s", name)
	}

	w := &Writer{
		opts:        opts,
		resolver:    resolver,
		dir:         dir,
		started:     started,
		records:     sink,
		recordsName: name,
		recordsHash: sha256.New(),
	}

	info, err := warc.WarcinfoRecord(name, warc.Info{
		Software:    opts.Software,
		Format:      "WARC File Format 1.1",
		ConformsTo:  "http://iipc.github.io/warc-specifications/specifications/warc-format/warc-1.1/",
		IsPartOf:    opts.Collection,
		Description: opts.Description,
		Robots:      robotsPolicy(opts.RobotsObey),
	}, opts.NewRecordID(), started)
	if err != nil {
		_ = sink.Abort()
		return nil, err
	}
	data, err := w.encode(info)
	if err != nil {
		_ = sink.Abort()
		return nil, err
	}
	if err = w.append(data); err != nil {
		_ = sink.Abort()
		return nil, err
	}
	w.count++

	opts.Logger.Debug("Opened records file", logger.URI(dir.Join(name).String()))
	return w, nil
}

func robotsPolicy(obey bool) string {
	if obey {
		return "obey"
	}
	return "ignore"
}

// recordsFileName follows the {prefix}-{timestamp}-{serial}-{host} convention.
func recordsFileName(collection string, t time.Time, host string, compress bool) string {
	name := fmt.Sprintf("%s-%s-00000-%s.warc", collection, t.Format(cdxj.TimestampLayout), sanitizeHost(host))
	if compress {
		name += ".gz"
	}
	return name
}

func sanitizeHost(host string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, host)
}

func (w *Writer) encode(rec *warc.Record) ([]byte, error) {
	if w.opts.Compress {
		return warc.EncodeGzip(rec)
	}
	return warc.Encode(rec), nil
}

// append writes data at the current offset. Callers hold mu or own w exclusively.
func (w *Writer) append(data []byte) error {
	n, err := w.records.Write(data)
	w.recordsHash.Write(data[:n])
	w.offset += int64(n)
	if err != nil {
		w.state = stateFailed
		return apperrors.WrapWithContextf(err, "write records file %s", w.recordsName)
	}
	return nil
}

// RecordsName returns the records file name.
func (w *Writer) RecordsName() string {
	return w.recordsName
}

// Count returns the number of records written, including warcinfo.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Write appends the response record and the request record of tx and
// returns the locator of the response record.
func (w *Writer) Write(_ context.Context, tx *domain.Transaction) (cdxj.Locator, error) {
	if tx == nil {
		return cdxj.Locator{}, apperrors.New(apperrors.ErrState, "write", "nil transaction")
	}
	key, err := cdxj.Canonicalize(tx.Method, tx.URL, tx.RequestBody)
	if err != nil {
		return cdxj.Locator{}, err
	}

	responseID := w.opts.NewRecordID()
	requestID := w.opts.NewRecordID()
	response, err := w.encode(warc.ResponseRecord(tx, responseID))
	if err != nil {
		return cdxj.Locator{}, err
	}
	request, err := w.encode(warc.RequestRecord(tx, requestID, responseID))
	if err != nil {
		return cdxj.Locator{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err = w.checkOpen("write"); err != nil {
		return cdxj.Locator{}, err
	}

	loc := cdxj.Locator{Filename: w.recordsName, Offset: w.offset, Length: int64(len(response))}
	if err = w.append(response); err != nil {
		return cdxj.Locator{}, err
	}
	if err = w.append(request); err != nil {
		return cdxj.Locator{}, err
	}
	w.count += 2

	entry := &cdxj.Entry{
		SURT:      key.SURT,
		Timestamp: tx.CapturedAt.UTC().Format(cdxj.TimestampLayout),
		URL:       tx.URL,
		Method:    key.Method,
		Mime:      tx.ContentType(),
		Status:    tx.StatusCode,
		Digest:    warc.Digest(tx.ResponseBody),
		Locator:   loc,
	}
	w.entries = append(w.entries, entry)
	if w.mainPage == nil {
		w.mainPage = entry
	}
	return loc, nil
}

func (w *Writer) checkOpen(op string) error {
	switch w.state {
	case stateOpen:
		return nil
	case stateFinalized:
		return apperrors.New(apperrors.ErrState, op, "writer already finalized")
	case stateAborted:
		return apperrors.New(apperrors.ErrState, op, "writer aborted")
	default:
		return apperrors.New(apperrors.ErrState, op, "writer failed after a write error")
	}
}

// Finalize commits the records file, writes the sorted index next to it
// and returns a manifest describing both files.
func (w *Writer) Finalize(ctx context.Context) (*Manifest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen("finalize"); err != nil {
		return nil, err
	}
	if err := w.records.Close(); err != nil {
		// A failed commit leaves nothing usable behind.
		_ = w.records.Abort()
		w.state = stateAborted
		w.entries = nil
		return nil, apperrors.WrapWithContextf(err, "commit records file %s", w.recordsName)
	}
	w.state = stateFinalized

	var index bytes.Buffer
	if err := cdxj.Write(&index, w.entries); err != nil {
		return nil, err
	}
	indexName := strings.TrimSuffix(strings.TrimSuffix(w.recordsName, ".gz"), ".warc") + ".cdxj"
	indexURI := w.dir.Join(indexName).String()
	if err := w.resolver.WriteFile(ctx, indexURI, index.Bytes()); err != nil {
		return nil, apperrors.WrapWithContextf(err, "write index %s", indexName)
	}
	indexSum := sha256.Sum256(index.Bytes())

	m := &Manifest{
		Profile:     ProfileName,
		Title:       w.opts.Title,
		Description: w.opts.Description,
		Created:     formatManifestDate(w.started),
		Modified:    formatManifestDate(w.opts.Clock()),
		WACZVersion: WACZVersion,
		Software:    w.opts.Software,
		Resources: []Resource{
			{
				Name:  strings.ToLower(w.recordsName),
				Path:  ArchiveDir + w.recordsName,
				Hash:  "sha256:" + hex.EncodeToString(w.recordsHash.Sum(nil)),
				Bytes: w.offset,
				URI:   w.dir.Join(w.recordsName).String(),
			},
			{
				Name:  "index.cdxj",
				Path:  DefaultIndexPath,
				Hash:  "sha256:" + hex.EncodeToString(indexSum[:]),
				Bytes: int64(index.Len()),
				URI:   indexURI,
			},
		},
	}
	if w.mainPage != nil {
		m.MainPageURL = w.mainPage.URL
		m.MainPageDate = warc.FormatDate(w.mainPage.CapturedAt())
	}

	w.opts.Logger.Info("Finalized records file",
		logger.String("records", w.recordsName),
		logger.Int("record_count", w.count),
		logger.Int("index_entries", len(w.entries)),
		logger.Int64("bytes", w.offset))

	return m, nil
}

// Abort discards the records file and any accumulated index entries.
func (w *Writer) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == stateFinalized || w.state == stateAborted {
		return nil
	}
	w.state = stateAborted
	w.entries = nil
	return w.records.Abort()
}
