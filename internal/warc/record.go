// Package warc encodes and decodes WARC 1.1 records.
package warc

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
)

// Version is written on every encoded record.
const Version = "WARC/1.1"

var supportedVersions = map[string]bool{
	"WARC/1.0": true,
	"WARC/1.1": true,
}

// Record types.
const (
	TypeWarcinfo = "warcinfo"
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeMetadata = "metadata"
)

// Header field names.
const (
	FieldType          = "WARC-Type"
	FieldRecordID      = "WARC-Record-ID"
	FieldDate          = "WARC-Date"
	FieldTargetURI     = "WARC-Target-URI"
	FieldConcurrentTo  = "WARC-Concurrent-To"
	FieldFilename      = "WARC-Filename"
	FieldBlockDigest   = "WARC-Block-Digest"
	FieldPayloadDigest = "WARC-Payload-Digest"
	FieldContentType   = "Content-Type"
	FieldContentLength = "Content-Length"
)

// Content types of HTTP message blocks.
const (
	ContentTypeHTTPRequest  = "application/http; msgtype=request"
	ContentTypeHTTPResponse = "application/http; msgtype=response"
	ContentTypeWarcFields   = "application/warc-fields"
	ContentTypeJSON         = "application/json"
)

// dateLayout keeps sub-second precision when present, as WARC 1.1 allows.
const dateLayout = "2006-01-02T15:04:05.999999Z"

// Record is one WARC record: version line, ordered header fields and the
// content block.
type Record struct {
	Version string
	Headers domain.Header
	Block   []byte
}

// Type returns the WARC-Type field.
func (r *Record) Type() string { return r.Headers.Get(FieldType) }

// ID returns the WARC-Record-ID field.
func (r *Record) ID() string { return r.Headers.Get(FieldRecordID) }

// TargetURI returns the WARC-Target-URI field.
func (r *Record) TargetURI() string { return r.Headers.Get(FieldTargetURI) }

// ContentType returns the Content-Type field.
func (r *Record) ContentType() string { return r.Headers.Get(FieldContentType) }

// Date parses the WARC-Date field. A missing or malformed date yields the zero time.
func (r *Record) Date() time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.Headers.Get(FieldDate))
	if err != nil {
		return time.Time{}
	}
	return t
}

// ContentLength parses the Content-Length field.
func (r *Record) ContentLength() (int, error) {
	return strconv.Atoi(r.Headers.Get(FieldContentLength))
}

// NewRecordID returns a fresh <urn:uuid:...> identifier.
func NewRecordID() string {
	return "<urn:uuid:" + uuid.NewString() + ">"
}

// FormatDate renders t as a WARC-Date value in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func newRecord(recordType, id string, date time.Time) *Record {
	rec := &Record{Version: Version}
	rec.Headers.Add(FieldType, recordType)
	rec.Headers.Add(FieldRecordID, id)
	rec.Headers.Add(FieldDate, FormatDate(date))
	return rec
}
