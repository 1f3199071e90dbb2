package warc

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
)

// terminator closes every record.
const terminator = "\r\n\r\n"

// Encode serializes rec. Content-Length is always recomputed from the block.
func Encode(rec *Record) []byte {
	version := rec.Version
	if version == "" {
		version = Version
	}

	headers := rec.Headers.Clone()
	headers.Set(FieldContentLength, strconv.Itoa(len(rec.Block)))

	var buf bytes.Buffer
	buf.Grow(len(rec.Block) + 512)
	buf.WriteString(version + crlf)
	writeHeaderLines(&buf, headers)
	buf.WriteString(crlf)
	buf.Write(rec.Block)
	buf.WriteString(terminator)
	return buf.Bytes()
}

// EncodeGzip serializes rec as a single gzip member so that records in a
// .warc.gz file stay individually addressable.
func EncodeGzip(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(Encode(rec)); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ResponseRecord builds the response record of tx.
func ResponseRecord(tx *domain.Transaction, id string) *Record {
	block := ResponseBlock(tx)
	rec := newRecord(TypeResponse, id, tx.CapturedAt)
	rec.Headers.Add(FieldTargetURI, tx.URL)
	rec.Headers.Add(FieldContentType, ContentTypeHTTPResponse)
	rec.Headers.Add(FieldBlockDigest, Digest(block))
	rec.Headers.Add(FieldPayloadDigest, Digest(tx.ResponseBody))
	rec.Block = block
	return rec
}

// RequestRecord builds the request record of tx, linked to its response.
func RequestRecord(tx *domain.Transaction, id, responseID string) *Record {
	block := RequestBlock(tx)
	rec := newRecord(TypeRequest, id, tx.CapturedAt)
	rec.Headers.Add(FieldTargetURI, tx.URL)
	if responseID != "" {
		rec.Headers.Add(FieldConcurrentTo, responseID)
	}
	rec.Headers.Add(FieldContentType, ContentTypeHTTPRequest)
	rec.Headers.Add(FieldBlockDigest, Digest(block))
	rec.Headers.Add(FieldPayloadDigest, Digest(tx.RequestBody))
	rec.Block = block
	return rec
}

// Info is the JSON body of a warcinfo record.
type Info struct {
	Software    string `json:"software"`
	Format      string `json:"format"`
	ConformsTo  string `json:"conformsTo"`
	IsPartOf    string `json:"isPartOf,omitempty"`
	Description string `json:"description,omitempty"`
	Robots      string `json:"robots,omitempty"`
}

// WarcinfoRecord builds the leading warcinfo record of a records file.
func WarcinfoRecord(filename string, info Info, id string, date time.Time) (*Record, error) {
	block, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	rec := newRecord(TypeWarcinfo, id, date)
	rec.Headers.Add(FieldFilename, filename)
	rec.Headers.Add(FieldContentType, ContentTypeJSON)
	rec.Headers.Add(FieldBlockDigest, Digest(block))
	rec.Block = block
	return rec, nil
}
