package warc

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
)

// Decode failures. All of them are codec errors.
var (
	ErrHeaderIncomplete   = &apperrors.Error{Kind: apperrors.ErrCodec, Msg: "record header incomplete"}
	ErrPayloadTruncated   = &apperrors.Error{Kind: apperrors.ErrCodec, Msg: "record payload shorter than declared length"}
	ErrUnsupportedVersion = &apperrors.Error{Kind: apperrors.ErrCodec, Msg: "unsupported record version"}
	ErrMalformedHeader    = &apperrors.Error{Kind: apperrors.ErrCodec, Msg: "malformed record header"}
)

var gzipMagic = []byte{0x1f, 0x8b}

// Decoded is the result of decoding one record.
type Decoded struct {
	Record *Record
	// HeaderLength is the length of the version line and header block,
	// including the blank line that ends it.
	HeaderLength int
	// PayloadLength is the declared and present content block length.
	PayloadLength int
	// DigestMismatch is set when WARC-Block-Digest does not match the block.
	// The record is still returned.
	DigestMismatch bool
}

// Decode parses the first record in data. Data starting with a gzip
// member is decompressed first; whatever decompresses before a truncation
// is still parsed so truncation is reported precisely.
func Decode(data []byte) (*Decoded, error) {
	if bytes.HasPrefix(data, gzipMagic) {
		plain, err := gunzip(data)
		if err != nil {
			return nil, err
		}
		data = plain
	}
	return decodePlain(data)
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodec, "gunzip record", err)
	}
	zr.Multistream(false)
	plain, err := io.ReadAll(zr)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, apperrors.Wrap(apperrors.ErrCodec, "gunzip record", err)
	}
	return plain, nil
}

func decodePlain(data []byte) (*Decoded, error) {
	end := bytes.Index(data, []byte("\r\n\r\n"))
	if end < 0 {
		return nil, ErrHeaderIncomplete
	}
	headerLength := end + 4

	lines := strings.Split(string(data[:end]), crlf)
	version := lines[0]
	if !supportedVersions[version] {
		return nil, &apperrors.Error{Kind: apperrors.ErrCodec, Msg: ErrUnsupportedVersion.Msg + " " + strconv.Quote(version), Err: ErrUnsupportedVersion}
	}

	rec := &Record{Version: version}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, ErrMalformedHeader
		}
		rec.Headers = append(rec.Headers, domain.HeaderField{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}

	length, err := rec.ContentLength()
	if err != nil || length < 0 {
		return nil, ErrMalformedHeader
	}
	if len(data)-headerLength < length {
		return nil, ErrPayloadTruncated
	}
	rec.Block = data[headerLength : headerLength+length]

	out := &Decoded{Record: rec, HeaderLength: headerLength, PayloadLength: length}
	if want := rec.Headers.Get(FieldBlockDigest); want != "" && !verifyDigest(want, rec.Block) {
		out.DigestMismatch = true
	}
	return out, nil
}
