package warc

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
)

// Reader iterates the records of a plain or gzip-compressed records file.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r, detecting gzip compression from the first bytes.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(gzipMagic))
	if err == nil && bytes.Equal(magic, gzipMagic) {
		zr, zerr := gzip.NewReader(br)
		if zerr != nil {
			return nil, zerr
		}
		br = bufio.NewReader(zr)
	}
	return &Reader{br: br}, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (*Record, error) {
	version, err := r.line()
	for err == nil && version == "" {
		version, err = r.line()
	}
	if err != nil {
		return nil, err
	}
	if !supportedVersions[version] {
		return nil, ErrUnsupportedVersion
	}

	rec := &Record{Version: version}
	for {
		line, lerr := r.line()
		if lerr != nil {
			return nil, ErrHeaderIncomplete
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, ErrMalformedHeader
		}
		rec.Headers = append(rec.Headers, domain.HeaderField{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}

	length, err := strconv.Atoi(rec.Headers.Get(FieldContentLength))
	if err != nil || length < 0 {
		return nil, ErrMalformedHeader
	}
	rec.Block = make([]byte, length)
	if _, err := io.ReadFull(r.br, rec.Block); err != nil {
		return nil, ErrPayloadTruncated
	}
	return rec, nil
}

func (r *Reader) line() (string, error) {
	s, err := r.br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && s != "" {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}
