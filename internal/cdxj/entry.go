package cdxj

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
)

// TimestampLayout is the 14-digit capture timestamp.
const TimestampLayout = "20060102150405"

// Locator addresses one record inside a records file.
type Locator struct {
	Filename string
	Offset   int64
	Length   int64
}

// End returns the offset just past the record.
func (l Locator) End() int64 {
	return l.Offset + l.Length
}

func (l Locator) String() string {
	return fmt.Sprintf("%s@%d+%d", l.Filename, l.Offset, l.Length)
}

// Entry is one index line.
type Entry struct {
	SURT      string
	Timestamp string
	URL       string
	Method    string
	Mime      string
	Status    int
	Digest    string
	Locator   Locator
	// Source is the position of the container the entry was loaded from
	// within a collection. It is not serialized.
	Source int
}

// CapturedAt parses Timestamp.
func (e *Entry) CapturedAt() time.Time {
	t, err := time.Parse(TimestampLayout, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// block is the JSON part of a line. Numbers are strings, as written by
// the common CDXJ indexers.
type block struct {
	URL      string `json:"url"`
	Method   string `json:"method,omitempty"`
	Mime     string `json:"mime,omitempty"`
	Status   string `json:"status,omitempty"`
	Digest   string `json:"digest,omitempty"`
	Length   string `json:"length"`
	Offset   string `json:"offset"`
	Filename string `json:"filename"`
}

// Format renders e as a single line without the trailing newline.
func (e *Entry) Format() (string, error) {
	b := block{
		URL:      e.URL,
		Mime:     e.Mime,
		Digest:   e.Digest,
		Length:   strconv.FormatInt(e.Locator.Length, 10),
		Offset:   strconv.FormatInt(e.Locator.Offset, 10),
		Filename: e.Locator.Filename,
	}
	if !IsGETClass(e.Method) || strings.EqualFold(e.Method, "HEAD") {
		b.Method = strings.ToUpper(e.Method)
	}
	if e.Status > 0 {
		b.Status = strconv.Itoa(e.Status)
	}
	data, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	return e.SURT + " " + e.Timestamp + " " + string(data), nil
}

// ParseLine parses one index line. Failures are codec errors.
func ParseLine(line string) (*Entry, error) {
	surt, rest, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok || surt == "" {
		return nil, apperrors.New(apperrors.ErrCodec, "parse index line", "missing key")
	}
	ts, js, ok := strings.Cut(rest, " ")
	if !ok || len(ts) < 4 {
		return nil, apperrors.New(apperrors.ErrCodec, "parse index line", "missing timestamp")
	}
	if !gjson.Valid(js) {
		return nil, apperrors.New(apperrors.ErrCodec, "parse index line", "invalid JSON block")
	}

	fields := gjson.GetMany(js, "url", "method", "mime", "status", "digest", "length", "offset", "filename")
	if !fields[0].Exists() || !fields[5].Exists() || !fields[6].Exists() || !fields[7].Exists() {
		return nil, apperrors.New(apperrors.ErrCodec, "parse index line", "missing url, length, offset or filename")
	}

	e := &Entry{
		SURT:      surt,
		Timestamp: padTimestamp(ts),
		URL:       fields[0].String(),
		Method:    strings.ToUpper(fields[1].String()),
		Mime:      fields[2].String(),
		Status:    int(fields[3].Int()),
		Digest:    fields[4].String(),
		Locator: Locator{
			Filename: fields[7].String(),
			Offset:   fields[6].Int(),
			Length:   fields[5].Int(),
		},
	}
	if e.Method == "" {
		e.Method = "GET"
	}
	if e.Locator.Offset < 0 || e.Locator.Length <= 0 {
		return nil, apperrors.New(apperrors.ErrCodec, "parse index line", "invalid locator %s", e.Locator)
	}
	return e, nil
}

// padTimestamp extends short timestamps to 14 digits, as CDX readers do.
func padTimestamp(ts string) string {
	const full = "00000101000000"
	if len(ts) >= len(full) {
		return ts[:len(full)]
	}
	return ts + full[len(ts):]
}

// Less is the index order: key, capture time, then file position.
func Less(a, b *Entry) bool {
	if a.SURT != b.SURT {
		return a.SURT < b.SURT
	}
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	if a.Locator.Filename != b.Locator.Filename {
		return a.Locator.Filename < b.Locator.Filename
	}
	return a.Locator.Offset < b.Locator.Offset
}

// Sort orders entries in index order.
func Sort(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return Less(entries[i], entries[j]) })
}

// Write sorts entries and writes them one per line.
func Write(w io.Writer, entries []*Entry) error {
	sorted := make([]*Entry, len(entries))
	copy(sorted, entries)
	Sort(sorted)

	bw := bufio.NewWriter(w)
	for _, e := range sorted {
		line, err := e.Format()
		if err != nil {
			return err
		}
		if _, err = bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LineError reports a line that could not be parsed.
type LineError struct {
	Line int
	Err  error
}

// Read parses every line of r. Bad lines are returned separately and do
// not stop reading.
func Read(r io.Reader) ([]*Entry, []LineError, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var entries []*Entry
	var bad []LineError
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		e, err := ParseLine(line)
		if err != nil {
			bad = append(bad, LineError{Line: n, Err: err})
			continue
		}
		entries = append(entries, e)
	}
	return entries, bad, sc.Err()
}
