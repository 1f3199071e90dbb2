package warc

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
)

const crlf = "\r\n"

var headerValueCleaner = strings.NewReplacer("\r", " ", "\n", " ")

func writeHeaderLines(buf *bytes.Buffer, h domain.Header) {
	for _, f := range h {
		buf.WriteString(f.Name)
		buf.WriteString(": ")
		buf.WriteString(headerValueCleaner.Replace(f.Value))
		buf.WriteString(crlf)
	}
}

// RequestBlock renders the HTTP request message of tx.
func RequestBlock(tx *domain.Transaction) []byte {
	target := tx.URL
	if u, err := url.Parse(tx.URL); err == nil {
		target = u.RequestURI()
	}

	var buf bytes.Buffer
	buf.WriteString(strings.ToUpper(tx.Method) + " " + target + " " + tx.Proto() + crlf)
	writeHeaderLines(&buf, tx.RequestHeaders)
	buf.WriteString(crlf)
	buf.Write(tx.RequestBody)
	return buf.Bytes()
}

// ResponseBlock renders the HTTP response message of tx.
func ResponseBlock(tx *domain.Transaction) []byte {
	var buf bytes.Buffer
	buf.WriteString(tx.Proto() + " " + strconv.Itoa(tx.StatusCode))
	if reason := tx.Status(); reason != "" {
		buf.WriteString(" " + reason)
	}
	buf.WriteString(crlf)
	writeHeaderLines(&buf, tx.ResponseHeaders)
	buf.WriteString(crlf)
	buf.Write(tx.ResponseBody)
	return buf.Bytes()
}

// HTTPMessage is a parsed HTTP request or response block.
type HTTPMessage struct {
	// StartLine fields. For responses: Protocol, StatusCode, Reason.
	// For requests: Method, Target, Protocol.
	Method     string
	Target     string
	Protocol   string
	StatusCode int
	Reason     string
	Headers    domain.Header
	Body       []byte
}

// splitMessage separates the head from the body at the first blank line.
func splitMessage(block []byte) (head []byte, body []byte, ok bool) {
	if i := bytes.Index(block, []byte("\r\n\r\n")); i >= 0 {
		return block[:i], block[i+4:], true
	}
	if i := bytes.Index(block, []byte("\n\n")); i >= 0 {
		return block[:i], block[i+2:], true
	}
	return nil, nil, false
}

func parseHead(head []byte) (string, domain.Header, error) {
	lines := strings.Split(strings.ReplaceAll(string(head), "\r\n", "\n"), "\n")
	var h domain.Header
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(h) > 0 {
			h[len(h)-1].Value += " " + strings.TrimSpace(line)
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return "", nil, apperrors.New(apperrors.ErrCodec, "parse http", "malformed header line %q", line)
		}
		h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return lines[0], h, nil
}

// ParseResponse parses a response block.
func ParseResponse(block []byte) (*HTTPMessage, error) {
	head, body, ok := splitMessage(block)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodec, "parse response", "missing end of headers")
	}
	start, h, err := parseHead(head)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(start, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return nil, apperrors.New(apperrors.ErrCodec, "parse response", "malformed status line %q", start)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodec, "parse response", "malformed status code %q", parts[1])
	}

	msg := &HTTPMessage{Protocol: parts[0], StatusCode: code, Headers: h, Body: body}
	if len(parts) == 3 {
		msg.Reason = parts[2]
	}
	return msg, nil
}

// ParseRequest parses a request block.
func ParseRequest(block []byte) (*HTTPMessage, error) {
	head, body, ok := splitMessage(block)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodec, "parse request", "missing end of headers")
	}
	start, h, err := parseHead(head)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(start, " ", 3)
	if len(parts) != 3 {
		return nil, apperrors.New(apperrors.ErrCodec, "parse request", "malformed request line %q", start)
	}
	return &HTTPMessage{Method: parts[0], Target: parts[1], Protocol: parts[2], Headers: h, Body: body}, nil
}
