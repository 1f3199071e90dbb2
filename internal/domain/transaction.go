package domain

import (
	"mime"
	"net/http"
	"strings"
	"time"
)

// DefaultProtocol is written on HTTP lines when a transaction carries none.
const DefaultProtocol = "HTTP/1.1"

// Transaction is one captured request/response exchange. It is not
// modified after it has been handed to a writer.
type Transaction struct {
	Method          string
	URL             string
	Protocol        string
	RequestHeaders  Header
	RequestBody     []byte
	StatusCode      int
	Reason          string
	ResponseHeaders Header
	ResponseBody    []byte
	CapturedAt      time.Time
}

// ContentType returns the media type of the response without parameters.
func (t *Transaction) ContentType() string {
	raw := t.ResponseHeaders.Get("Content-Type")
	if raw == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.TrimSpace(strings.SplitN(raw, ";", 2)[0])
	}
	return mt
}

// Proto returns the protocol, defaulting to DefaultProtocol.
func (t *Transaction) Proto() string {
	if t.Protocol == "" {
		return DefaultProtocol
	}
	return t.Protocol
}

// Status returns the reason phrase for the status line.
func (t *Transaction) Status() string {
	if t.Reason != "" {
		return t.Reason
	}
	return http.StatusText(t.StatusCode)
}

// Response is an archived response handed back to the replay layer.
type Response struct {
	URL        string
	Protocol   string
	StatusCode int
	Reason     string
	Headers    Header
	Body       []byte
	CapturedAt time.Time
}
