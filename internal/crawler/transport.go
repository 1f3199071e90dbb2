package crawler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
)

// HTTP transport defaults
const (
	defaultMaxIdleConns          = 100
	defaultMaxIdleConnsPerHost   = 10
	defaultIdleConnTimeout       = 90 * time.Second
	defaultResponseHeaderTimeout = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
)

// NewHTTPTransport returns the live transport used by capture crawls.
func NewHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
}

// Capturer receives every exchange seen by a CaptureTransport.
type Capturer interface {
	Capture(ctx context.Context, tx *domain.Transaction) error
}

// CaptureTransport forwards requests to the next transport and hands each
// completed exchange to a Capturer. Capture failures are logged and do not
// fail the request.
type CaptureTransport struct {
	next     http.RoundTripper
	capturer Capturer
	clock    func() time.Time
	logger   logger.Logger
}

var _ http.RoundTripper = (*CaptureTransport)(nil)

// NewCaptureTransport wraps next. A nil next uses NewHTTPTransport.
func NewCaptureTransport(next http.RoundTripper, capturer Capturer, log logger.Logger) *CaptureTransport {
	if next == nil {
		next = NewHTTPTransport()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &CaptureTransport{next: next, capturer: capturer, clock: time.Now, logger: log}
}

// RoundTrip implements http.RoundTripper.
func (t *CaptureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqBody, req, err := bufferRequest(req)
	if err != nil {
		return nil, err
	}
	capturedAt := t.clock().UTC()

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, apperrors.WrapWithContextf(err, "read response %s", req.URL)
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	tx := &domain.Transaction{
		Method:          req.Method,
		URL:             req.URL.String(),
		Protocol:        resp.Proto,
		RequestHeaders:  requestHeaders(req),
		RequestBody:     reqBody,
		StatusCode:      resp.StatusCode,
		Reason:          reasonPhrase(resp),
		ResponseHeaders: domain.FromHTTP(resp.Header),
		ResponseBody:    respBody,
		CapturedAt:      capturedAt,
	}
	if captureErr := t.capturer.Capture(req.Context(), tx); captureErr != nil {
		t.logger.Warn("Failed to capture response",
			logger.URL(tx.URL),
			logger.Status(tx.StatusCode),
			logger.Error(captureErr))
	}
	return resp, nil
}

// bufferRequest reads the request body and returns a clone of req whose
// body can still be sent.
func bufferRequest(req *http.Request) ([]byte, *http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, req, nil
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, nil, apperrors.WrapWithContextf(err, "read request %s", req.URL)
	}
	clone := req.Clone(req.Context())
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.ContentLength = int64(len(body))
	return body, clone, nil
}

// requestHeaders returns the request headers with Host first, as sent on
// the wire.
func requestHeaders(req *http.Request) domain.Header {
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	h := domain.Header{{Name: "Host", Value: host}}
	for _, f := range domain.FromHTTP(req.Header) {
		if !strings.EqualFold(f.Name, "Host") {
			h = append(h, f)
		}
	}
	return h
}

func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	return strings.TrimSpace(reason)
}
