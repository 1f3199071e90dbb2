// Package replay answers crawler requests from archived containers
// instead of the live network.
package replay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/webarchive/internal/cdxj"
	archiveconfig "github.com/jonesrussell/north-cloud/webarchive/internal/config/archive"
	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/lookup"
	"github.com/jonesrussell/north-cloud/webarchive/internal/metrics"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
	"github.com/jonesrussell/north-cloud/webarchive/internal/wacz"
)

// ErrSkipped is returned for requests the replay filters reject.
var ErrSkipped = errors.New("request skipped by replay filters")

// Filters restrict which URLs are replayed.
type Filters struct {
	// AllowedDomains lists hosts that may be requested; empty allows all.
	AllowedDomains []string
	// Archive, when set, must match a URL for it to be replayed.
	Archive *regexp.Regexp
	// Disallow skips matching URLs.
	Disallow *regexp.Regexp
}

// skipReason returns why rawURL is filtered out, or "" when it is not.
func (f Filters) skipReason(rawURL string) string {
	if len(f.AllowedDomains) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil || !domainAllowed(u.Hostname(), f.AllowedDomains) {
			return metrics.SkipOffSite
		}
	}
	if f.Archive != nil && !f.Archive.MatchString(rawURL) {
		return metrics.SkipDisallowed
	}
	if f.Disallow != nil && f.Disallow.MatchString(rawURL) {
		return metrics.SkipDisallowed
	}
	return ""
}

func domainAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, d := range allowed {
		d = strings.ToLower(d)
		if d == "*" || host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Option configures a Replayer.
type Option func(*Replayer)

// WithFallback fetches archive misses through rt.
func WithFallback(rt http.RoundTripper) Option {
	return func(r *Replayer) { r.fallback = rt }
}

// WithStrict turns archive misses into errors instead of 404 responses.
func WithStrict(strict bool) Option {
	return func(r *Replayer) { r.strict = strict }
}

// WithFilters sets the URL filters.
func WithFilters(f Filters) Option {
	return func(r *Replayer) { r.filters = f }
}

// WithStats records replay counters.
func WithStats(s *metrics.Stats) Option {
	return func(r *Replayer) { r.stats = s }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Replayer) { r.logger = l }
}

// WithLookupOptions configures the lookup policy.
func WithLookupOptions(opts ...lookup.Option) Option {
	return func(r *Replayer) { r.lookupOpts = opts }
}

// Replayer serves requests from a collection of containers. It is safe
// for concurrent use.
type Replayer struct {
	collection *wacz.Collection
	policy     *lookup.Policy
	lookupOpts []lookup.Option
	fallback   http.RoundTripper
	strict     bool
	filters    Filters
	stats      *metrics.Stats
	logger     logger.Logger
}

var _ http.RoundTripper = (*Replayer)(nil)

// New creates a Replayer over an opened collection.
func New(c *wacz.Collection, opts ...Option) *Replayer {
	r := &Replayer{collection: c, logger: logger.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.policy = lookup.New(c.Index(), r.lookupOpts...)
	return r
}

// Open resolves the configured sources, opens them and returns a Replayer.
func Open(ctx context.Context, resolver *storage.Resolver, cfg *archiveconfig.Config, opts ...Option) (*Replayer, error) {
	scratch := &Replayer{logger: logger.NewNop()}
	for _, opt := range opts {
		opt(scratch)
	}

	sources, err := ResolveSources(ctx, resolver, cfg, time.Now(), scratch.logger)
	if err != nil {
		return nil, err
	}

	openCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	c, err := wacz.OpenCollection(openCtx, resolver, sources, wacz.ReadOptions{
		Logger: scratch.logger,
		OnSkippedLine: func(string, int, error) {
			scratch.stats.IndexLineSkipped()
		},
	})
	if err != nil {
		return nil, err
	}

	opts = append([]Option{WithStrict(cfg.Strict)}, opts...)
	r := New(c, opts...)
	r.logger.Info("Replay sources opened",
		logger.Strings("sources", sources),
		logger.Int("entries", c.Index().Len()),
		logger.Int("keys", c.Index().Keys()))
	return r, nil
}

// Collection returns the opened containers.
func (r *Replayer) Collection() *wacz.Collection { return r.collection }

// Close closes the containers.
func (r *Replayer) Close() error { return r.collection.Close() }

// Lookup finds req in the archive and returns the archived response. A
// locator outside its records file is reported as lookup.ErrNotFound.
func (r *Replayer) Lookup(ctx context.Context, req lookup.Request) (*domain.Response, *lookup.Match, error) {
	start := time.Now()

	m, err := r.policy.Find(req)
	if err != nil {
		if errors.Is(err, lookup.ErrNotFound) {
			r.stats.Lookup(metrics.LookupNotFound, time.Since(start))
		}
		return nil, nil, err
	}

	resp, err := r.response(ctx, m.Entry)
	if err != nil {
		return nil, m, r.classify(err, m.Entry, start)
	}
	r.stats.Lookup(metrics.LookupHit, time.Since(start))
	return resp, m, nil
}

func (r *Replayer) response(ctx context.Context, e *cdxj.Entry) (*domain.Response, error) {
	return r.collection.Response(ctx, e)
}

// classify counts a failed resolve and maps range errors to not found.
func (r *Replayer) classify(err error, e *cdxj.Entry, start time.Time) error {
	if errors.Is(err, apperrors.ErrRange) {
		r.stats.Lookup(metrics.LookupRangeError, time.Since(start))
		r.logger.Warn("Archived record out of range",
			logger.URL(e.URL),
			logger.Locator(e.Locator),
			logger.Error(err))
		return errors.Join(lookup.ErrNotFound, err)
	}
	r.stats.Lookup(metrics.LookupNotRecognized, time.Since(start))
	r.logger.Warn("Archived record not recognized",
		logger.URL(e.URL),
		logger.Locator(e.Locator),
		logger.Error(err))
	return err
}

type entryKey struct{}

// WithEntry marks ctx so RoundTrip serves e directly instead of looking
// the request up.
func WithEntry(ctx context.Context, e *cdxj.Entry) context.Context {
	return context.WithValue(ctx, entryKey{}, e)
}

func entryFrom(ctx context.Context) (*cdxj.Entry, bool) {
	e, ok := ctx.Value(entryKey{}).(*cdxj.Entry)
	return e, ok && e != nil
}

// RoundTrip implements http.RoundTripper. Archived responses suppress the
// live fetch; misses are answered according to the replay mode.
func (r *Replayer) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	rawURL := req.URL.String()

	if reason := r.filters.skipReason(rawURL); reason != "" {
		r.stats.CrawlSkip(reason)
		return nil, apperrors.WrapWithContextf(ErrSkipped, "%s %s", reason, rawURL)
	}

	if e, ok := entryFrom(ctx); ok {
		start := time.Now()
		resp, err := r.response(ctx, e)
		if err != nil {
			err = r.classify(err, e, start)
			if errors.Is(err, lookup.ErrNotFound) {
				return r.miss(req, err)
			}
			return nil, err
		}
		r.stats.Lookup(metrics.LookupHit, time.Since(start))
		return toHTTP(req, resp), nil
	}

	body, err := readBody(req)
	if err != nil {
		return nil, err
	}
	resp, m, err := r.Lookup(ctx, lookup.Request{Method: req.Method, URL: rawURL, Body: body})
	if err != nil {
		if errors.Is(err, lookup.ErrNotFound) {
			return r.miss(req, err)
		}
		return nil, err
	}

	r.logger.Debug("Replayed from archive",
		logger.URL(rawURL),
		logger.String("strategy", string(m.Strategy)),
		logger.String("capture", m.Entry.Timestamp))
	return toHTTP(req, resp), nil
}

func (r *Replayer) miss(req *http.Request, cause error) (*http.Response, error) {
	switch {
	case r.fallback != nil:
		r.logger.Debug("Not archived, fetching live", logger.URL(req.URL.String()))
		return r.fallback.RoundTrip(req)
	case r.strict:
		return nil, cause
	default:
		return notFound(req), nil
	}
}

// readBody returns the request body and leaves req readable.
func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, apperrors.WrapWithContext(err, "read request body")
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func toHTTP(req *http.Request, resp *domain.Response) *http.Response {
	header := resp.Headers.HTTP()
	header.Del("Transfer-Encoding")
	header.Set("Content-Length", strconv.Itoa(len(resp.Body)))

	proto := resp.Protocol
	major, minor, ok := http.ParseHTTPVersion(proto)
	if !ok {
		proto, major, minor = "HTTP/1.1", 1, 1
	}
	status := strconv.Itoa(resp.StatusCode)
	if resp.Reason != "" {
		status += " " + resp.Reason
	}

	return &http.Response{
		Status:        status,
		StatusCode:    resp.StatusCode,
		Proto:         proto,
		ProtoMajor:    major,
		ProtoMinor:    minor,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       req,
	}
}

func notFound(req *http.Request) *http.Response {
	return &http.Response{
		Status:        "404 Not Found",
		StatusCode:    http.StatusNotFound,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Length": []string{"0"}},
		Body:          http.NoBody,
		ContentLength: 0,
		Request:       req,
	}
}
