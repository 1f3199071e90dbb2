// Package crawler drives colly crawls through the capture and replay
// transports.
package crawler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	colly "github.com/gocolly/colly/v2"

	"github.com/jonesrussell/north-cloud/webarchive/internal/archive"
	"github.com/jonesrussell/north-cloud/webarchive/internal/cdxj"
	crawlerconfig "github.com/jonesrussell/north-cloud/webarchive/internal/config/crawler"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/replay"
	"github.com/jonesrussell/north-cloud/webarchive/internal/wacz"
)

// entryHeader carries the position of an index entry from an iteration
// request to the entry transport. It never reaches the replayer.
const entryHeader = "X-Webarchive-Entry"

// Result summarises a crawl.
type Result struct {
	Visited int
	Failed  int
	Skipped int
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Crawler) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLiveTransport replaces the transport used for live fetches.
func WithLiveTransport(rt http.RoundTripper) Option {
	return func(c *Crawler) { c.live = rt }
}

// WithRobotsTxt makes the collector honour robots.txt.
func WithRobotsTxt(obey bool) Option {
	return func(c *Crawler) { c.robotsTxt = obey }
}

// WithFollowLinks toggles a[href] link following.
func WithFollowLinks(follow bool) Option {
	return func(c *Crawler) { c.followLinks = follow }
}

// Crawler runs capture, replay and archive iteration crawls.
type Crawler struct {
	cfg         *crawlerconfig.Config
	logger      logger.Logger
	live        http.RoundTripper
	robotsTxt   bool
	followLinks bool
}

// New validates cfg and returns a Crawler.
func New(cfg *crawlerconfig.Config, opts ...Option) (*Crawler, error) {
	if cfg == nil {
		return nil, apperrors.New(apperrors.ErrConfiguration, "crawler.New", "crawler config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfiguration, "crawler.New", err)
	}
	c := &Crawler{cfg: cfg, logger: logger.NewNop(), followLinks: true}
	for _, opt := range opts {
		opt(c)
	}
	if c.live == nil {
		c.live = NewHTTPTransport()
	}
	return c, nil
}

// Capture runs a live crawl from startURLs inside an archiver session.
// The container is packed when the crawl finishes; a cancelled crawl
// aborts the session instead.
func (c *Crawler) Capture(ctx context.Context, a *archive.Archiver, startURLs []string) (*Result, *wacz.Confirmation, error) {
	if len(startURLs) == 0 {
		return nil, nil, apperrors.New(apperrors.ErrConfiguration, "crawler.Capture", "no start urls")
	}
	if err := a.SessionStarted(ctx, time.Now()); err != nil {
		return nil, nil, err
	}

	rt := NewCaptureTransport(c.live, a, c.logger)
	res, err := c.crawl(ctx, rt, false, func(col *colly.Collector, n *counters) {
		c.visitAll(col, n, startURLs)
	})
	if err != nil {
		if abortErr := a.Abort(); abortErr != nil {
			c.logger.Warn("Failed to abort capture session", logger.Error(abortErr))
		}
		return res, nil, err
	}

	conf, err := a.SessionEnded(ctx)
	if err != nil {
		return res, nil, err
	}
	c.logger.Info("Capture crawl finished",
		logger.Int("visited", res.Visited),
		logger.Int("failed", res.Failed),
		logger.URI(conf.URI),
		logger.Int64("bytes", conf.Bytes))
	return res, conf, nil
}

// Replay runs a crawl from startURLs with every request answered by r.
func (c *Crawler) Replay(ctx context.Context, r *replay.Replayer, startURLs []string) (*Result, error) {
	if len(startURLs) == 0 {
		return nil, apperrors.New(apperrors.ErrConfiguration, "crawler.Replay", "no start urls")
	}
	res, err := c.crawl(ctx, r, false, func(col *colly.Collector, n *counters) {
		c.visitAll(col, n, startURLs)
	})
	if err == nil {
		c.logger.Info("Replay crawl finished",
			logger.Int("visited", res.Visited),
			logger.Int("failed", res.Failed),
			logger.Int("skipped", res.Skipped))
	}
	return res, err
}

// Iterate crawls every archived entry of r as a start request. Each
// request is served from its own entry; flagged entries are not visited.
func (c *Crawler) Iterate(ctx context.Context, r *replay.Replayer) (*Result, error) {
	starts, err := r.StartRequests(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]*cdxj.Entry, len(starts))
	for i := range starts {
		entries[i] = starts[i].Entry
	}
	rt := &entryTransport{next: r, entries: entries}

	res, err := c.crawl(ctx, rt, true, func(col *colly.Collector, n *counters) {
		for i, s := range starts {
			if s.Skip {
				n.skipped.Add(1)
				continue
			}
			hdr := http.Header{}
			hdr.Set(entryHeader, strconv.Itoa(i))
			if visitErr := col.Request(s.Method, s.URL, nil, nil, hdr); visitErr != nil {
				n.failed.Add(1)
				c.logger.Warn("Start request rejected", logger.URL(s.URL), logger.Error(visitErr))
			}
		}
	})
	if err == nil {
		c.logger.Info("Archive iteration finished",
			logger.Int("entries", len(starts)),
			logger.Int("visited", res.Visited),
			logger.Int("skipped", res.Skipped))
	}
	return res, err
}

func (c *Crawler) crawl(ctx context.Context, rt http.RoundTripper, revisit bool, seed func(*colly.Collector, *counters)) (*Result, error) {
	col, err := c.setupCollector(ctx, rt, revisit)
	if err != nil {
		return nil, err
	}
	n := &counters{}
	c.setupCallbacks(ctx, col, n)

	seed(col, n)
	col.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return n.result(), apperrors.WrapWithContext(ctxErr, "crawl cancelled")
	}
	return n.result(), nil
}

func (c *Crawler) visitAll(col *colly.Collector, n *counters, urls []string) {
	for _, u := range urls {
		if err := col.Visit(u); err != nil {
			n.skipped.Add(1)
			c.logger.Warn("Start URL not visited", logger.URL(u), logger.Error(err))
		}
	}
}

// entryTransport routes iteration requests to the entry they were built
// from. Requests without the entry header are looked up normally.
type entryTransport struct {
	next    *replay.Replayer
	entries []*cdxj.Entry
}

func (t *entryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	raw := req.Header.Get(entryHeader)
	if raw == "" {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Del(entryHeader)
	// Redirects copy the header; the target is looked up by URL.
	if req.Response != nil {
		return t.next.RoundTrip(clone)
	}

	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 || i >= len(t.entries) {
		return nil, apperrors.New(apperrors.ErrState, "crawler.entryTransport", "unknown entry %q", raw)
	}
	return t.next.RoundTrip(clone.WithContext(replay.WithEntry(clone.Context(), t.entries[i])))
}
