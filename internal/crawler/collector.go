package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	colly "github.com/gocolly/colly/v2"

	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/replay"
)

// RandomDelayDivisor is used to calculate random delay from the configured delay
const RandomDelayDivisor = 2

// counters tracks one crawl. colly callbacks run concurrently in async mode.
type counters struct {
	visited atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
}

func (c *counters) result() *Result {
	return &Result{
		Visited: int(c.visited.Load()),
		Failed:  int(c.failed.Load()),
		Skipped: int(c.skipped.Load()),
	}
}

// setupCollector builds a collector that sends every request through rt.
func (c *Crawler) setupCollector(ctx context.Context, rt http.RoundTripper, revisit bool) (*colly.Collector, error) {
	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.MaxDepth(c.cfg.MaxDepth),
		colly.Async(true),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(c.cfg.UserAgent),
	}
	if revisit {
		opts = append(opts, colly.AllowURLRevisit())
	}
	if len(c.cfg.AllowedDomains) > 0 && !containsWildcard(c.cfg.AllowedDomains) {
		opts = append(opts, colly.AllowedDomains(c.cfg.AllowedDomains...))
	}

	collector := colly.NewCollector(opts...)
	collector.IgnoreRobotsTxt = !c.robotsTxt
	collector.WithTransport(rt)
	if c.cfg.RequestTimeout > 0 {
		collector.SetRequestTimeout(c.cfg.RequestTimeout)
	}

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       c.cfg.Delay,
		RandomDelay: c.cfg.Delay / RandomDelayDivisor,
		Parallelism: c.cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("failed to set rate limit: %w", err)
	}

	c.logger.Debug("Collector configured",
		logger.Int("max_depth", c.cfg.MaxDepth),
		logger.Int("parallelism", c.cfg.Parallelism),
		logger.Duration("delay", c.cfg.Delay),
		logger.Bool("revisit", revisit))
	return collector, nil
}

func containsWildcard(domains []string) bool {
	for _, d := range domains {
		if d == "*" {
			return true
		}
	}
	return false
}

// setupCallbacks registers request logging, result counting, error
// handling and link following.
func (c *Crawler) setupCallbacks(ctx context.Context, collector *colly.Collector, n *counters) {
	collector.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
		default:
			c.logger.Debug("Visiting URL", logger.URL(r.URL.String()))
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		n.visited.Add(1)
		c.logger.Debug("Response received",
			logger.URL(r.Request.URL.String()),
			logger.Status(r.StatusCode),
			logger.Int("bytes", len(r.Body)))
	})

	collector.OnError(func(r *colly.Response, err error) {
		pageURL := ""
		if r != nil && r.Request != nil {
			pageURL = r.Request.URL.String()
		}
		if errors.Is(err, replay.ErrSkipped) {
			n.skipped.Add(1)
			c.logger.Debug("Skipped by replay filters", logger.URL(pageURL), logger.Error(err))
			return
		}
		n.failed.Add(1)
		c.logger.Warn("Request failed", logger.URL(pageURL), logger.Error(err))
	})

	if !c.followLinks {
		return
	}
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		select {
		case <-ctx.Done():
			return
		default:
			c.handleLink(e)
		}
	})
}

// handleLink visits the absolute form of an anchor's href.
func (c *Crawler) handleLink(e *colly.HTMLElement) {
	link := e.Attr("href")
	if link == "" || shouldSkipLink(link) {
		return
	}
	absLink := e.Request.AbsoluteURL(link)
	if absLink == "" {
		return
	}
	if err := e.Request.Visit(absLink); err != nil && !isExpectedVisitError(err) {
		c.logger.Debug("Link not followed", logger.URL(absLink), logger.Error(err))
	}
}

func shouldSkipLink(link string) bool {
	for _, prefix := range []string{"#", "javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(link, prefix) {
			return true
		}
	}
	return false
}

func isExpectedVisitError(err error) bool {
	return errors.Is(err, colly.ErrMaxDepth) ||
		errors.Is(err, colly.ErrForbiddenDomain) ||
		strings.Contains(err.Error(), "already visited")
}
