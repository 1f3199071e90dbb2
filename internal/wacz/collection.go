package wacz

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jonesrussell/north-cloud/webarchive/internal/cdxj"
	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
	"github.com/jonesrussell/north-cloud/webarchive/internal/warc"
)

var sourceSeparator = regexp.MustCompile(`\s*,\s*`)

// SplitSources splits a comma-separated source list, dropping blanks.
func SplitSources(raw string) []string {
	var out []string
	for _, s := range sourceSeparator.Split(strings.TrimSpace(raw), -1) {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Collection is several containers behind one merged index. Entries keep
// the position of their source in the list they were opened from.
type Collection struct {
	archives []*Archive
	index    *Index
}

// OpenCollection opens every uri in order. If any container fails to
// open, the ones already opened are closed and the error is returned.
func OpenCollection(ctx context.Context, resolver *storage.Resolver, uris []string, opts ReadOptions) (*Collection, error) {
	if len(uris) == 0 {
		return nil, apperrors.New(apperrors.ErrConfiguration, "open collection", "no source URIs")
	}

	c := &Collection{}
	indexes := make([]*Index, 0, len(uris))
	for i, uri := range uris {
		a, err := open(ctx, resolver, uri, i, opts)
		if err != nil {
			_ = c.Close()
			return nil, apperrors.WrapWithContextf(err, "open source %s", uri)
		}
		c.archives = append(c.archives, a)
		indexes = append(indexes, a.index)
	}
	c.index = Merge(indexes...)
	return c, nil
}

// Index returns the merged index.
func (c *Collection) Index() *Index { return c.index }

// Archives returns the opened containers in source order.
func (c *Collection) Archives() []*Archive { return c.archives }

func (c *Collection) archive(e *cdxj.Entry) (*Archive, error) {
	if e.Source < 0 || e.Source >= len(c.archives) {
		return nil, apperrors.New(apperrors.ErrNotFound, "resolve", "no source %d", e.Source)
	}
	return c.archives[e.Source], nil
}

// Resolve returns the record bytes of e from its source container.
func (c *Collection) Resolve(ctx context.Context, e *cdxj.Entry) ([]byte, error) {
	a, err := c.archive(e)
	if err != nil {
		return nil, err
	}
	return a.Resolve(ctx, e.Locator)
}

// Record resolves and decodes the record of e.
func (c *Collection) Record(ctx context.Context, e *cdxj.Entry) (*warc.Decoded, error) {
	a, err := c.archive(e)
	if err != nil {
		return nil, err
	}
	return a.Record(ctx, e.Locator)
}

// Response returns the archived HTTP response of e.
func (c *Collection) Response(ctx context.Context, e *cdxj.Entry) (*domain.Response, error) {
	a, err := c.archive(e)
	if err != nil {
		return nil, err
	}
	return a.Response(ctx, e)
}

// Close closes every container.
func (c *Collection) Close() error {
	var errs []error
	for _, a := range c.archives {
		errs = append(errs, a.Close())
	}
	return errors.Join(errs...)
}
