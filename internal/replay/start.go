package replay

import (
	"context"

	"github.com/jonesrussell/north-cloud/webarchive/internal/cdxj"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
)

// StartRequest is a request produced from an archived index entry.
type StartRequest struct {
	Entry  *cdxj.Entry
	URL    string
	Method string
	// Skip is set when the filters reject the URL; SkipReason says why.
	Skip       bool
	SkipReason string
}

// StartRequests turns every index entry into a start request, in index
// order. Filtered entries are returned flagged rather than dropped.
func (r *Replayer) StartRequests(ctx context.Context) ([]StartRequest, error) {
	entries := r.collection.Index().Entries()
	out := make([]StartRequest, 0, len(entries))
	skipped := 0

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		method := e.Method
		if method == "" {
			method = "GET"
		}
		req := StartRequest{Entry: e, URL: e.URL, Method: method}
		if reason := r.filters.skipReason(e.URL); reason != "" {
			req.Skip, req.SkipReason = true, reason
			r.stats.CrawlSkip(reason)
			skipped++
		} else {
			r.stats.StartRequest()
		}
		out = append(out, req)
	}

	r.logger.Info("Start requests from archive",
		logger.Int("total", len(out)),
		logger.Int("skipped", skipped))
	return out, nil
}
