// Package archive runs capture sessions: it writes every exchange a crawl
// produces into a records file and packages the session into a container
// when the crawl ends.
package archive

import (
	"context"

	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
)

// CaptureTask is one exchange queued for the capture worker.
type CaptureTask struct {
	// Tx is the captured exchange
	Tx *domain.Transaction
	// Ctx is the request context
	Ctx context.Context
}
