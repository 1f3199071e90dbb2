package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/webarchive/internal/cdxj"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/lookup"
	"github.com/jonesrussell/north-cloud/webarchive/internal/replay"
)

// Paging defaults for the index listing.
const (
	defaultLimit = 100
	maxLimit     = 1000
)

// EntryResponse is one index entry.
type EntryResponse struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Mime      string `json:"mime,omitempty"`
	Digest    string `json:"digest,omitempty"`
	Filename  string `json:"filename"`
	Offset    int64  `json:"offset"`
	Length    int64  `json:"length"`
	Source    int    `json:"source"`
}

// IndexResponse is a page of the merged index.
type IndexResponse struct {
	Total   int             `json:"total"`
	Offset  int             `json:"offset"`
	Limit   int             `json:"limit"`
	Entries []EntryResponse `json:"entries"`
}

// LookupResponse describes the capture chosen for a request.
type LookupResponse struct {
	Strategy string        `json:"strategy"`
	Key      string        `json:"key"`
	Entry    EntryResponse `json:"entry"`
}

// ReplayResponse is an archived response.
type ReplayResponse struct {
	URL        string              `json:"url"`
	Status     int                 `json:"status"`
	Reason     string              `json:"reason,omitempty"`
	Headers    map[string][]string `json:"headers"`
	Body       string              `json:"body"`
	CapturedAt time.Time           `json:"captured_at"`
	Strategy   string              `json:"strategy"`
}

// Handler serves a replayer's collection.
type Handler struct {
	replayer *replay.Replayer
	gatherer prometheus.Gatherer
	version  string
	logger   logger.Logger
}

// NewHandler creates a handler. A nil gatherer disables /metrics.
func NewHandler(r *replay.Replayer, gatherer prometheus.Gatherer, version string, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{replayer: r, gatherer: gatherer, version: version, logger: log}
}

// RegisterRoutes adds every endpoint to router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/index", h.Index)
	v1.GET("/lookup", h.Lookup)
	v1.GET("/replay", h.Replay)
}

// Health reports the service status and index size.
func (h *Handler) Health(c *gin.Context) {
	idx := h.replayer.Collection().Index()
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"service":    "webarchive",
		"version":    h.version,
		"containers": len(h.replayer.Collection().Archives()),
		"entries":    idx.Len(),
		"keys":       idx.Keys(),
	})
}

// Index lists merged index entries. Query: offset, limit.
func (h *Handler) Index(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := queryInt(c, "limit", defaultLimit)
	if err != nil {
		badRequest(c, err)
		return
	}
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}

	entries := h.replayer.Collection().Index().Entries()
	resp := IndexResponse{Total: len(entries), Offset: offset, Limit: limit, Entries: []EntryResponse{}}
	if offset < len(entries) {
		end := offset + min(limit, len(entries)-offset)
		for _, e := range entries[offset:end] {
			resp.Entries = append(resp.Entries, toEntryResponse(e))
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Lookup reports which capture would answer a request. Query: url, method.
func (h *Handler) Lookup(c *gin.Context) {
	req, ok := lookupRequest(c)
	if !ok {
		return
	}
	_, m, err := h.replayer.Lookup(c.Request.Context(), req)
	if err != nil && m == nil {
		h.lookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, LookupResponse{
		Strategy: string(m.Strategy),
		Key:      m.Key.SURT,
		Entry:    toEntryResponse(m.Entry),
	})
}

// Replay returns the archived response for a request. Query: url, method.
func (h *Handler) Replay(c *gin.Context) {
	req, ok := lookupRequest(c)
	if !ok {
		return
	}
	resp, m, err := h.replayer.Lookup(c.Request.Context(), req)
	if err != nil {
		h.lookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, ReplayResponse{
		URL:        resp.URL,
		Status:     resp.StatusCode,
		Reason:     resp.Reason,
		Headers:    resp.Headers.HTTP(),
		Body:       string(resp.Body),
		CapturedAt: resp.CapturedAt,
		Strategy:   string(m.Strategy),
	})
}

func lookupRequest(c *gin.Context) (lookup.Request, bool) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return lookup.Request{}, false
	}
	return lookup.Request{Method: c.DefaultQuery("method", http.MethodGet), URL: rawURL}, true
}

func (h *Handler) lookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lookup.ErrNotFound):
		logger.FromContext(c.Request.Context(), h.logger).Debug("No archived capture", logger.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrCodec):
		badRequest(c, err)
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.New(apperrors.ErrConfiguration, "api", "invalid %s %q", name, raw)
	}
	return n, nil
}

func toEntryResponse(e *cdxj.Entry) EntryResponse {
	method := e.Method
	if method == "" {
		method = http.MethodGet
	}
	return EntryResponse{
		URL:       e.URL,
		Method:    method,
		Timestamp: e.Timestamp,
		Status:    e.Status,
		Mime:      e.Mime,
		Digest:    e.Digest,
		Filename:  e.Locator.Filename,
		Offset:    e.Locator.Offset,
		Length:    e.Locator.Length,
		Source:    e.Source,
	}
}
