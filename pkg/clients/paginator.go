package clients

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
	"github.com/ajitpratap0/ghlexport/pkg/metrics"
)

const (
	// DefaultPageSize is the limit sent when a request does not set one.
	DefaultPageSize = 100
	// DefaultMaxPages caps page fetches per FetchAll call.
	DefaultMaxPages = 100
)

// PageRequest describes a paginated listing.
type PageRequest struct {
	Path    string
	Params  Params
	DataKey string
	// Limit is the page size (default DefaultPageSize)
	Limit int
	// MaxPages caps fetches (default DefaultMaxPages)
	MaxPages int
}

// PageResult is the concatenation of every fetched page.
type PageResult struct {
	Records []map[string]interface{}
	Pages   int
	// Truncated is set when the page cap stopped pagination while the
	// upstream still signalled more data.
	Truncated bool
	Warning   string
}

// pageCursor tracks where the next page starts.
type pageCursor struct {
	token  string
	after  string
	offset int
}

// Paginator drives a Fetcher across pages of one listing.
type Paginator struct {
	client  Fetcher
	logger  *zap.Logger
	metrics *metrics.Metrics

	pageSize int
	maxPages int
}

// PaginatorOption configures a Paginator.
type PaginatorOption func(*Paginator)

// WithPageSize sets the default page size.
func WithPageSize(n int) PaginatorOption {
	return func(p *Paginator) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// WithMaxPages sets the default page cap.
func WithMaxPages(n int) PaginatorOption {
	return func(p *Paginator) {
		if n > 0 {
			p.maxPages = n
		}
	}
}

// WithPaginatorMetrics records page and truncation counters.
func WithPaginatorMetrics(m *metrics.Metrics) PaginatorOption {
	return func(p *Paginator) { p.metrics = m }
}

// NewPaginator creates a paginator over client.
func NewPaginator(client Fetcher, logger *zap.Logger, opts ...PaginatorOption) *Paginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Paginator{
		client:   client,
		logger:   logger.With(zap.String("component", "paginator")),
		pageSize: DefaultPageSize,
		maxPages: DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Client returns the underlying fetcher.
func (p *Paginator) Client() Fetcher {
	return p.client
}

// FetchAll accumulates records across pages. The continuation rule is
// decided per page, in order: an empty page stops, which also covers the
// trace-marker end-of-data responses; a cursor in meta continues while the
// page is full; a total in meta continues while fewer records than the
// total are held; otherwise a full page continues.
//
// Hitting the page cap is not an error: the records fetched so far are
// returned with Truncated set.
func (p *Paginator) FetchAll(ctx context.Context, req PageRequest) (*PageResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = p.pageSize
	}
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = p.maxPages
	}

	result := &PageResult{}
	var cursor pageCursor

	for page := 1; page <= maxPages; page++ {
		params := make(Params, len(req.Params)+3)
		for k, v := range req.Params {
			params[k] = v
		}
		params["limit"] = strconv.Itoa(limit)
		if cursor.token != "" {
			params["startAfterId"] = cursor.token
			if cursor.after != "" {
				params["startAfter"] = cursor.after
			}
		} else if page > 1 {
			params["skip"] = strconv.Itoa(cursor.offset)
		}

		body, err := p.client.Do(ctx, Request{Path: req.Path, Params: params})
		if err != nil {
			return result, errors.Wrap(err, errors.TypeOf(err),
				fmt.Sprintf("page %d of %s", page, req.Path))
		}
		result.Pages = page
		p.metrics.IncPage()

		records := pageRecords(body, req.DataKey)
		result.Records = append(result.Records, records...)

		more := p.hasMore(body, len(records), len(result.Records), limit, &cursor)
		if !more {
			return result, nil
		}
		if cursor.token == "" {
			cursor.offset = page * limit
		}

		if page == maxPages {
			result.Truncated = true
			result.Warning = fmt.Sprintf("pagination for %s stopped at the %d page cap; data may be incomplete", req.Path, maxPages)
			p.metrics.IncTruncated()
			p.logger.Warn("hit max pages, data may be incomplete",
				zap.String("path", req.Path),
				zap.Int("max_pages", maxPages),
				zap.Int("records", len(result.Records)))
		}
	}

	return result, nil
}

// hasMore applies the continuation policy and updates cursor.
func (p *Paginator) hasMore(body Response, pageCount, total, limit int, cursor *pageCursor) bool {
	if pageCount == 0 {
		return false
	}

	meta := body.Meta()
	if meta == nil {
		return pageCount >= limit
	}

	if token := metaCursor(meta); token != "" {
		cursor.token = token
		cursor.after = stringValue(meta["startAfter"])
		return pageCount >= limit
	}
	cursor.token, cursor.after = "", ""

	if n, ok := intValue(meta["total"]); ok {
		return total < n
	}

	return pageCount >= limit
}

// metaCursor returns the next-page token exposed by meta, if any.
func metaCursor(meta map[string]interface{}) string {
	for _, key := range []string{"startAfterId", "startAfter"} {
		if s := stringValue(meta[key]); s != "" {
			return s
		}
	}
	return ""
}

// pageRecords reads the record array under key, falling back to "data".
func pageRecords(body Response, key string) []map[string]interface{} {
	keys := []string{"data"}
	if key != "" && key != "data" {
		keys = []string{key, "data"}
	}
	return body.Records(keys...)
}
