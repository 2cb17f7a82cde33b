package clients

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
	"github.com/ajitpratap0/ghlexport/pkg/testutil"
)

// scriptedFetcher answers each call with the next scripted page.
type scriptedFetcher struct {
	mu       sync.Mutex
	pages    []func(req Request) (Response, error)
	requests []Request
	repeat   bool
}

func (f *scriptedFetcher) Do(_ context.Context, req Request) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i >= len(f.pages) {
		if !f.repeat || len(f.pages) == 0 {
			return Response{}, nil
		}
		i = len(f.pages) - 1
	}
	return f.pages[i](req)
}

func records(key string, n, start int) []interface{} {
	out := make([]interface{}, n)
	for i := range out {
		out[i] = map[string]interface{}{"id": fmt.Sprintf("%s-%d", key, start+i)}
	}
	return out
}

func page(body Response) func(Request) (Response, error) {
	return func(Request) (Response, error) { return body, nil }
}

func TestFetchAllConcatenatesPages(t *testing.T) {
	f := &scriptedFetcher{pages: []func(Request) (Response, error){
		page(Response{"contacts": records("c", 100, 0)}),
		page(Response{"contacts": records("c", 100, 100)}),
		page(Response{"contacts": records("c", 37, 200)}),
	}}
	p := NewPaginator(f, testutil.TestLogger(t))

	res, err := p.FetchAll(context.Background(), PageRequest{Path: "/contacts/", DataKey: "contacts", Params: Params{"locationId": "loc-1"}})
	require.NoError(t, err)
	assert.Len(t, res.Records, 237)
	assert.Equal(t, 3, res.Pages)
	assert.False(t, res.Truncated)
	require.Len(t, f.requests, 3)

	assert.Equal(t, "c-0", res.Records[0]["id"])
	assert.Equal(t, "c-236", res.Records[236]["id"])

	assert.Equal(t, "100", f.requests[0].Params["limit"])
	assert.Equal(t, "loc-1", f.requests[0].Params["locationId"])
	assert.NotContains(t, f.requests[0].Params, "skip")
	assert.Equal(t, "100", f.requests[1].Params["skip"])
	assert.Equal(t, "200", f.requests[2].Params["skip"])
}

func TestFetchAllEmptyFirstPageStops(t *testing.T) {
	f := &scriptedFetcher{repeat: true, pages: []func(Request) (Response, error){
		page(Response{
			"contacts": []interface{}{},
			"meta":     map[string]interface{}{"total": float64(500), "startAfterId": "abc"},
		}),
	}}
	p := NewPaginator(f, nil)

	res, err := p.FetchAll(context.Background(), PageRequest{Path: "/contacts/", DataKey: "contacts"})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Len(t, f.requests, 1)
}

func TestFetchAllTraceMarkerEndsData(t *testing.T) {
	f := &scriptedFetcher{repeat: true, pages: []func(Request) (Response, error){
		page(Response{"traceId": "5f1c"}),
	}}
	p := NewPaginator(f, nil)

	res, err := p.FetchAll(context.Background(), PageRequest{Path: "/workflows/", DataKey: "workflows"})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Len(t, f.requests, 1)
}

func TestFetchAllCursorConvention(t *testing.T) {
	f := &scriptedFetcher{pages: []func(Request) (Response, error){
		page(Response{
			"contacts": records("c", 10, 0),
			"meta":     map[string]interface{}{"startAfterId": "c-9", "startAfter": float64(1700000000000), "total": float64(15)},
		}),
		page(Response{
			"contacts": records("c", 5, 10),
			"meta":     map[string]interface{}{"startAfterId": "c-14", "startAfter": float64(1700000000500)},
		}),
	}}
	p := NewPaginator(f, nil)

	res, err := p.FetchAll(context.Background(), PageRequest{Path: "/contacts/", DataKey: "contacts", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, res.Records, 15)
	require.Len(t, f.requests, 2)

	second := f.requests[1].Params
	assert.Equal(t, "c-9", second["startAfterId"])
	assert.Equal(t, "1700000000000", second["startAfter"])
	assert.NotContains(t, second, "skip")
}

func TestFetchAllTotalConvention(t *testing.T) {
	f := &scriptedFetcher{pages: []func(Request) (Response, error){
		page(Response{"invoices": records("i", 50, 0), "meta": map[string]interface{}{"total": "120"}}),
		page(Response{"invoices": records("i", 50, 50), "meta": map[string]interface{}{"total": "120"}}),
		page(Response{"invoices": records("i", 20, 100), "meta": map[string]interface{}{"total": "120"}}),
	}}
	p := NewPaginator(f, nil)

	res, err := p.FetchAll(context.Background(), PageRequest{Path: "/invoices/", DataKey: "invoices", Limit: 50})
	require.NoError(t, err)
	assert.Len(t, res.Records, 120)
	require.Len(t, f.requests, 3)
	assert.Equal(t, "50", f.requests[1].Params["skip"])
	assert.Equal(t, "100", f.requests[2].Params["skip"])
}

func TestFetchAllTotalReachedOnFullPage(t *testing.T) {
	f := &scriptedFetcher{repeat: true, pages: []func(Request) (Response, error){
		page(Response{"tasks": records("t", 10, 0), "meta": map[string]interface{}{"total": float64(10)}}),
	}}
	p := NewPaginator(f, nil)

	res, err := p.FetchAll(context.Background(), PageRequest{Path: "/contacts/tasks", DataKey: "tasks", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, res.Records, 10)
	assert.Len(t, f.requests, 1)
}

func TestFetchAllFallsBackToDataKey(t *testing.T) {
	f := &scriptedFetcher{pages: []func(Request) (Response, error){
		page(Response{"data": records("m", 3, 0)}),
	}}
	p := NewPaginator(f, nil)

	res, err := p.FetchAll(context.Background(), PageRequest{Path: "/medias/", DataKey: "medias"})
	require.NoError(t, err)
	assert.Len(t, res.Records, 3)
}

func TestFetchAllStopsAtPageCap(t *testing.T) {
	f := &scriptedFetcher{repeat: true, pages: []func(Request) (Response, error){
		func(req Request) (Response, error) {
			skip, _ := strconv.Atoi(req.Params["skip"])
			return Response{"contacts": records("c", 100, skip)}, nil
		},
	}}
	p := NewPaginator(f, testutil.TestLogger(t))

	res, err := p.FetchAll(context.Background(), PageRequest{Path: "/contacts/", DataKey: "contacts"})
	require.NoError(t, err)
	assert.Len(t, f.requests, 100)
	assert.Equal(t, 100, res.Pages)
	assert.Len(t, res.Records, 100*100)
	assert.True(t, res.Truncated)
	assert.Contains(t, res.Warning, "page cap")
}

func TestFetchAllCapNotTruncatedWhenDone(t *testing.T) {
	f := &scriptedFetcher{pages: []func(Request) (Response, error){
		page(Response{"users": records("u", 5, 0)}),
		page(Response{"users": records("u", 2, 5)}),
	}}
	p := NewPaginator(f, nil, WithMaxPages(2))

	res, err := p.FetchAll(context.Background(), PageRequest{Path: "/users/", DataKey: "users", Limit: 5})
	require.NoError(t, err)
	assert.Len(t, res.Records, 7)
	assert.False(t, res.Truncated)
}

func TestFetchAllPropagatesCallError(t *testing.T) {
	f := &scriptedFetcher{pages: []func(Request) (Response, error){
		page(Response{"contacts": records("c", 10, 0)}),
		func(Request) (Response, error) {
			return nil, errors.New(errors.ErrorTypeQuotaExhausted, "daily rate limit nearly exhausted (42 remaining)")
		},
	}}
	p := NewPaginator(f, nil)

	res, err := p.FetchAll(context.Background(), PageRequest{Path: "/contacts/", DataKey: "contacts", Limit: 10})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Contains(t, err.Error(), "page 2 of /contacts/")
	assert.Len(t, res.Records, 10)
}

func TestFetchAllOverHTTP(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`/contacts/`),
		func(req *http.Request) (*http.Response, error) {
			n := 100
			if req.URL.Query().Get("skip") == "200" {
				n = 37
			}
			items := make([]string, n)
			for i := range items {
				items[i] = fmt.Sprintf(`{"id":"c%d"}`, i)
			}
			return jsonResponse(200, `{"contacts":[`+strings.Join(items, ",")+`]}`, nil), nil
		})

	c := newTestClient(t, mt, &testutil.FakeSleeper{})
	p := NewPaginator(c, testutil.TestLogger(t))

	res, err := p.FetchAll(context.Background(), PageRequest{Path: "/contacts/", DataKey: "contacts"})
	require.NoError(t, err)
	assert.Len(t, res.Records, 237)
	assert.Equal(t, 3, mt.GetTotalCallCount())
	assert.Equal(t, int64(3), c.Governor().SessionRequests())
}
