package clients

import (
	"context"
	stderrors "errors"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
	"github.com/ajitpratap0/ghlexport/pkg/testutil"
)

const testBaseURL = "https://api.example.test"

func jsonResponse(status int, body string, headers map[string]string) *http.Response {
	resp := httpmock.NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

func newTestClient(t *testing.T, mt *httpmock.MockTransport, sleeper *testutil.FakeSleeper) *ResilientClient {
	t.Helper()
	cfg := DefaultClientConfig()
	cfg.BaseURL = testBaseURL
	cfg.Token = "tok"

	governor := NewRateGovernor(testutil.TestLogger(t), WithGovernorSleeper(sleeper.Sleep))
	c, err := NewResilientClient(cfg, governor, testutil.TestLogger(t),
		WithTransport(mt),
		WithSleeper(sleeper.Sleep))
	require.NoError(t, err)
	return c
}

func TestClientSendsHeadersAndSkipsEmptyParams(t *testing.T) {
	mt := httpmock.NewMockTransport()
	var seen *http.Request
	mt.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`/contacts/`),
		func(req *http.Request) (*http.Response, error) {
			seen = req
			return jsonResponse(200, `{"contacts":[]}`, nil), nil
		})

	c := newTestClient(t, mt, &testutil.FakeSleeper{})
	body, err := c.Do(context.Background(), Request{
		Path:   "/contacts/",
		Params: Params{"locationId": "loc-1", "query": ""},
	})
	require.NoError(t, err)
	assert.NotNil(t, body)

	require.NotNil(t, seen)
	assert.Equal(t, "Bearer tok", seen.Header.Get("Authorization"))
	assert.Equal(t, DefaultAPIVersion, seen.Header.Get("Version"))
	assert.Equal(t, "application/json", seen.Header.Get("Content-Type"))
	assert.Equal(t, "loc-1", seen.URL.Query().Get("locationId"))
	assert.False(t, seen.URL.Query().Has("query"))
}

func TestClientRetriesOnceAfter429(t *testing.T) {
	mt := httpmock.NewMockTransport()
	var calls atomic.Int32
	mt.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`/users/`),
		func(req *http.Request) (*http.Response, error) {
			if calls.Add(1) == 1 {
				return jsonResponse(429, `{"message":"slow down"}`, map[string]string{"Retry-After": "2"}), nil
			}
			return jsonResponse(200, `{"users":[{"id":"u1"}]}`, nil), nil
		})

	sleeper := &testutil.FakeSleeper{}
	c := newTestClient(t, mt, sleeper)

	body, err := c.Do(context.Background(), Request{Path: "/users/"})
	require.NoError(t, err)
	assert.Len(t, body.Records("users"), 1)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.Waits())
	assert.Equal(t, int64(2), c.Governor().SessionRequests())
}

func TestClientPersistent429IsTerminal(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`/users/`),
		func(req *http.Request) (*http.Response, error) {
			return jsonResponse(429, `{}`, nil), nil
		})

	sleeper := &testutil.FakeSleeper{}
	c := newTestClient(t, mt, sleeper)

	body, err := c.Do(context.Background(), Request{Path: "/users/"})
	require.Error(t, err)
	assert.Nil(t, body)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRateLimit))
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.Equal(t, 3, mt.GetTotalCallCount())
	// default retry-after between attempts, none after the last
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, sleeper.Waits())
}

func TestClientQuotaExhaustedSkipsRetry(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`/users/`),
		func(req *http.Request) (*http.Response, error) {
			return jsonResponse(429, `{}`, map[string]string{HeaderDailyRemaining: "50"}), nil
		})

	sleeper := &testutil.FakeSleeper{}
	c := newTestClient(t, mt, sleeper)

	_, err := c.Do(context.Background(), Request{Path: "/users/"})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, 1, mt.GetTotalCallCount())
	assert.Empty(t, sleeper.Waits())
}

func TestClientUpstreamErrorTruncatesBody(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`/users/`),
		httpmock.ResponderFromResponse(jsonResponse(500, strings.Repeat("z", 600), nil)))

	c := newTestClient(t, mt, &testutil.FakeSleeper{})

	_, err := c.Do(context.Background(), Request{Path: "/users/"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUpstream))
	assert.False(t, errors.IsRetryable(err))
	assert.Equal(t, 500, errors.StatusCode(err))
	assert.Contains(t, err.Error(), testBaseURL+"/users/")
	assert.Equal(t, 500, strings.Count(err.Error(), "z"))
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestClientRetriesTransientNetworkErrors(t *testing.T) {
	mt := httpmock.NewMockTransport()
	var calls atomic.Int32
	mt.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`/users/`),
		func(req *http.Request) (*http.Response, error) {
			if calls.Add(1) == 1 {
				return nil, syscall.ECONNRESET
			}
			return jsonResponse(200, `{"users":[]}`, nil), nil
		})

	sleeper := &testutil.FakeSleeper{}
	c := newTestClient(t, mt, sleeper)

	_, err := c.Do(context.Background(), Request{Path: "/users/"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, sleeper.Waits())
	// a failed transport attempt never reached the governor
	assert.Equal(t, int64(1), c.Governor().SessionRequests())
}

func TestClientOtherTransportErrorsAreTerminal(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`/users/`),
		httpmock.NewErrorResponder(stderrors.New("tls: bad certificate")))

	sleeper := &testutil.FakeSleeper{}
	c := newTestClient(t, mt, sleeper)

	_, err := c.Do(context.Background(), Request{Path: "/users/"})
	require.Error(t, err)
	assert.False(t, errors.IsRetryable(err))
	assert.Equal(t, 1, mt.GetTotalCallCount())
	assert.Empty(t, sleeper.Waits())
}

func TestClientDecodeError(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`/users/`),
		httpmock.ResponderFromResponse(jsonResponse(200, `{"users":`, nil)))

	c := newTestClient(t, mt, &testutil.FakeSleeper{})

	_, err := c.Do(context.Background(), Request{Path: "/users/"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestClientPostsJSONBody(t *testing.T) {
	mt := httpmock.NewMockTransport()
	var method string
	mt.RegisterRegexpResponder(http.MethodPost, regexp.MustCompile(`/contacts/search`),
		func(req *http.Request) (*http.Response, error) {
			method = req.Method
			return jsonResponse(200, `{"contacts":[{"id":"c1"}]}`, nil), nil
		})

	c := newTestClient(t, mt, &testutil.FakeSleeper{})

	body, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/contacts/search",
		Body:   map[string]interface{}{"locationId": "loc-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, method)
	assert.Len(t, body.Records("contacts"), 1)
}

func TestTestConnection(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		wantErr bool
	}{
		{"location object", `{"location":{"id":"loc-1","name":"Acme"}}`, 200, false},
		{"flat record", `{"id":"loc-1"}`, 200, false},
		{"unrelated body", `{"status":"ok"}`, 200, true},
		{"unauthorized", `{"message":"invalid token"}`, 401, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt := httpmock.NewMockTransport()
			mt.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`/locations/loc-1$`),
				httpmock.ResponderFromResponse(jsonResponse(tt.status, tt.body, nil)))

			c := newTestClient(t, mt, &testutil.FakeSleeper{})
			err := c.TestConnection(context.Background(), "loc-1")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewResilientClientValidation(t *testing.T) {
	_, err := NewResilientClient(DefaultClientConfig(), nil, nil)
	require.Error(t, err)

	cfg := DefaultClientConfig()
	cfg.BaseURL = "not a url"
	_, err = NewResilientClient(cfg, NewRateGovernor(nil), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, parseRetryAfter("2", time.Minute))
	assert.Equal(t, 1500*time.Millisecond, parseRetryAfter("1.5", time.Minute))
	assert.Equal(t, time.Minute, parseRetryAfter("", time.Minute))
	assert.Equal(t, time.Minute, parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT", time.Minute))
}
