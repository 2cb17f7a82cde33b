// Package clients provides the upstream fetch layer: a RateGovernor that
// enforces the shared burst and daily budgets, a ResilientClient issuing one
// authenticated call with bounded retry, and a Paginator that drives the
// client across pages.
package clients

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
	jsonpool "github.com/ajitpratap0/ghlexport/pkg/json"
	"github.com/ajitpratap0/ghlexport/pkg/metrics"
	"github.com/ajitpratap0/ghlexport/pkg/observability"
)

const (
	// DefaultBaseURL is the upstream API root.
	DefaultBaseURL = "https://services.leadconnectorhq.com"
	// DefaultAPIVersion is sent as the Version header.
	DefaultAPIVersion = "2021-07-28"

	maxErrorBody = 500
)

// Params are query parameters. Empty values are not sent.
type Params map[string]string

// Request describes one logical upstream call.
type Request struct {
	Method string
	Path   string
	Params Params
	Body   interface{}
}

// Fetcher issues one logical call. ResilientClient is the production
// implementation; the Paginator and the extractors depend only on this.
type Fetcher interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// ClientConfig configures the ResilientClient.
type ClientConfig struct {
	BaseURL    string
	Token      string
	APIVersion string
	// MaxAttempts bounds attempts per logical call, first one included
	MaxAttempts int
	// RetryBackoff is the fixed wait after a transient network failure
	RetryBackoff time.Duration
	// DefaultRetryAfter is used when a 429 carries no retry-after header
	DefaultRetryAfter time.Duration
	// RequestsPerSecond paces attempts client-side (0 = unlimited)
	RequestsPerSecond float64
	UserAgent         string
}

// DefaultClientConfig returns the retry constants used against the production API.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:           DefaultBaseURL,
		APIVersion:        DefaultAPIVersion,
		MaxAttempts:       3,
		RetryBackoff:      5 * time.Second,
		DefaultRetryAfter: 10 * time.Second,
		UserAgent:         "ghlexport/1.0",
	}
}

// ResilientClient issues authenticated calls with retry on backpressure
// and on transient transport failures. Every completed response is fed to
// the RateGovernor before its status is interpreted.
type ResilientClient struct {
	config     ClientConfig
	baseURL    *url.URL
	logger     *zap.Logger
	httpClient *http.Client
	transport  http.RoundTripper
	governor   *RateGovernor
	sleep      Sleeper
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	tracer     *observability.Tracer
}

// ClientOption configures a ResilientClient.
type ClientOption func(*ResilientClient)

// WithTransport replaces the base transport (the bearer credential is
// still injected on top of it).
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *ResilientClient) { c.transport = rt }
}

// WithSleeper replaces the sleeper used for retry waits.
func WithSleeper(s Sleeper) ClientOption {
	return func(c *ResilientClient) { c.sleep = s }
}

// WithMetrics records request, retry and latency metrics.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *ResilientClient) { c.metrics = m }
}

// NewResilientClient creates a client bound to one governor.
func NewResilientClient(config ClientConfig, governor *RateGovernor, logger *zap.Logger, opts ...ClientOption) (*ResilientClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if governor == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "rate governor is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	base, err := url.Parse(config.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf(errors.ErrorTypeConfig, "invalid base url %q", config.BaseURL)
	}

	c := &ResilientClient{
		config:   config,
		baseURL:  base,
		logger:   logger.With(zap.String("component", "http_client")),
		governor: governor,
		sleep:    Sleep,
		tracer:   observability.NewTracer("client"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		c.transport = newTransport(c.logger)
	}
	if config.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	c.httpClient = &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.Token, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}

	return c, nil
}

// newTransport builds the pooled transport with HTTP/2 enabled. Only
// transport-level dial and handshake timeouts apply.
func newTransport(logger *zap.Logger) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	if err := http2.ConfigureTransport(t); err != nil {
		logger.Warn("failed to configure HTTP/2", zap.Error(err))
	}
	return t
}

// Governor returns the governor the client reports to.
func (c *ResilientClient) Governor() *RateGovernor {
	return c.governor
}

// attemptResult is the outcome of one HTTP attempt. A non-zero retryIn
// marks the error as retryable after that wait.
type attemptResult struct {
	body    Response
	err     error
	retryIn time.Duration
	reason  string
}

// Do issues one logical call. It yields either the decoded body or exactly
// one terminal error.
func (c *ResilientClient) Do(ctx context.Context, req Request) (Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	target := c.buildURL(req.Path, req.Params)

	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = jsonpool.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to encode request body")
		}
	}

	ctx, span := c.tracer.StartSpan(ctx, "request")
	span.SetAttribute("http.method", req.Method)
	span.SetAttribute("http.path", req.Path)

	for attempt := 1; ; attempt++ {
		res := c.attempt(ctx, req.Method, target, payload)
		if res.err == nil {
			span.SetAttribute("attempts", attempt)
			span.Finish(nil)
			return res.body, nil
		}

		if res.retryIn == 0 {
			span.Finish(res.err)
			return nil, res.err
		}
		if attempt >= c.config.MaxAttempts {
			err := errors.Wrap(res.err, errors.TypeOf(res.err),
				fmt.Sprintf("all %d attempts failed", c.config.MaxAttempts)).
				WithDetail("url", target)
			span.Finish(err)
			return nil, err
		}

		c.logger.Warn("retrying request",
			zap.String("reason", res.reason),
			zap.String("url", target),
			zap.Duration("wait", res.retryIn),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.config.MaxAttempts),
			zap.Error(res.err))
		c.metrics.IncRetry(res.reason)
		span.AddEvent("retry")

		if err := c.sleep(ctx, res.retryIn); err != nil {
			wrapped := errors.Wrap(err, errors.ErrorTypeTimeout, "retry cancelled").WithDetail("url", target)
			span.Finish(wrapped)
			return nil, wrapped
		}
	}
}

func (c *ResilientClient) attempt(ctx context.Context, method, target string, payload []byte) attemptResult {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return attemptResult{err: errors.Wrap(err, errors.ErrorTypeTimeout, "client-side pacing interrupted")}
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return attemptResult{err: errors.Wrap(err, errors.ErrorTypeValidation, "failed to build request")}
	}
	httpReq.Header.Set("Version", c.config.APIVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveRequest("error", time.Since(start))
		return c.classifyTransportError(ctx, target, err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	c.metrics.ObserveRequest(metrics.StatusClass(resp.StatusCode), time.Since(start))

	// The governor sees every completed response, including 429s and errors.
	if err := c.governor.Observe(ctx, resp.Header); err != nil {
		return attemptResult{err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := parseRetryAfter(resp.Header.Get("Retry-After"), c.config.DefaultRetryAfter)
		return attemptResult{
			err: errors.New(errors.ErrorTypeRateLimit, "429 Too Many Requests").
				WithDetail("url", target).
				WithDetail("retry_after", wait.String()),
			retryIn: nonZero(wait),
			reason:  "rate_limit",
		}
	}

	if readErr != nil {
		if isTransient(ctx, readErr) {
			return attemptResult{
				err:     errors.Wrap(readErr, errors.ErrorTypeConnection, "failed to read response body").WithDetail("url", target),
				retryIn: nonZero(c.config.RetryBackoff),
				reason:  "transient",
			}
		}
		return attemptResult{err: errors.Wrap(readErr, errors.ErrorTypeData, "failed to read response body").WithDetail("url", target)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return attemptResult{err: errors.Newf(errors.ErrorTypeUpstream,
			"API error [%d %s] URL: %s Body: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), target, truncate(string(raw), maxErrorBody)).
			WithDetail("status", resp.StatusCode).
			WithDetail("url", target)}
	}

	decoded, err := jsonpool.DecodeObject(bytes.NewReader(raw))
	if err != nil {
		return attemptResult{err: errors.Wrap(err, errors.ErrorTypeData, "failed to decode response").
			WithDetail("url", target).
			WithDetail("body", truncate(string(raw), maxErrorBody))}
	}
	return attemptResult{body: Response(decoded)}
}

func (c *ResilientClient) classifyTransportError(ctx context.Context, target string, err error) attemptResult {
	if isTransient(ctx, err) {
		errType := errors.ErrorTypeConnection
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			errType = errors.ErrorTypeTimeout
		}
		return attemptResult{
			err:     errors.Wrap(err, errType, "transient network error").WithDetail("url", target),
			retryIn: nonZero(c.config.RetryBackoff),
			reason:  "transient",
		}
	}
	if ctx.Err() != nil {
		return attemptResult{err: errors.Wrap(err, errors.ErrorTypeTimeout, "request cancelled").WithDetail("url", target)}
	}
	return attemptResult{err: errors.Wrap(err, errors.ErrorTypeInternal, "request failed").WithDetail("url", target)}
}

// TestConnection fetches the location record. It succeeds only when the
// body identifies a location.
func (c *ResilientClient) TestConnection(ctx context.Context, locationID string) error {
	body, err := c.Do(ctx, Request{Path: "/locations/" + url.PathEscape(locationID)})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "connection test failed").
			WithDetail("location_id", locationID)
	}
	for _, key := range []string{"location", "id", "name"} {
		if body.Has(key) {
			return nil
		}
	}
	return errors.New(errors.ErrorTypeConnection, "connection test failed: response does not describe a location").
		WithDetail("location_id", locationID)
}

func (c *ResilientClient) buildURL(path string, params Params) string {
	u := *c.baseURL
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + path
	u.RawPath = ""

	q := url.Values{}
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// isTransient reports connection resets and timeouts that were not caused
// by the caller's own context.
func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// parseRetryAfter reads a delay in seconds, falling back to def.
func parseRetryAfter(v string, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

// nonZero keeps a zero wait retryable.
func nonZero(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Nanosecond
	}
	return d
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
