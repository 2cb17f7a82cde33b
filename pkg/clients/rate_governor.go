package clients

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
	"github.com/ajitpratap0/ghlexport/pkg/metrics"
)

// Rate-limit response headers reported by the upstream on every call.
const (
	HeaderBurstRemaining = "X-Ratelimit-Remaining"
	HeaderBurstInterval  = "X-Ratelimit-Interval-Milliseconds"
	HeaderBurstMax       = "X-Ratelimit-Max"
	HeaderDailyLimit     = "X-Ratelimit-Limit-Daily"
	HeaderDailyRemaining = "X-Ratelimit-Daily-Remaining"
)

// Full-health values assumed when a header is absent or unparsable.
const (
	defaultBurstRemaining = 100
	defaultBurstInterval  = 10000
	defaultBurstMax       = 100
	defaultDailyLimit     = 200000
	defaultDailyRemaining = 200000
)

// BudgetState is the quota picture after the most recent completed call.
type BudgetState struct {
	BurstRemaining  int           `json:"burstRemaining"`
	BurstMax        int           `json:"burstMax"`
	BurstWindow     time.Duration `json:"burstWindow"`
	DailyRemaining  int           `json:"dailyRemaining"`
	DailyMax        int           `json:"dailyMax"`
	SessionRequests int64         `json:"sessionRequestCount"`
}

// BurstPercent is the share of the burst window still available.
func (b BudgetState) BurstPercent() float64 {
	return percent(b.BurstRemaining, b.BurstMax)
}

// DailyPercent is the share of the daily budget still available.
func (b BudgetState) DailyPercent() float64 {
	return percent(b.DailyRemaining, b.DailyMax)
}

func percent(remaining, max int) float64 {
	if max <= 0 {
		return 0
	}
	return float64(remaining) / float64(max) * 100
}

// GovernorConfig holds the thresholds of the budget policy.
type GovernorConfig struct {
	// DailyFloor aborts the run when daily remaining drops to this value or below
	DailyFloor int
	// BurstFloor pauses when burst remaining drops to this value or below
	BurstFloor int
	// BurstPadding is added to the burst window when pausing
	BurstPadding time.Duration
}

// DefaultGovernorConfig returns the thresholds used against the production API.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		DailyFloor:   100,
		BurstFloor:   5,
		BurstPadding: 500 * time.Millisecond,
	}
}

// RateGovernor inspects quota headers after every completed call and
// suspends or aborts the caller. One instance is owned by one run; it is
// never shared across runs so budget accounting stays isolated.
type RateGovernor struct {
	config  GovernorConfig
	logger  *zap.Logger
	sleep   Sleeper
	metrics *metrics.Metrics

	requests atomic.Int64

	mu    sync.Mutex
	state BudgetState
}

// GovernorOption configures a RateGovernor.
type GovernorOption func(*RateGovernor)

// WithGovernorSleeper replaces the sleeper used for burst pauses.
func WithGovernorSleeper(s Sleeper) GovernorOption {
	return func(g *RateGovernor) { g.sleep = s }
}

// WithGovernorConfig replaces the default thresholds.
func WithGovernorConfig(cfg GovernorConfig) GovernorOption {
	return func(g *RateGovernor) { g.config = cfg }
}

// WithGovernorMetrics records budget gauges and pauses.
func WithGovernorMetrics(m *metrics.Metrics) GovernorOption {
	return func(g *RateGovernor) { g.metrics = m }
}

// NewRateGovernor creates a governor with full-health initial state.
func NewRateGovernor(logger *zap.Logger, opts ...GovernorOption) *RateGovernor {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &RateGovernor{
		config: DefaultGovernorConfig(),
		logger: logger.With(zap.String("component", "rate_governor")),
		sleep:  Sleep,
		state:  ParseBudget(nil),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Observe applies the budget policy to the headers of a completed call.
// The session counter is incremented first, whatever the response status.
//
// It returns an ErrorTypeQuotaExhausted error when the daily budget is at or
// below the floor. Otherwise, when the burst budget is at or below its floor,
// it sleeps for the burst window plus padding before returning.
func (g *RateGovernor) Observe(ctx context.Context, h http.Header) error {
	count := g.requests.Add(1)

	budget := ParseBudget(h)
	budget.SessionRequests = count

	g.mu.Lock()
	g.state = budget
	g.mu.Unlock()

	g.metrics.SetBudget(budget.BurstRemaining, budget.DailyRemaining)

	g.logger.Debug("rate limit status",
		zap.Int("burst_remaining", budget.BurstRemaining),
		zap.Int("burst_max", budget.BurstMax),
		zap.String("burst_pct", strconv.FormatFloat(budget.BurstPercent(), 'f', 0, 64)),
		zap.Int("daily_remaining", budget.DailyRemaining),
		zap.Int("daily_max", budget.DailyMax),
		zap.String("daily_pct", strconv.FormatFloat(budget.DailyPercent(), 'f', 0, 64)),
		zap.Int64("session_requests", count))

	if budget.DailyRemaining <= g.config.DailyFloor {
		g.logger.Error("daily rate limit nearly exhausted, aborting",
			zap.Int("daily_remaining", budget.DailyRemaining))
		return errors.Newf(errors.ErrorTypeQuotaExhausted,
			"daily rate limit nearly exhausted (%d remaining)", budget.DailyRemaining).
			WithDetail("daily_remaining", budget.DailyRemaining).
			WithDetail("daily_max", budget.DailyMax)
	}

	if budget.BurstRemaining <= g.config.BurstFloor {
		wait := budget.BurstWindow + g.config.BurstPadding
		g.logger.Warn("burst limit approaching, pausing",
			zap.Int("burst_remaining", budget.BurstRemaining),
			zap.Duration("pause", wait))
		g.metrics.IncPause()
		if err := g.sleep(ctx, wait); err != nil {
			return errors.Wrap(err, errors.ErrorTypeRateLimit, "burst pause interrupted")
		}
		g.logger.Info("resumed after rate-limit pause")
	}

	return nil
}

// State returns a copy of the latest budget.
func (g *RateGovernor) State() BudgetState {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.state
	s.SessionRequests = g.requests.Load()
	return s
}

// SessionRequests returns the number of completed calls observed.
func (g *RateGovernor) SessionRequests() int64 {
	return g.requests.Load()
}

// ParseBudget reads the quota headers, substituting full-health defaults
// for absent or unparsable values. A nil header yields all defaults.
func ParseBudget(h http.Header) BudgetState {
	return BudgetState{
		BurstRemaining: headerInt(h, HeaderBurstRemaining, defaultBurstRemaining),
		BurstWindow:    time.Duration(headerInt(h, HeaderBurstInterval, defaultBurstInterval)) * time.Millisecond,
		BurstMax:       headerInt(h, HeaderBurstMax, defaultBurstMax),
		DailyMax:       headerInt(h, HeaderDailyLimit, defaultDailyLimit),
		DailyRemaining: headerInt(h, HeaderDailyRemaining, defaultDailyRemaining),
	}
}

func headerInt(h http.Header, key string, def int) int {
	if h == nil {
		return def
	}
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
