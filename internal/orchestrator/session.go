package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
)

// Session remembers which domains were extracted successfully by this
// process. It gates applying a domain's snapshot to a target: the gate is
// in memory only and does not survive a restart.
type Session struct {
	mu        sync.RWMutex
	extracted map[string]time.Time
}

// NewSession creates an empty ledger.
func NewSession() *Session {
	return &Session{extracted: make(map[string]time.Time)}
}

// MarkExtracted records a successful extraction of domain.
func (s *Session) MarkExtracted(domain string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extracted[domain] = at
}

// Extracted reports whether domain was extracted and when.
func (s *Session) Extracted(domain string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.extracted[domain]
	return at, ok
}

// RequireExtracted fails unless domain was extracted in this session.
func (s *Session) RequireExtracted(domain string) error {
	if _, ok := s.Extracted(domain); !ok {
		return errors.Newf(errors.ErrorTypePrecondition,
			"domain %q has not been extracted in this session; run an extraction first", domain).
			WithDetail("domain", domain)
	}
	return nil
}

// Domains lists the extracted domains in sorted order.
func (s *Session) Domains() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.extracted))
	for d := range s.extracted {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
