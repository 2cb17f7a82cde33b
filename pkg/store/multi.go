package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/pkg/metrics"
)

// Mirror is a secondary backend receiving best-effort copies.
type Mirror struct {
	Name  string
	Store Store
}

// MultiStore saves to a primary backend and copies every save to its
// mirrors. Mirror failures are logged and counted; only the primary's
// outcome is returned. Reads and listings come from the primary.
type MultiStore struct {
	primary Store
	mirrors []Mirror
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewMultiStore combines primary with mirrors.
func NewMultiStore(primary Store, mirrors []Mirror, opts ...Option) *MultiStore {
	o := buildOptions(opts)
	return &MultiStore{
		primary: primary,
		mirrors: mirrors,
		logger:  o.logger.With(zap.String("store", "multi")),
		metrics: o.metrics,
	}
}

// Save implements Store.
func (m *MultiStore) Save(ctx context.Context, domain string, data interface{}, locationID, description string) (*Ack, error) {
	ack, err := m.primary.Save(ctx, domain, data, locationID, description)
	if err != nil {
		return nil, err
	}
	for _, mirror := range m.mirrors {
		if _, merr := mirror.Store.Save(ctx, domain, data, locationID, description); merr != nil {
			m.logger.Warn("mirror save failed",
				zap.String("mirror", mirror.Name),
				zap.String("domain", domain),
				zap.Error(merr))
			m.metrics.IncPersistenceError(mirror.Name)
		}
	}
	return ack, nil
}

// Read implements Store.
func (m *MultiStore) Read(ctx context.Context, domain, locationID string) (*Snapshot, error) {
	return m.primary.Read(ctx, domain, locationID)
}

// List implements Store.
func (m *MultiStore) List(ctx context.Context, locationID string) (Manifest, error) {
	return m.primary.List(ctx, locationID)
}

// Close closes every backend and returns the first error.
func (m *MultiStore) Close() error {
	first := m.primary.Close()
	for _, mirror := range m.mirrors {
		if err := mirror.Store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
