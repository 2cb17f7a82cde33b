// Package store persists domain snapshots and the run summary.
//
// Every backend implements Store: Save appends a new snapshot, Read returns
// the most recent snapshot of a domain for a location, List returns the
// manifest of latest snapshots. File, S3 and GCS backends share the object
// layout of ObjectStore; SQLite, Postgres and Mongo keep one row per save in
// the ghl_exports table (collection for Mongo).
package store

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/pkg/compression"
	"github.com/ajitpratap0/ghlexport/pkg/errors"
	jsonpool "github.com/ajitpratap0/ghlexport/pkg/json"
	"github.com/ajitpratap0/ghlexport/pkg/metrics"
	"github.com/ajitpratap0/ghlexport/pkg/models"
)

const (
	// DefaultTable is the table (or collection) used by the row stores.
	DefaultTable = "ghl_exports"
	// ManifestFile is the manifest object name of the object stores.
	ManifestFile = "_manifest.json"
	// SummaryDomain is the domain name the run summary is saved under.
	SummaryDomain = "_summary"
)

// Store is the persistence contract used by the orchestrator.
type Store interface {
	// Save stores data as the newest snapshot of domain for locationID.
	Save(ctx context.Context, domain string, data interface{}, locationID, description string) (*Ack, error)
	// Read returns the newest snapshot, or nil without error when none exists.
	Read(ctx context.Context, domain, locationID string) (*Snapshot, error)
	// List returns the newest snapshot of every domain saved for locationID.
	List(ctx context.Context, locationID string) (Manifest, error)
	Close() error
}

// Ack confirms a save.
type Ack struct {
	ID         string    `json:"id"`
	Domain     string    `json:"domain"`
	LocationID string    `json:"locationId"`
	Count      int       `json:"count"`
	ExportedAt time.Time `json:"exportedAt"`
	// Location is where the snapshot landed: a path, URI or table name
	Location string `json:"location"`
}

// Snapshot is one saved payload with its metadata.
type Snapshot struct {
	ID          string              `json:"id"`
	Domain      string              `json:"domain"`
	LocationID  string              `json:"locationId"`
	Description string              `json:"description"`
	Count       int                 `json:"count"`
	ExportedAt  time.Time           `json:"exportedAt"`
	Data        jsonpool.RawMessage `json:"data"`
}

// Decode unmarshals the payload into v.
func (s *Snapshot) Decode(v interface{}) error {
	if err := jsonpool.Unmarshal(s.Data, v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode snapshot "+s.Domain)
	}
	return nil
}

// ManifestEntry describes the newest snapshot of a domain.
type ManifestEntry struct {
	ID          string    `json:"id,omitempty"`
	Count       int       `json:"count"`
	ExportedAt  time.Time `json:"exportedAt"`
	Description string    `json:"description,omitempty"`
	Key         string    `json:"file,omitempty"`
}

// Manifest maps domain names to their newest snapshot.
type Manifest map[string]ManifestEntry

// Domains returns the manifest keys in sorted order.
func (m Manifest) Domains() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Option configures a backend.
type Option func(*options)

type options struct {
	logger      *zap.Logger
	metrics     *metrics.Metrics
	compression compression.Algorithm
	clock       func() time.Time
}

// WithLogger sets the backend logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records mirror failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCompression compresses payloads of the object stores.
func WithCompression(a compression.Algorithm) Option {
	return func(o *options) { o.compression = a }
}

// WithClock overrides the time source used for export timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:      zap.NewNop(),
		compression: compression.None,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// document is a payload ready to be written by any backend.
type document struct {
	id          string
	domain      string
	locationID  string
	description string
	count       int
	exportedAt  time.Time
	value       interface{}
	payload     []byte
}

func newDocument(domain string, data interface{}, locationID, description string, now time.Time) (*document, error) {
	if domain == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "domain is required")
	}
	if description == "" {
		description = domain
	}
	value := plainValue(data)
	payload, err := jsonpool.MarshalPretty(value)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypePersistence, "failed to encode "+domain)
	}
	return &document{
		id:          uuid.NewString(),
		domain:      domain,
		locationID:  locationID,
		description: description,
		count:       models.CountRecords(value),
		exportedAt:  now.UTC(),
		value:       value,
		payload:     payload,
	}, nil
}

func (d *document) ack(location string) *Ack {
	return &Ack{
		ID:         d.id,
		Domain:     d.domain,
		LocationID: d.locationID,
		Count:      d.count,
		ExportedAt: d.exportedAt,
		Location:   location,
	}
}

// plainValue unwraps payload types that know their JSON-ready value.
func plainValue(data interface{}) interface{} {
	if v, ok := data.(interface{ Value() interface{} }); ok {
		return v.Value()
	}
	return data
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func tableName(name string) (string, error) {
	if name == "" {
		return DefaultTable, nil
	}
	if !identifier.MatchString(name) {
		return "", errors.Newf(errors.ErrorTypeConfig, "invalid table name %q", name)
	}
	return name, nil
}

func persistenceError(err error, backend, op, domain string) error {
	return errors.Wrap(err, errors.ErrorTypePersistence, backend+" "+op+" failed").
		WithDetail("backend", backend).
		WithDetail("domain", domain)
}
