package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/pkg/clients"
	"github.com/ajitpratap0/ghlexport/pkg/errors"
	"github.com/ajitpratap0/ghlexport/pkg/metrics"
)

// Registry holds the known extractors in run order.
type Registry struct {
	order    []string
	byName   map[string]Extractor
	defaults []string
	cache    *CachingFetcher
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	cacheSize int
	metrics   *metrics.Metrics
	empty     bool
}

// WithCacheSize sets the parent listing cache size.
func WithCacheSize(n int) RegistryOption {
	return func(o *registryOptions) { o.cacheSize = n }
}

// WithRegistryMetrics records fan-out skips.
func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(o *registryOptions) { o.metrics = m }
}

// WithoutDefaults creates an empty registry; domains are added with Register.
func WithoutDefaults() RegistryOption {
	return func(o *registryOptions) { o.empty = true }
}

// NewRegistry creates a registry holding every known domain. Single calls
// go through an LRU cache in front of client; paged listings go straight
// through paginator.
func NewRegistry(client clients.Fetcher, paginator *clients.Paginator, logger *zap.Logger, opts ...RegistryOption) (*Registry, error) {
	o := registryOptions{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := NewCachingFetcher(client, o.cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create response cache")
	}

	r := &Registry{
		byName: make(map[string]Extractor),
		cache:  cache,
	}
	if o.empty {
		return r, nil
	}

	deps := Deps{
		Fetch:     cache,
		Paginator: paginator,
		Logger:    logger.With(zap.String("component", "extractor")),
		Metrics:   o.metrics,
	}
	for _, reg := range domainTable(deps) {
		e := reg.extractor
		if reg.catalog != nil {
			e = &filterable{Extractor: e, catalog: reg.catalog, fetch: cache}
		}
		if err := r.Register(e, reg.isDefault); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an extractor. Names are unique.
func (r *Registry) Register(e Extractor, isDefault bool) error {
	name := e.Name()
	if _, exists := r.byName[name]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "extractor %q already registered", name)
	}
	r.byName[name] = e
	r.order = append(r.order, name)
	if isDefault {
		r.defaults = append(r.defaults, name)
	}
	return nil
}

// Lookup returns the extractor registered under name.
func (r *Registry) Lookup(name string) (Extractor, bool) {
	e, ok := r.byName[normalize(name)]
	return e, ok
}

// Names returns every registered name in run order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Defaults returns the names run when no domains are requested.
func (r *Registry) Defaults() []string {
	return append([]string(nil), r.defaults...)
}

// IsDefault reports whether name is in the default run set.
func (r *Registry) IsDefault(name string) bool {
	for _, d := range r.defaults {
		if d == name {
			return true
		}
	}
	return false
}

// Resolve maps requested names to extractors in registry order. An empty
// request yields the default set. Unknown names are returned separately
// so the caller can warn and carry on.
func (r *Registry) Resolve(names []string) ([]Extractor, []string) {
	if len(names) == 0 {
		out := make([]Extractor, 0, len(r.defaults))
		for _, name := range r.defaults {
			out = append(out, r.byName[name])
		}
		return out, nil
	}

	requested := make(map[string]bool, len(names))
	var unknown []string
	for _, name := range names {
		n := normalize(name)
		if n == "" || requested[n] {
			continue
		}
		if _, ok := r.byName[n]; !ok {
			unknown = append(unknown, n)
			continue
		}
		requested[n] = true
	}

	out := make([]Extractor, 0, len(requested))
	for _, name := range r.order {
		if requested[name] {
			out = append(out, r.byName[name])
		}
	}
	return out, unknown
}

// FilterOptions returns the filter catalogue of a domain.
func (r *Registry) FilterOptions(ctx context.Context, name, locationID string) (*Catalog, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "unknown domain %q", name)
	}
	f, ok := e.(Filterable)
	if !ok {
		return &Catalog{Items: []FilterOption{}}, nil
	}
	catalog, err := f.FilterOptions(ctx, locationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("filter options for %s", name))
	}
	return catalog, nil
}

// ResetCache forgets cached parent listings. Call it between runs.
func (r *Registry) ResetCache() {
	r.cache.Purge()
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
