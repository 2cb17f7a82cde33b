// Package extract turns upstream listings into per-domain extraction
// results. Each domain picks one fetch shape (a single list call, a paged
// listing, a parent to child fan-out, or a composite of sections) and an
// optional filter over the records it returns.
package extract

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/pkg/clients"
	"github.com/ajitpratap0/ghlexport/pkg/errors"
	"github.com/ajitpratap0/ghlexport/pkg/metrics"
	"github.com/ajitpratap0/ghlexport/pkg/models"
)

// Extractor produces one ExtractionResult for a domain.
type Extractor interface {
	Name() string
	Description() string
	Extract(ctx context.Context, locationID string, sel Selection) (*models.ExtractionResult, error)
}

// FilterOption is one selectable narrowing of a domain.
type FilterOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Group string `json:"group,omitempty"`
}

// Catalog lists the filter options of a domain. SelectAll marks domains
// whose options start out all selected.
type Catalog struct {
	Items     []FilterOption `json:"items"`
	SelectAll bool           `json:"selectAll"`
}

// Filterable is implemented by extractors that expose a filter catalogue.
type Filterable interface {
	FilterOptions(ctx context.Context, locationID string) (*Catalog, error)
}

// Selection is the set of filter identifiers chosen for one domain. An
// empty selection narrows nothing.
type Selection []string

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	return len(s) == 0
}

// Has reports whether id is selected.
func (s Selection) Has(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Deps are the collaborators shared by every extractor of a registry.
type Deps struct {
	// Fetch issues single calls; parent listings go through the cache.
	Fetch     clients.Fetcher
	Paginator *clients.Paginator
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Source names one upstream listing.
type Source struct {
	// Path may contain {locationId}.
	Path string
	// LocationParam is the query parameter carrying the location, if any.
	LocationParam string
	Params        clients.Params
	// DataKey holds the record array; "data" is always tried after it.
	DataKey string
}

// byLocation is a listing scoped by a locationId query parameter.
func byLocation(path, key string) Source {
	return Source{Path: path, LocationParam: "locationId", DataKey: key}
}

// underLocation is a listing nested in the location path.
func underLocation(path, key string) Source {
	return Source{Path: "/locations/{locationId}" + path, DataKey: key}
}

func (s Source) path(locationID string) string {
	return strings.ReplaceAll(s.Path, "{locationId}", url.PathEscape(locationID))
}

func (s Source) params(locationID string) clients.Params {
	p := make(clients.Params, len(s.Params)+2)
	for k, v := range s.Params {
		p[k] = v
	}
	if s.LocationParam != "" {
		p[s.LocationParam] = locationID
	}
	return p
}

func (s Source) request(locationID string) clients.Request {
	return clients.Request{Path: s.path(locationID), Params: s.params(locationID)}
}

func (s Source) records(body clients.Response) []models.Record {
	keys := []string{"data"}
	if s.DataKey != "" && s.DataKey != "data" {
		keys = []string{s.DataKey, "data"}
	}
	return models.RecordsFrom(body.Records(keys...))
}

// fetchList issues one call and reads its record array.
func fetchList(ctx context.Context, d Deps, src Source, locationID string) ([]models.Record, error) {
	body, err := d.Fetch.Do(ctx, src.request(locationID))
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), "fetch "+src.Path)
	}
	return src.records(body), nil
}

// fetchPaged drains a paged listing.
func fetchPaged(ctx context.Context, d Deps, src Source, locationID string, extra clients.Params) ([]models.Record, *clients.PageResult, error) {
	params := src.params(locationID)
	for k, v := range extra {
		params[k] = v
	}
	res, err := d.Paginator.FetchAll(ctx, clients.PageRequest{
		Path:    src.path(locationID),
		Params:  params,
		DataKey: src.DataKey,
	})
	if err != nil {
		return nil, res, err
	}
	return models.RecordsFrom(res.Records), res, nil
}

// degradable reports whether a best-effort step may swallow err. An
// exhausted quota and a cancelled run always propagate.
func degradable(ctx context.Context, err error) bool {
	return ctx.Err() == nil && !errors.IsFatal(err)
}
