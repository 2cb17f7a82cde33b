package extract

import (
	"context"
	"strings"

	"github.com/ajitpratap0/ghlexport/pkg/clients"
	"github.com/ajitpratap0/ghlexport/pkg/models"
)

// Filter identifiers understood by the opportunities domain.
const (
	pipelinePrefix = "pipeline:"
	stagePrefix    = "stage:"
)

// FilterByID keeps records whose id is selected.
func FilterByID(sel Selection, records []models.Record) []models.Record {
	return FilterByField("id")(sel, records)
}

// FilterByField keeps records whose field value is selected.
func FilterByField(field string) Filter {
	return func(sel Selection, records []models.Record) []models.Record {
		out := make([]models.Record, 0, len(records))
		for _, r := range records {
			if sel.Has(r.String(field)) {
				out = append(out, r)
			}
		}
		return out
	}
}

// FilterTaskStatus keeps completed and/or pending tasks.
func FilterTaskStatus(sel Selection, records []models.Record) []models.Record {
	wantDone, wantPending := sel.Has("completed"), sel.Has("pending")
	if wantDone == wantPending {
		return records
	}
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		done, _ := r["completed"].(bool)
		if done == wantDone {
			out = append(out, r)
		}
	}
	return out
}

// opportunitySelection splits pipeline and stage filters. stages maps a
// pipeline id to its selected stage ids.
type opportunitySelection struct {
	pipelines map[string]bool
	stages    map[string]map[string]bool
}

func parseOpportunitySelection(sel Selection) opportunitySelection {
	s := opportunitySelection{pipelines: map[string]bool{}, stages: map[string]map[string]bool{}}
	for _, id := range sel {
		switch {
		case strings.HasPrefix(id, pipelinePrefix):
			s.pipelines[strings.TrimPrefix(id, pipelinePrefix)] = true
		case strings.HasPrefix(id, stagePrefix):
			parts := strings.SplitN(strings.TrimPrefix(id, stagePrefix), ":", 2)
			if len(parts) != 2 {
				continue
			}
			if s.stages[parts[0]] == nil {
				s.stages[parts[0]] = map[string]bool{}
			}
			s.stages[parts[0]][parts[1]] = true
		}
	}
	return s
}

func (s opportunitySelection) empty() bool {
	return len(s.pipelines) == 0 && len(s.stages) == 0
}

// selectPipelines keeps pipelines named by a pipeline or stage filter, so
// only those are queried upstream.
func selectPipelines(sel Selection, pipelines []models.Record) []models.Record {
	s := parseOpportunitySelection(sel)
	if s.empty() {
		return pipelines
	}
	out := make([]models.Record, 0, len(pipelines))
	for _, p := range pipelines {
		id := p.ID()
		if s.pipelines[id] || s.stages[id] != nil {
			out = append(out, p)
		}
	}
	return out
}

// filterStages narrows a pipeline's opportunities to its selected stages.
// A wholly selected pipeline keeps every stage.
func filterStages(sel Selection, pipeline models.Record, opps []models.Record) []models.Record {
	s := parseOpportunitySelection(sel)
	id := pipeline.ID()
	stages := s.stages[id]
	if s.pipelines[id] || stages == nil {
		return opps
	}
	out := make([]models.Record, 0, len(opps))
	for _, o := range opps {
		if stages[o.String("pipelineStageId")] {
			out = append(out, o)
		}
	}
	return out
}

// CatalogFunc builds a domain's filter catalogue.
type CatalogFunc func(ctx context.Context, f clients.Fetcher, locationID string) (*Catalog, error)

// staticCatalog returns fixed options.
func staticCatalog(items ...FilterOption) CatalogFunc {
	return func(context.Context, clients.Fetcher, string) (*Catalog, error) {
		return &Catalog{Items: items}, nil
	}
}

// listCatalog maps a listing to options. groupField names the record
// field used as the group; defaultGroup applies when it is empty. idFields
// are tried in order for the option id.
type listCatalog struct {
	src          Source
	groupField   string
	defaultGroup string
	idFields     []string
	selectAll    bool
	// fallback is served when the listing fails; nil propagates the error.
	fallback []FilterOption
}

func (lc listCatalog) build(ctx context.Context, f clients.Fetcher, locationID string) (*Catalog, error) {
	body, err := f.Do(ctx, lc.src.request(locationID))
	if err != nil {
		if lc.fallback != nil && degradable(ctx, err) {
			return &Catalog{Items: lc.fallback, SelectAll: lc.selectAll}, nil
		}
		return nil, err
	}

	idFields := lc.idFields
	if len(idFields) == 0 {
		idFields = []string{"id"}
	}

	records := lc.src.records(body)
	items := make([]FilterOption, 0, len(records))
	for _, r := range records {
		opt := FilterOption{Label: r.String("name")}
		for _, field := range idFields {
			if v := r.String(field); v != "" {
				opt.ID = v
				break
			}
		}
		if lc.groupField != "" {
			opt.Group = r.String(lc.groupField)
			if opt.Group == "" {
				opt.Group = lc.defaultGroup
			}
		}
		items = append(items, opt)
	}
	return &Catalog{Items: items, SelectAll: lc.selectAll}, nil
}

// pipelineCatalog lists each pipeline followed by its stages.
func pipelineCatalog(src Source) CatalogFunc {
	return func(ctx context.Context, f clients.Fetcher, locationID string) (*Catalog, error) {
		body, err := f.Do(ctx, src.request(locationID))
		if err != nil {
			return nil, err
		}
		var items []FilterOption
		for _, p := range src.records(body) {
			name := p.String("name")
			items = append(items, FilterOption{ID: pipelinePrefix + p.ID(), Label: name, Group: "Pipelines"})
			stages, _ := p["stages"].([]interface{})
			for _, raw := range stages {
				stage, ok := raw.(map[string]interface{})
				if !ok {
					continue
				}
				s := models.Record(stage)
				items = append(items, FilterOption{
					ID:    stagePrefix + p.ID() + ":" + s.ID(),
					Label: s.String("name"),
					Group: name + " Stages",
				})
			}
		}
		return &Catalog{Items: items}, nil
	}
}

// filterable attaches a catalogue to an extractor.
type filterable struct {
	Extractor
	catalog CatalogFunc
	fetch   clients.Fetcher
}

// FilterOptions implements Filterable.
func (f *filterable) FilterOptions(ctx context.Context, locationID string) (*Catalog, error) {
	return f.catalog(ctx, f.fetch, locationID)
}
