package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/pkg/clients"
	"github.com/ajitpratap0/ghlexport/pkg/errors"
	"github.com/ajitpratap0/ghlexport/pkg/logger"
	"github.com/ajitpratap0/ghlexport/pkg/models"
)

// Filter narrows records according to a selection. It is only called with
// a non-empty selection.
type Filter func(sel Selection, records []models.Record) []models.Record

func applyFilter(f Filter, sel Selection, records []models.Record) []models.Record {
	if f == nil || sel.Empty() {
		return records
	}
	return f(sel, records)
}

// base carries the identity shared by every strategy.
type base struct {
	name        string
	description string
	deps        Deps
}

func (b base) Name() string        { return b.name }
func (b base) Description() string { return b.description }

func (b base) log(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, b.deps.logger()).With(zap.String("extractor", b.name))
}

// degrade records a swallowed failure on result.
func (b base) degrade(ctx context.Context, result *models.ExtractionResult, what string, err error) {
	msg := fmt.Sprintf("%s unavailable: %v", what, err)
	result.AddWarning(msg)
	b.log(ctx).Warn("optional fetch failed", zap.String("what", what), zap.Error(err))
}

// ListExtractor reads one unpaged listing.
type ListExtractor struct {
	base
	Source Source
	// Optional turns a failed call into an empty result with a warning.
	Optional bool
	Filter   Filter
}

// NewListExtractor creates a single-call list extractor.
func NewListExtractor(d Deps, name, description string, src Source) *ListExtractor {
	return &ListExtractor{base: base{name: name, description: description, deps: d}, Source: src}
}

// Extract implements Extractor.
func (e *ListExtractor) Extract(ctx context.Context, locationID string, sel Selection) (*models.ExtractionResult, error) {
	records, err := fetchList(ctx, e.deps, e.Source, locationID)
	if err != nil {
		if !e.Optional || !degradable(ctx, err) {
			return nil, err
		}
		result := models.NewExtractionResult(e.name, models.NewRecordData(e.name, nil), 0)
		e.degrade(ctx, result, e.Source.Path, err)
		return result, nil
	}
	records = applyFilter(e.Filter, sel, records)
	return models.NewExtractionResult(e.name, models.NewRecordData(e.name, records), len(records)), nil
}

// PagedExtractor drains a paged listing.
type PagedExtractor struct {
	base
	Source   Source
	Optional bool
	Filter   Filter
}

// NewPagedExtractor creates a paginated list extractor.
func NewPagedExtractor(d Deps, name, description string, src Source) *PagedExtractor {
	return &PagedExtractor{base: base{name: name, description: description, deps: d}, Source: src}
}

// Extract implements Extractor.
func (e *PagedExtractor) Extract(ctx context.Context, locationID string, sel Selection) (*models.ExtractionResult, error) {
	records, page, err := fetchPaged(ctx, e.deps, e.Source, locationID, nil)
	if err != nil {
		if !e.Optional || !degradable(ctx, err) {
			return nil, err
		}
		result := models.NewExtractionResult(e.name, models.NewRecordData(e.name, nil), 0)
		e.degrade(ctx, result, e.Source.Path, err)
		return result, nil
	}

	records = applyFilter(e.Filter, sel, records)
	result := models.NewExtractionResult(e.name, models.NewRecordData(e.name, records), len(records))
	if page.Truncated {
		result.Truncated = true
		result.AddWarning(page.Warning)
	}
	return result, nil
}

// ObjectExtractor reads a single object, such as the location record.
type ObjectExtractor struct {
	base
	Source Source
	// ObjectKey wraps the object in the response; the whole body is used
	// when the key is absent.
	ObjectKey string
}

// NewObjectExtractor creates a single-object extractor.
func NewObjectExtractor(d Deps, name, description string, src Source, key string) *ObjectExtractor {
	return &ObjectExtractor{base: base{name: name, description: description, deps: d}, Source: src, ObjectKey: key}
}

// Extract implements Extractor.
func (e *ObjectExtractor) Extract(ctx context.Context, locationID string, _ Selection) (*models.ExtractionResult, error) {
	body, err := e.deps.Fetch.Do(ctx, e.Source.request(locationID))
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), "fetch "+e.Source.Path)
	}
	obj := body.Object(e.ObjectKey)
	if obj == nil {
		obj = map[string]interface{}(body)
	}
	return models.NewExtractionResult(e.name, models.NewSectionData(e.name, obj), 1), nil
}

// AttachMode selects how fan-out children join their parent.
type AttachMode int

const (
	// AttachNest stores children on a copy of their parent.
	AttachNest AttachMode = iota
	// AttachFlatten emits children as one list, labelled with the parent.
	AttachFlatten
)

// ChildOutcome is the per-parent result of a fan-out: either the parent's
// children, or the error that made them unavailable.
type ChildOutcome struct {
	Parent    models.Record
	Children  []models.Record
	Truncated bool
	Err       error
}

// Skipped reports whether the parent's children could not be fetched.
func (o ChildOutcome) Skipped() bool {
	return o.Err != nil
}

// FanOutExtractor lists parents, then pages through each parent's
// children. A failure on one parent degrades to an empty child list and a
// warning; siblings and the domain carry on.
type FanOutExtractor struct {
	base
	Parent Source
	Child  Source
	// ChildParam carries the parent id on each child request.
	ChildParam string
	Mode       AttachMode
	// NestKey and CountKey name the fields set on nested parents.
	NestKey  string
	CountKey string
	// LabelKey names the field set on flattened children.
	LabelKey string
	// ParentSection and ChildSection, when set, emit an object holding
	// both lists instead of a single list.
	ParentSection string
	ChildSection  string
	// CountChildren counts children instead of parents.
	CountChildren  bool
	ParentCountKey string
	ChildCountKey  string
	// SelectParents narrows the parent list before fan-out.
	SelectParents Filter
	// FilterChildren narrows one parent's children.
	FilterChildren func(sel Selection, parent models.Record, children []models.Record) []models.Record
}

// NewFanOutExtractor creates a parent to child extractor.
func NewFanOutExtractor(d Deps, name, description string, parent, child Source, childParam string) *FanOutExtractor {
	return &FanOutExtractor{
		base:       base{name: name, description: description, deps: d},
		Parent:     parent,
		Child:      child,
		ChildParam: childParam,
	}
}

// Extract implements Extractor.
func (e *FanOutExtractor) Extract(ctx context.Context, locationID string, sel Selection) (*models.ExtractionResult, error) {
	parents, err := fetchList(ctx, e.deps, e.Parent, locationID)
	if err != nil {
		return nil, err
	}
	parents = applyFilter(e.SelectParents, sel, parents)

	outcomes, err := e.FanOut(ctx, locationID, sel, parents)
	if err != nil {
		return nil, err
	}
	return e.assemble(outcomes), nil
}

// FanOut fetches the children of each parent in order. It only fails for
// errors that must stop the run; any other per-parent failure is captured
// in that parent's outcome.
func (e *FanOutExtractor) FanOut(ctx context.Context, locationID string, sel Selection, parents []models.Record) ([]ChildOutcome, error) {
	outcomes := make([]ChildOutcome, 0, len(parents))
	for _, parent := range parents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		children, page, err := fetchPaged(ctx, e.deps, e.Child, locationID, clients.Params{e.ChildParam: parent.ID()})
		if err != nil {
			if !degradable(ctx, err) {
				return nil, err
			}
			e.deps.Metrics.IncFanOutSkip(e.name)
			e.log(ctx).Warn("skipping children of parent",
				zap.String("parent_id", parent.ID()),
				zap.String("parent", parent.DisplayName()),
				zap.Error(err))
			outcomes = append(outcomes, ChildOutcome{Parent: parent, Children: []models.Record{}, Err: err})
			continue
		}

		if e.FilterChildren != nil && !sel.Empty() {
			children = e.FilterChildren(sel, parent, children)
		}
		outcomes = append(outcomes, ChildOutcome{Parent: parent, Children: children, Truncated: page.Truncated})
	}
	return outcomes, nil
}

func (e *FanOutExtractor) assemble(outcomes []ChildOutcome) *models.ExtractionResult {
	parents := make([]models.Record, 0, len(outcomes))
	children := make([]models.Record, 0)
	var warnings []string
	truncated := false

	for _, o := range outcomes {
		if o.Skipped() {
			warnings = append(warnings, fmt.Sprintf("%s: children of %q (%s) skipped: %v",
				e.name, o.Parent.DisplayName(), o.Parent.ID(), o.Err))
		}
		if o.Truncated {
			truncated = true
			warnings = append(warnings, fmt.Sprintf("%s: children of %q (%s) truncated at the page cap",
				e.name, o.Parent.DisplayName(), o.Parent.ID()))
		}

		switch e.Mode {
		case AttachNest:
			p := clone(o.Parent)
			p[e.NestKey] = o.Children
			if e.CountKey != "" {
				p[e.CountKey] = len(o.Children)
			}
			parents = append(parents, p)
			children = append(children, o.Children...)
		case AttachFlatten:
			parents = append(parents, o.Parent)
			label := o.Parent.DisplayName()
			for _, c := range o.Children {
				c = clone(c)
				c[e.LabelKey] = label
				children = append(children, c)
			}
		}
	}

	var data models.DomainData
	switch {
	case e.ParentSection != "":
		data = models.NewSectionData(e.name, map[string]interface{}{
			e.ParentSection: parents,
			e.ChildSection:  children,
		})
	case e.Mode == AttachFlatten:
		data = models.NewRecordData(e.name, children)
	default:
		data = models.NewRecordData(e.name, parents)
	}

	count := len(parents)
	if e.CountChildren {
		count = len(children)
	}
	result := models.NewExtractionResult(e.name, data, count)
	if e.ParentCountKey != "" {
		result.SetDerived(e.ParentCountKey, len(parents))
	}
	if e.ChildCountKey != "" {
		result.SetDerived(e.ChildCountKey, len(children))
	}
	result.Warnings = warnings
	result.Truncated = truncated
	return result
}

// Section is one named part of a composite domain.
type Section struct {
	Key    string
	Source Extractor
	// Optional sections degrade to an empty list on failure.
	Optional bool
	// Omit drops an optional section entirely on failure.
	Omit bool
	// Filtered passes the domain selection to the section.
	Filtered bool
	// DerivedKey reports the section's count as a derived count.
	DerivedKey string
}

// CountFunc computes a composite's primary count from its section results.
type CountFunc func(sections map[string]*models.ExtractionResult) int

// CountFixed always reports n.
func CountFixed(n int) CountFunc {
	return func(map[string]*models.ExtractionResult) int { return n }
}

// CountSum adds the section counts.
func CountSum(sections map[string]*models.ExtractionResult) int {
	total := 0
	for _, r := range sections {
		total += r.Count
	}
	return total
}

// CountOf reports one section's count.
func CountOf(key string) CountFunc {
	return func(sections map[string]*models.ExtractionResult) int {
		if r, ok := sections[key]; ok {
			return r.Count
		}
		return 0
	}
}

// CompositeExtractor assembles several sections into one object.
type CompositeExtractor struct {
	base
	Sections []Section
	Count    CountFunc
}

// NewCompositeExtractor creates a sectioned extractor.
func NewCompositeExtractor(d Deps, name, description string, count CountFunc, sections ...Section) *CompositeExtractor {
	return &CompositeExtractor{
		base:     base{name: name, description: description, deps: d},
		Sections: sections,
		Count:    count,
	}
}

// Extract implements Extractor.
func (e *CompositeExtractor) Extract(ctx context.Context, locationID string, sel Selection) (*models.ExtractionResult, error) {
	values := make(map[string]interface{}, len(e.Sections))
	results := make(map[string]*models.ExtractionResult, len(e.Sections))
	var warnings []string
	truncated := false
	derived := make(map[string]int)

	for _, sec := range e.Sections {
		var secSel Selection
		if sec.Filtered {
			secSel = sel
		}

		r, err := sec.Source.Extract(ctx, locationID, secSel)
		if err != nil {
			if !sec.Optional || !degradable(ctx, err) {
				return nil, errors.Wrap(err, errors.TypeOf(err), "section "+sec.Key)
			}
			e.log(ctx).Warn("optional section failed", zap.String("section", sec.Key), zap.Error(err))
			warnings = append(warnings, fmt.Sprintf("%s: %s unavailable: %v", e.name, sec.Key, err))
			if sec.Omit {
				continue
			}
			r = models.NewExtractionResult(sec.Key, models.NewRecordData(sec.Key, nil), 0)
		}

		values[sec.Key] = r.Data.Value()
		results[sec.Key] = r
		warnings = append(warnings, r.Warnings...)
		truncated = truncated || r.Truncated
		if sec.DerivedKey != "" {
			derived[sec.DerivedKey] = r.Count
		}
	}

	count := len(values)
	if e.Count != nil {
		count = e.Count(results)
	}
	result := models.NewExtractionResult(e.name, models.NewSectionData(e.name, values), count)
	result.Warnings = warnings
	result.Truncated = truncated
	for k, v := range derived {
		result.SetDerived(k, v)
	}
	return result, nil
}

func clone(r models.Record) models.Record {
	out := make(models.Record, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	return out
}
