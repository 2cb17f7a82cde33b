package models

// Derived count keys reported next to a domain's primary count.
const (
	DerivedTotalEvents     = "totalEvents"
	DerivedPipelineCount   = "pipelineCount"
	DerivedSurveyCount     = "surveyCount"
	DerivedSubmissionCount = "submissionCount"
)

// ExtractionResult is the outcome of one domain extraction. It is created
// once per domain run and handed straight to persistence.
type ExtractionResult struct {
	Domain string
	Count  int
	Data   DomainData
	// DerivedCounts holds secondary totals such as child records.
	DerivedCounts map[string]int
	// Warnings collects non-fatal degradations: skipped fan-out children,
	// failed optional sections, truncated pagination.
	Warnings []string
	// Truncated is set when any listing hit the page cap.
	Truncated bool
}

// NewExtractionResult creates a result for domain.
func NewExtractionResult(domain string, data DomainData, count int) *ExtractionResult {
	return &ExtractionResult{
		Domain:        domain,
		Count:         count,
		Data:          data,
		DerivedCounts: make(map[string]int),
	}
}

// AddWarning appends a warning.
func (r *ExtractionResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// SetDerived records a derived count.
func (r *ExtractionResult) SetDerived(key string, n int) {
	if r.DerivedCounts == nil {
		r.DerivedCounts = make(map[string]int)
	}
	r.DerivedCounts[key] = n
}
