package models

import (
	"fmt"
	"time"
)

// Module statuses as written to the run summary.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ModuleResult is one domain's line in the run summary.
type ModuleResult struct {
	Module        string   `json:"module"`
	Count         int      `json:"count"`
	File          *string  `json:"file"`
	Elapsed       string   `json:"elapsed"`
	Status        string   `json:"status"`
	Error         string   `json:"error,omitempty"`
	TotalEvents   *int     `json:"totalEvents,omitempty"`
	PipelineCount *int     `json:"pipelineCount,omitempty"`
	SurveyCount   *int     `json:"surveyCount,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Truncated     bool     `json:"truncated,omitempty"`
}

// ApplyDerived copies the derived counts the summary reports.
func (m *ModuleResult) ApplyDerived(derived map[string]int) {
	if n, ok := derived[DerivedTotalEvents]; ok {
		m.TotalEvents = intPtr(n)
	}
	if n, ok := derived[DerivedPipelineCount]; ok {
		m.PipelineCount = intPtr(n)
	}
	if n, ok := derived[DerivedSurveyCount]; ok {
		m.SurveyCount = intPtr(n)
	}
}

// ModuleError pairs a failed domain with its message.
type ModuleError struct {
	Module string `json:"module"`
	Error  string `json:"error"`
}

// RunSummary is the report of one orchestrator run. It is built as domains
// complete and finalized once by Finalize.
type RunSummary struct {
	RunID             string         `json:"runId"`
	ExportedAt        time.Time      `json:"exportedAt"`
	LocationID        string         `json:"locationId"`
	DryRun            bool           `json:"dryRun,omitempty"`
	Planned           []string       `json:"plannedModules,omitempty"`
	Skipped           []string       `json:"skippedModules,omitempty"`
	TotalModules      int            `json:"totalModules"`
	SuccessfulModules int            `json:"successfulModules"`
	FailedModules     int            `json:"failedModules"`
	TotalRecords      int            `json:"totalRecords"`
	TotalAPIRequests  int64          `json:"totalApiRequests"`
	ElapsedTime       string         `json:"elapsedTime"`
	Modules           []ModuleResult `json:"modules"`
	Errors            []ModuleError  `json:"errors,omitempty"`
	Fatal             string         `json:"fatal,omitempty"`

	started time.Time
}

// NewRunSummary starts a summary clock.
func NewRunSummary(runID, locationID string, started time.Time) *RunSummary {
	return &RunSummary{
		RunID:      runID,
		LocationID: locationID,
		Modules:    []ModuleResult{},
		started:    started,
	}
}

// Add appends a domain result and updates the running totals.
func (s *RunSummary) Add(m ModuleResult) {
	s.Modules = append(s.Modules, m)
	switch m.Status {
	case StatusSuccess:
		s.SuccessfulModules++
		s.TotalRecords += m.Count
	case StatusFailed:
		s.FailedModules++
		s.Errors = append(s.Errors, ModuleError{Module: m.Module, Error: m.Error})
	}
}

// Module returns the entry for name.
func (s *RunSummary) Module(name string) (ModuleResult, bool) {
	for _, m := range s.Modules {
		if m.Module == name {
			return m, true
		}
	}
	return ModuleResult{}, false
}

// Finalize stamps the totals and elapsed time.
func (s *RunSummary) Finalize(now time.Time, apiRequests int64) {
	s.ExportedAt = now.UTC()
	s.TotalAPIRequests = apiRequests
	s.ElapsedTime = FormatElapsed(now.Sub(s.started))
}

// FormatElapsed renders d as seconds with one decimal, e.g. "12.3s".
func FormatElapsed(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func intPtr(n int) *int { return &n }
