package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/ghlexport/pkg/extract"
	"github.com/ajitpratap0/ghlexport/pkg/models"
	"github.com/ajitpratap0/ghlexport/pkg/store"
)

func sampleSummary() *models.RunSummary {
	s := models.NewRunSummary("run-1", "loc-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	s.TotalModules = 3
	s.Skipped = []string{"bogus"}
	s.Add(models.ModuleResult{Module: "contacts", Count: 1234, Elapsed: "4.2s", Status: models.StatusSuccess, Truncated: true})
	s.Add(models.ModuleResult{Module: "calendars", Elapsed: "0.3s", Status: models.StatusFailed, Error: "API error [500 Internal Server Error]"})
	s.Add(models.ModuleResult{Module: "users", Count: 5, Elapsed: "0.1s", Status: models.StatusSuccess, Warnings: []string{"w"}})
	s.Finalize(time.Date(2026, 3, 1, 10, 0, 12, 0, time.UTC), 42)
	return s
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, sampleSummary()))
	out := buf.String()

	for _, want := range []string{
		"Module", "Records", "Time", "Status",
		"contacts", "1234", "success (truncated)",
		"calendars", "failed",
		"users", "(1 warnings)",
		"Total: 1239 records from 2/3 domains in 12.0s (42 API requests)",
		"Skipped unknown domains: bogus",
		"calendars: API error [500 Internal Server Error]",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Run aborted")
}

func TestSummaryFatalAndDryRun(t *testing.T) {
	s := sampleSummary()
	s.Fatal = "quota_exhausted: daily rate limit nearly exhausted (50 remaining)"
	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, s))
	assert.Contains(t, buf.String(), "Run aborted: quota_exhausted")

	dry := models.NewRunSummary("run-2", "loc-1", time.Now())
	dry.DryRun = true
	dry.Planned = []string{"contacts", "users"}
	buf.Reset()
	require.NoError(t, Summary(&buf, dry))
	assert.Contains(t, buf.String(), "Dry run")
	assert.Contains(t, buf.String(), "planned: contacts, users")
	assert.NotContains(t, buf.String(), "Total:")
}

func TestDomains(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Domains(&buf, []Domain{
		{Name: "contacts", Description: "All contacts", Default: true},
		{Name: "tags", Description: "Contact tags"},
	}))
	lines := strings.Split(buf.String(), "\n")
	var contacts, tags string
	for _, l := range lines {
		switch {
		case strings.Contains(l, "contacts"):
			contacts = l
		case strings.Contains(l, "tags"):
			tags = l
		}
	}
	assert.Contains(t, contacts, "*")
	assert.NotContains(t, tags, "*")
}

func TestCatalog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Catalog(&buf, "opportunities", &extract.Catalog{Items: []extract.FilterOption{
		{ID: "pipeline:p1", Label: "Sales", Group: "Pipelines"},
		{ID: "stage:p1:s1", Label: "New", Group: "Sales Stages"},
	}}))
	out := buf.String()
	assert.Contains(t, out, "Pipelines")
	assert.Contains(t, out, "Sales Stages")
	assert.Less(t, strings.Index(out, "pipeline:p1"), strings.Index(out, "stage:p1:s1"))

	buf.Reset()
	require.NoError(t, Catalog(&buf, "contacts", &extract.Catalog{}))
	assert.Contains(t, buf.String(), "no filters available")
}

func TestManifest(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Manifest(&buf, "loc-1", nil))
	assert.Equal(t, "no snapshots for location loc-1\n", buf.String())

	buf.Reset()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, Manifest(&buf, "loc-1", store.Manifest{
		"users":    {ID: "a", Count: 5, ExportedAt: at, Key: "2026-03-01T10-00-00/users.json"},
		"contacts": {ID: "b", Count: 9, ExportedAt: at, Key: "2026-03-01T10-00-00/contacts.json"},
	}))
	out := buf.String()
	assert.Contains(t, out, "2026-03-01T10:00:00Z")
	assert.Less(t, strings.Index(out, "contacts.json"), strings.Index(out, "users.json"))
}

func TestSnapshot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Snapshot(&buf, &store.Snapshot{
		ID: "x", Domain: "users", LocationID: "loc-1", Description: "Team members", Count: 2,
		Data: []byte(`[{"id":"u1"},{"id":"u2"}]`),
	}))
	assert.Contains(t, buf.String(), "records:     2")
	assert.Contains(t, buf.String(), "size:        25 bytes")
}
