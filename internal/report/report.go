// Package report renders run summaries and catalogues for the terminal.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ajitpratap0/ghlexport/pkg/extract"
	"github.com/ajitpratap0/ghlexport/pkg/models"
	"github.com/ajitpratap0/ghlexport/pkg/store"
)

// Domain is one row of the domain listing.
type Domain struct {
	Name        string
	Description string
	Default     bool
}

// Banner describes a run about to start.
func Banner(w io.Writer, locationID, baseURL string, domains []string, dryRun bool) error {
	mode := "export"
	if dryRun {
		mode = "dry run"
	}
	body := strings.Join([]string{
		titleStyle.Render("GoHighLevel export"),
		"location: " + locationID,
		"api:      " + baseURL,
		"mode:     " + mode,
		"domains:  " + strings.Join(domains, ", "),
	}, "\n")
	_, err := fmt.Fprintln(w, bannerStyle.Render(body))
	return err
}

// Summary renders the per-domain table, the run totals and the failures.
func Summary(w io.Writer, s *models.RunSummary) error {
	var b strings.Builder

	if s.DryRun {
		b.WriteString(titleStyle.Render("Dry run: nothing was fetched or written"))
		b.WriteString("\n")
		b.WriteString("planned: " + strings.Join(s.Planned, ", ") + "\n")
		writeSkipped(&b, s.Skipped)
		_, err := io.WriteString(w, b.String())
		return err
	}

	statuses := make([]string, len(s.Modules))
	rows := make([][]string, 0, len(s.Modules))
	for i, m := range s.Modules {
		statuses[i] = m.Status
		status := m.Status
		if m.Truncated {
			status += " (truncated)"
		}
		if len(m.Warnings) > 0 {
			status += fmt.Sprintf(" (%d warnings)", len(m.Warnings))
		}
		rows = append(rows, []string{m.Module, strconv.Itoa(m.Count), m.Elapsed, status})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("Module", "Records", "Time", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			switch col {
			case 1, 2:
				return numberStyle
			case 3:
				if statuses[row] == models.StatusFailed {
					return cellStyle.Inherit(failStyle)
				}
				return cellStyle.Inherit(okStyle)
			}
			return cellStyle
		})

	b.WriteString(titleStyle.Render("Export summary"))
	b.WriteString("\n")
	b.WriteString(t.String())
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total: %d records from %d/%d domains in %s (%d API requests)\n",
		s.TotalRecords, s.SuccessfulModules, s.TotalModules, s.ElapsedTime, s.TotalAPIRequests)

	writeSkipped(&b, s.Skipped)
	if len(s.Errors) > 0 {
		b.WriteString(failStyle.Render("Failed:"))
		b.WriteString("\n")
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "  - %s: %s\n", e.Module, e.Error)
		}
	}
	if s.Fatal != "" {
		b.WriteString(failStyle.Render("Run aborted: " + s.Fatal))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeSkipped(b *strings.Builder, skipped []string) {
	if len(skipped) == 0 {
		return
	}
	b.WriteString(warningStyle.Render("Skipped unknown domains: " + strings.Join(skipped, ", ")))
	b.WriteString("\n")
}

// Domains lists the registered domains; the default set is starred.
func Domains(w io.Writer, domains []Domain) error {
	rows := make([][]string, 0, len(domains))
	for _, d := range domains {
		mark := ""
		if d.Default {
			mark = "*"
		}
		rows = append(rows, []string{d.Name, mark, d.Description})
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("Domain", "Default", "Description").
		Rows(rows...).
		StyleFunc(plainStyle)
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// Catalog lists the filter options of a domain grouped by label.
func Catalog(w io.Writer, domain string, c *extract.Catalog) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Filters for " + domain))
	b.WriteString("\n")
	if len(c.Items) == 0 {
		b.WriteString(mutedStyle.Render("no filters available"))
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}
	if c.SelectAll {
		b.WriteString(mutedStyle.Render("all options are selected by default"))
		b.WriteString("\n")
	}

	group := "\x00"
	for _, item := range c.Items {
		if item.Group != group {
			group = item.Group
			if group != "" {
				b.WriteString(headerStyle.Render(group))
				b.WriteString("\n")
			}
		}
		fmt.Fprintf(&b, "  %s  %s\n", item.ID, mutedStyle.Render(item.Label))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Manifest renders the newest snapshot of every domain.
func Manifest(w io.Writer, locationID string, m store.Manifest) error {
	if len(m) == 0 {
		_, err := fmt.Fprintf(w, "no snapshots for location %s\n", locationID)
		return err
	}
	domains := m.Domains()

	rows := make([][]string, 0, len(domains))
	for _, d := range domains {
		e := m[d]
		rows = append(rows, []string{d, strconv.Itoa(e.Count), e.ExportedAt.Format(time.RFC3339), e.Key})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("Domain", "Records", "Exported", "Location").
		Rows(rows...).
		StyleFunc(plainStyle)

	_, err := fmt.Fprintf(w, "%s\n%s\n", titleStyle.Render("Manifest for "+locationID), t.String())
	return err
}

// Snapshot prints the metadata of one stored snapshot.
func Snapshot(w io.Writer, s *store.Snapshot) error {
	_, err := fmt.Fprintf(w, "%s\n  id:          %s\n  location:    %s\n  description: %s\n  records:     %d\n  exported:    %s\n  size:        %d bytes\n",
		titleStyle.Render(s.Domain), s.ID, s.LocationID, s.Description, s.Count,
		s.ExportedAt.Format(time.RFC3339), len(s.Data))
	return err
}

func plainStyle(row, _ int) lipgloss.Style {
	if row == table.HeaderRow {
		return headerStyle
	}
	return cellStyle
}
