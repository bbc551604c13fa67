package cli

import (
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tphakala/wildfire-loader/internal/parquetio"
)

// ExportSummary describes one finished export.
type ExportSummary struct {
	Path       string
	Rows       int64
	Columns    []string
	Normalized []string
	Codec      string
	RowGroups  int
	SizeBytes  int64
	Parallel   bool
	Partitions int
	Duration   time.Duration
}

// PrintExportSummary writes a human-readable export summary.
func PrintExportSummary(w io.Writer, s *ExportSummary) {
	p := message.NewPrinter(language.English)

	mode := "serial"
	if s.Parallel {
		mode = "parallel"
	}

	p.Fprintf(w, "\n=== Export Summary ===\n")
	p.Fprintf(w, "%-12s %s\n", "File:", s.Path)
	p.Fprintf(w, "%-12s %d\n", "Rows:", s.Rows)
	p.Fprintf(w, "%-12s %d (%s)\n", "Columns:", len(s.Columns), strings.Join(s.Columns, ", "))
	if len(s.Normalized) > 0 {
		p.Fprintf(w, "%-12s %s (%s, %d partitions)\n", "Datetimes:", strings.Join(s.Normalized, ", "), mode, s.Partitions)
	}
	p.Fprintf(w, "%-12s %s, %d row groups\n", "Codec:", cases.Title(language.English).String(strings.ToLower(s.Codec)), s.RowGroups)
	p.Fprintf(w, "%-12s %d bytes\n", "Size:", s.SizeBytes)
	p.Fprintf(w, "%-12s %s\n", "Duration:", s.Duration.Round(time.Millisecond))
}

// PrintVerifyReport writes one line per column and the overall result.
func PrintVerifyReport(w io.Writer, r *parquetio.Report) {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "\n--- Verification ---\n")
	p.Fprintf(w, "Rows: expected %d, found %d\n", r.ExpectedRows, r.ActualRows)
	p.Fprintf(w, "%-25s %-28s %s\n", "Column", "Type", "Match")
	for _, c := range r.Columns {
		match := "✓"
		if !c.Match {
			match = "✗"
		}
		p.Fprintf(w, "%-25s %-28s %s\n", c.Name, c.Type, match)
	}
	for _, problem := range r.Problems {
		p.Fprintf(w, "  - %s\n", problem)
	}
	if r.OK() {
		p.Fprintf(w, "Verification passed\n")
	} else {
		p.Fprintf(w, "Verification failed: %d problems\n", len(r.Problems))
	}
}
