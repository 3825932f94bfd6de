package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/portfolio"
	"github.com/sells-group/risk-cli/internal/relevance"
	"github.com/sells-group/risk-cli/internal/scorer"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// writeFormatted renders v as JSON or YAML, or calls table for the
// human-readable form.
func writeFormatted(out io.Writer, format string, v any, table func(io.Writer)) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case formatTable, "":
		table(out)
		return nil
	}
	return eris.Errorf("unknown --format %q (table, json or yaml)", format)
}

// formatRecords writes a tabular list of scored records to w. With
// explain set, the four normalized sub-scores are added.
func formatRecords(out io.Writer, records []model.ClientRecord, explain bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "ID\tNAME\tSCORE\tCATEGORY\tDPD\tUTIL%\tREMINDERS\tAMOUNT"
	if explain {
		header += "\tN_DPD\tN_UTIL\tN_REM\tN_ORDERS"
	}
	_, _ = fmt.Fprintln(w, header)

	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\t%d\t%.2f",
			r.ID,
			truncate(r.Name, 30),
			r.RiskScore,
			r.RiskCategory,
			r.DaysPastDue,
			r.CreditUtilization,
			r.RemindersCount,
			r.InvoiceAmount,
		)
		if explain {
			c := scorer.Normalized(r.DaysPastDue, r.CreditUtilization, r.RemindersCount, r.AvgOrders60Days)
			_, _ = fmt.Fprintf(w, "\t%d\t%d\t%d\t%d", c.DaysPastDue, c.CreditUtilization, c.RemindersCount, c.AvgOrders60Days)
		}
		_, _ = fmt.Fprintln(w)
	}
	_ = w.Flush()
}

// formatSummary writes the portfolio overview and alert list to w.
func formatSummary(out io.Writer, s portfolio.Summary, alerts []model.ClientRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Clients:\t%s\n", portfolio.FormatCount(s.TotalClients))
	_, _ = fmt.Fprintf(w, "Total AR:\t%s\n", portfolio.FormatCurrency(s.TotalAR))
	_, _ = fmt.Fprintf(w, "Average score:\t%d/100\n", s.AverageRiskScore)
	for _, c := range s.Categories {
		_, _ = fmt.Fprintf(w, "  %s:\t%d (%s)\n", c.Category, c.Count, portfolio.FormatCurrency(c.Value))
	}
	_, _ = fmt.Fprintf(w, "90+ days overdue:\t%d (%s)\n", s.Overdue90, portfolio.FormatCurrency(s.Overdue90Value))
	_, _ = fmt.Fprintf(w, "60-89 days:\t%d\n", s.Overdue60)
	_, _ = fmt.Fprintf(w, "30-59 days:\t%d\n", s.Overdue30)
	_, _ = fmt.Fprintf(w, "Utilization >= %d%%:\t%d (%s)\n",
		portfolio.HighUtilizationPct, s.HighUtilization, portfolio.FormatCurrency(s.HighUtilizationValue))
	_, _ = fmt.Fprintf(w, "%d+ reminders:\t%d\n", portfolio.FrequentReminders, s.FrequentReminders)
	_, _ = fmt.Fprintf(w, "Low order frequency:\t%d\n", s.LowOrderFrequency)
	_ = w.Flush()

	if len(alerts) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Alerts:")
	formatRecords(out, alerts, false)
}

// formatBatches writes a tabular list of saved batches to w.
func formatBatches(out io.Writer, batches []model.Batch) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tRECORDS\tSCORED\tCREATED\tCONFIG")
	for _, b := range batches {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			truncateID(b.ID),
			truncate(b.Source, 40),
			b.Count,
			b.ScoredAt.Format("2006-01-02"),
			b.CreatedAt.Format("2006-01-02 15:04"),
			b.ConfigHash,
		)
	}
	_ = w.Flush()
}

// formatRelevance writes the filter description followed by the selected
// records.
func formatRelevance(out io.Writer, res relevance.Result) {
	_, _ = fmt.Fprintf(out, "%s (rule: %s, matched: %d)\n", res.Description, res.Rule, res.TotalMatched)
	formatRecords(out, res.Clients, false)
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
