package main

import (
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/portfolio"
	"github.com/sells-group/risk-cli/internal/scorer"
)

var (
	scoreInput    inputFlags
	scoreCriteria criteriaFlags
	scoreFormat   string
	scoreSave     bool
	scoreExplain  bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score invoice records",
	Long: `Read invoice records from CSV or XLSX sources and compute each client's
days past due, credit utilization, 0-100 risk score, risk category and
rationale.

Examples:
  # Score a local export as of a fixed date
  score --source ar.csv --now 2024-04-01

  # Combine an ERP download with a spreadsheet and save the batch
  score --source https://erp.example.com/ar.csv --source overdue.xlsx --save

  # Only high-risk clients more than 60 days late, as JSON
  score --source ar.csv --category high --dpd-min 60 --format json`,
	RunE: runScore,
}

func init() {
	addInputFlags(scoreCmd, &scoreInput)
	addCriteriaFlags(scoreCmd, &scoreCriteria)
	f := scoreCmd.Flags()
	f.StringVar(&scoreFormat, "format", formatTable, "output format: table, json or yaml")
	f.BoolVar(&scoreSave, "save", false, "persist the scored batch to the store")
	f.BoolVar(&scoreExplain, "explain", false, "show normalized sub-scores (table format)")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := zap.L().With(zap.String("command", "score"))

	crit, err := scoreCriteria.criteria()
	if err != nil {
		return err
	}
	b, err := scoreInput.load(ctx)
	if err != nil {
		return err
	}

	if scoreSave {
		if scoreInput.batchID != "" {
			return eris.New("--save cannot be used with --batch")
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.SaveBatch(ctx, b); err != nil {
			return eris.Wrap(err, "score: save batch")
		}
		log.Info("batch saved", zap.String("batch_id", b.ID), zap.Int("records", b.Count))
	}

	records := b.Records
	if crit.Active() {
		records = portfolio.Apply(records, crit)
	}
	log.Debug("records scored",
		zap.Int("total", len(b.Records)),
		zap.Int("matched", len(records)),
		zap.String("config_hash", scorer.ConfigHash()),
	)

	out := struct {
		Batch   model.Batch          `json:"batch" yaml:"batch"`
		Records []model.ClientRecord `json:"records" yaml:"records"`
	}{Batch: b.BatchMeta(), Records: records}

	return writeFormatted(cmd.OutOrStdout(), scoreFormat, out, func(w io.Writer) {
		formatRecords(w, records, scoreExplain)
	})
}

// criteriaFlags maps the advanced record filter onto flags. Callers
// apply it only when Active, so no record is hidden by default.
type criteriaFlags struct {
	search   string
	category string
	dpdMin   int
	dpdMax   int
	utilMin  int
	utilMax  int
	dueFrom  string
	dueTo    string
}

func addCriteriaFlags(cmd *cobra.Command, c *criteriaFlags) {
	f := cmd.Flags()
	f.StringVar(&c.search, "search", "", "case-insensitive match on name, email or phone")
	f.StringVar(&c.category, "category", portfolio.CategoryAll, "risk category: all, low, medium or high")
	f.IntVar(&c.dpdMin, "dpd-min", 0, "minimum days past due")
	f.IntVar(&c.dpdMax, "dpd-max", portfolio.DefaultDaysPastDueMax, "maximum days past due")
	f.IntVar(&c.utilMin, "util-min", 0, "minimum credit utilization %")
	f.IntVar(&c.utilMax, "util-max", portfolio.DefaultUtilizationMax, "maximum credit utilization %")
	f.StringVar(&c.dueFrom, "due-from", "", "earliest due date, YYYY-MM-DD")
	f.StringVar(&c.dueTo, "due-to", "", "latest due date, YYYY-MM-DD")
}

func (c *criteriaFlags) criteria() (portfolio.Criteria, error) {
	crit := portfolio.Criteria{
		Search:         strings.TrimSpace(c.search),
		Category:       portfolio.CategoryAll,
		DaysPastDueMin: c.dpdMin,
		DaysPastDueMax: c.dpdMax,
		UtilizationMin: c.utilMin,
		UtilizationMax: c.utilMax,
	}
	if c.category != "" && !strings.EqualFold(c.category, portfolio.CategoryAll) {
		cat, ok := model.ParseRiskCategory(c.category)
		if !ok {
			return crit, eris.Errorf("invalid --category %q", c.category)
		}
		crit.Category = string(cat)
	}
	for _, d := range []struct {
		flag string
		val  string
		dst  **time.Time
	}{
		{"--due-from", c.dueFrom, &crit.DueFrom},
		{"--due-to", c.dueTo, &crit.DueTo},
	} {
		if d.val == "" {
			continue
		}
		t, ok := scorer.ParseDate(d.val)
		if !ok {
			return crit, eris.Errorf("invalid %s %q", d.flag, d.val)
		}
		*d.dst = &t
	}
	return crit, nil
}
