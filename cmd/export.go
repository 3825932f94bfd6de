package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/ingest"
	"github.com/sells-group/risk-cli/internal/portfolio"
)

var (
	exportInput    inputFlags
	exportCriteria criteriaFlags
	exportColumns  []string
	exportOutput   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export scored records as CSV",
	Long: `Write scored records, optionally filtered, as CSV with a chosen set of
columns. The file is named credit_risk_export_<date>.csv unless --output is
given; use --output - for stdout.

Columns: ` + strings.Join(ingest.ColumnKeys(), ", "),
	RunE: func(cmd *cobra.Command, _ []string) error {
		crit, err := exportCriteria.criteria()
		if err != nil {
			return err
		}
		b, err := exportInput.load(cmd.Context())
		if err != nil {
			return err
		}
		records := b.Records
		if crit.Active() {
			records = portfolio.Apply(records, crit)
		}

		keys := exportColumns
		if len(keys) == 0 {
			keys = ingest.ColumnKeys()
		}

		path := exportOutput
		if path == "" {
			path = ingest.ExportFilename(time.Now())
		}

		var w io.Writer = cmd.OutOrStdout()
		if path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return eris.Wrapf(err, "export: create %s", path)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		if err := ingest.WriteCSV(w, records, keys); err != nil {
			return err
		}

		if path != "-" {
			zap.L().Info("export written", zap.String("path", path), zap.Int("records", len(records)))
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d records to %s\n", len(records), path)
		}
		return nil
	},
}

func init() {
	addInputFlags(exportCmd, &exportInput)
	addCriteriaFlags(exportCmd, &exportCriteria)
	f := exportCmd.Flags()
	f.StringSliceVar(&exportColumns, "columns", nil, "comma-separated column keys (default all)")
	f.StringVarP(&exportOutput, "output", "o", "", "output file, or - for stdout")
	rootCmd.AddCommand(exportCmd)
}
