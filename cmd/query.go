package main

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/relevance"
)

var (
	queryInput  inputFlags
	queryFormat string
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Show which records a question selects",
	Long: `Run the relevance filter used by chat and print the records it would send
to the model for a question, with a one-line description of the rule that
matched.

Examples:
  query "who are the top 5 riskiest clients" --source ar.csv
  query "anything 90 days overdue?" --batch 3f2c9a1e-...`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := queryInput.load(cmd.Context())
		if err != nil {
			return err
		}

		question := strings.Join(args, " ")
		res := relevance.Filterer{MaxRecords: cfg.Filter.MaxRecords}.Filter(question, b.Records)
		zap.L().Debug("query filtered",
			zap.String("rule", string(res.Rule)),
			zap.Int("selected", len(res.Clients)),
			zap.Int("total", len(b.Records)),
		)

		return writeFormatted(cmd.OutOrStdout(), queryFormat, res, func(w io.Writer) {
			formatRelevance(w, res)
		})
	},
}

func init() {
	addInputFlags(queryCmd, &queryInput)
	queryCmd.Flags().StringVar(&queryFormat, "format", formatTable, "output format: table, json or yaml")
	rootCmd.AddCommand(queryCmd)
}
