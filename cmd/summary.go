package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/portfolio"
)

var (
	summaryInput  inputFlags
	summaryFormat string
	summaryAlerts int
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize portfolio risk",
	Long:  "Print total AR, the risk category mix, aging buckets, factor counters and the highest-risk alerts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := summaryInput.load(cmd.Context())
		if err != nil {
			return err
		}

		out := struct {
			Summary         portfolio.Summary    `json:"summary" yaml:"summary"`
			Alerts          []model.ClientRecord `json:"alerts" yaml:"alerts"`
			CollectionQueue []model.ClientRecord `json:"collection_queue" yaml:"collection_queue"`
			TopPerformers   []model.ClientRecord `json:"top_performers" yaml:"top_performers"`
		}{
			Summary:         portfolio.Summarize(b.Records),
			Alerts:          portfolio.Alerts(b.Records, summaryAlerts),
			CollectionQueue: portfolio.CollectionQueue(b.Records, portfolio.DefaultPanelListSize),
			TopPerformers:   portfolio.Performers(b.Records, portfolio.DefaultPanelListSize),
		}

		return writeFormatted(cmd.OutOrStdout(), summaryFormat, out, func(w io.Writer) {
			formatSummary(w, out.Summary, out.Alerts)
		})
	},
}

func init() {
	addInputFlags(summaryCmd, &summaryInput)
	summaryCmd.Flags().StringVar(&summaryFormat, "format", formatTable, "output format: table, json or yaml")
	summaryCmd.Flags().IntVar(&summaryAlerts, "alerts", portfolio.DefaultAlertsLimit, "number of high-risk alerts to list")
	rootCmd.AddCommand(summaryCmd)
}
