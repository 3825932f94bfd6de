package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/risk-cli/internal/store"
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Inspect saved batches",
	Long:  "Commands for listing, viewing, and deleting scored batches saved with score --save or the HTTP API.",
}

// -- batches list --

var batchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved batches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		format, _ := cmd.Flags().GetString("format")

		batches, err := st.ListBatches(ctx, store.BatchFilter{Source: source, Limit: limit, Offset: offset})
		if err != nil {
			return eris.Wrap(err, "batches list")
		}

		if len(batches) == 0 && format == formatTable {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No batches found.")
			return nil
		}
		return writeFormatted(cmd.OutOrStdout(), format, batches, func(w io.Writer) {
			formatBatches(w, batches)
		})
	},
}

// -- batches show --

var batchesShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show a batch and its records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		b, err := st.GetBatch(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "batches show")
		}

		format, _ := cmd.Flags().GetString("format")
		return writeFormatted(cmd.OutOrStdout(), format, b, func(w io.Writer) {
			_, _ = fmt.Fprintf(w, "Batch %s from %s, scored %s (config %s)\n\n",
				b.ID, b.Source, b.ScoredAt.Format("2006-01-02"), b.ConfigHash)
			formatRecords(w, b.Records, false)
		})
	},
}

// -- batches delete --

var batchesDeleteCmd = &cobra.Command{
	Use:   "delete <batch-id>",
	Short: "Delete a batch and its records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteBatch(ctx, args[0]); err != nil {
			return eris.Wrap(err, "batches delete")
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Deleted batch %s\n", args[0])
		return nil
	},
}

func init() {
	batchesListCmd.Flags().String("source", "", "filter by exact source")
	batchesListCmd.Flags().Int("limit", store.DefaultListLimit, "max number of batches to display")
	batchesListCmd.Flags().Int("offset", 0, "number of batches to skip")
	batchesListCmd.Flags().String("format", formatTable, "output format: table, json or yaml")
	batchesShowCmd.Flags().String("format", formatTable, "output format: table, json or yaml")

	batchesCmd.AddCommand(batchesListCmd)
	batchesCmd.AddCommand(batchesShowCmd)
	batchesCmd.AddCommand(batchesDeleteCmd)
	rootCmd.AddCommand(batchesCmd)
}
