package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mzharov/finrecon/internal/config"
	"github.com/mzharov/finrecon/internal/domain"
	"github.com/mzharov/finrecon/internal/logger"
	"github.com/mzharov/finrecon/internal/replicator"
	"github.com/mzharov/finrecon/internal/repo"
	"github.com/mzharov/finrecon/internal/reporting"
)

func newReportCommand(owner, session *string) *cobra.Command {
	report := &cobra.Command{
		Use:   "report",
		Short: "Build reports over the reconciled dataset",
	}

	var direction, asOfFlag string
	var export bool

	aging := &cobra.Command{
		Use:   "aging",
		Short: "Accounts receivable/payable aging summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			reportOwner := *owner
			if *session != "" {
				reportOwner = replicator.SessionOwner(*session)
			}
			if reportOwner == "" {
				return fmt.Errorf("--owner is required")
			}
			dir := domain.Direction(direction)
			if !dir.IsValid() {
				return fmt.Errorf("--direction must be incoming or outgoing")
			}
			asOf := time.Now().UTC()
			if asOfFlag != "" {
				if asOf, err = time.Parse("2006-01-02", asOfFlag); err != nil {
					return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
				}
			}

			ctx := logger.WithContext(cmd.Context(), logger.New())
			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			docs, err := repo.NewDocumentRepo(store, scopeFor(*session)).ListByOwner(ctx, reportOwner)
			if err != nil {
				return err
			}
			result := reporting.BuildAging(reportOwner, dir, docs, asOf)

			fmt.Printf("Aging as of %s (%s)\n", result.AsOf.Format("2006-01-02"), result.Direction)
			fmt.Printf("%-30s %-4s %12s %12s %12s %12s %12s %12s\n",
				"Counterparty", "Ccy", "Current", "1-30", "31-60", "61-90", "90+", "Total")
			for _, line := range result.Lines {
				fmt.Printf("%-30s %-4s %12s %12s %12s %12s %12s %12s\n",
					line.Counterparty, line.Currency,
					line.Current.StringFixed(2), line.Days1To30.StringFixed(2),
					line.Days31To60.StringFixed(2), line.Days61To90.StringFixed(2),
					line.Days90Plus.StringFixed(2), line.Total.StringFixed(2))
			}
			fmt.Printf("Total outstanding: %s\n", result.Total.StringFixed(2))

			if export {
				exporter := reporting.NewExporter(cfg.ProjectID, cfg.BigQueryDataset, cfg.AgingReportTable)
				if err := exporter.Export(ctx, result); err != nil {
					return fmt.Errorf("exporting to BigQuery: %w", err)
				}
				fmt.Println("Exported to BigQuery.")
			}
			return nil
		},
	}

	aging.Flags().StringVar(&direction, "direction", "outgoing", "outgoing (receivables) or incoming (payables)")
	aging.Flags().StringVar(&asOfFlag, "as-of", "", "report date (YYYY-MM-DD, default today)")
	aging.Flags().BoolVar(&export, "export", false, "export the report rows to BigQuery")

	report.AddCommand(aging)
	return report
}
