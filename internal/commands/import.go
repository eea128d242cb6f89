package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mzharov/finrecon/internal/config"
	"github.com/mzharov/finrecon/internal/domain"
	"github.com/mzharov/finrecon/internal/filestore"
	"github.com/mzharov/finrecon/internal/logger"
	"github.com/mzharov/finrecon/internal/pipeline"
)

func newImportCommand(owner, session *string) *cobra.Command {
	var direction string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a tabular file of invoices or bills",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if *owner == "" {
				return fmt.Errorf("--owner is required")
			}
			dir := domain.Direction(direction)
			if !dir.IsValid() {
				return fmt.Errorf("--direction must be incoming or outgoing")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}

			ctx := logger.WithContext(cmd.Context(), logger.New())
			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			p := pipeline.New(filestore.NewGCS(cfg.GCSBucket), store, scopeFor(*session), cfg.HomeCurrency)
			result, err := p.ImportFile(ctx, *owner, dir, filepath.Base(args[0]), "", data)
			if err != nil {
				return err
			}

			fmt.Printf("Run %s: %s\n", result.RunID, result.Status)
			fmt.Printf("  rows: %d imported, %d failed of %d\n", result.RowsImported, result.RowsFailed, result.RowsTotal)
			for _, rowErr := range result.RowErrors {
				fmt.Printf("  row %d: %s: %s\n", rowErr.Row, rowErr.Field, rowErr.Message)
			}
			for _, warning := range result.Warnings {
				fmt.Printf("  warning: %s\n", warning)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "outgoing", "document direction: outgoing (invoices) or incoming (bills)")
	return cmd
}
