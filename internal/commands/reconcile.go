package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mzharov/finrecon/internal/config"
	"github.com/mzharov/finrecon/internal/logger"
	"github.com/mzharov/finrecon/internal/reconcile"
	"github.com/mzharov/finrecon/internal/replicator"
)

func newReconcileCommand(owner, session *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Match open documents against bank transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			runOwner := *owner
			if *session != "" {
				runOwner = replicator.SessionOwner(*session)
			}
			if runOwner == "" {
				return fmt.Errorf("--owner is required")
			}

			ctx := logger.WithContext(cmd.Context(), logger.New())
			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			svc := reconcile.NewService(store, scopeFor(*session), matchingConfig(cfg))
			summary, err := svc.Run(ctx, runOwner)
			if err != nil {
				return err
			}

			fmt.Printf("Examined %d documents: %d payments created, %d documents updated\n",
				summary.DocumentsExamined, summary.PaymentsCreated, summary.DocumentsUpdated)
			for _, p := range summary.Proposals {
				fmt.Printf("  proposal: %s <- %s (%.2f)\n", p.DocumentID, p.TransactionID, p.Confidence)
			}
			return nil
		},
	}
}
