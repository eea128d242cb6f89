package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mzharov/finrecon/internal/config"
	"github.com/mzharov/finrecon/internal/logger"
	"github.com/mzharov/finrecon/internal/replicator"
)

func newSessionCommand(owner *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage replicated demo sessions",
	}

	clone := &cobra.Command{
		Use:   "clone <session-id>",
		Short: "Clone the master dataset into a new session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if *owner == "" {
				return fmt.Errorf("--owner is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := logger.WithContext(cmd.Context(), logger.New())
			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := replicator.New(store).Clone(ctx, *owner, args[0]); err != nil {
				return err
			}
			fmt.Printf("Session %s cloned from %s\n", args[0], *owner)
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset <session-id>",
		Short: "Restore a session to its freshly cloned state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := logger.WithContext(cmd.Context(), logger.New())
			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := replicator.New(store).Reset(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Session %s reset\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(clone, reset)
	return cmd
}
