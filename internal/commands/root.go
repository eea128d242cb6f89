// Package commands implements the finrecon CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mzharov/finrecon/internal/config"
	"github.com/mzharov/finrecon/internal/docstore"
	"github.com/mzharov/finrecon/internal/docstore/firestoredb"
	"github.com/mzharov/finrecon/internal/reconcile"
	"github.com/mzharov/finrecon/internal/repo"
)

// NewRootCommand creates the root CLI command with all subcommands
// registered.
func NewRootCommand() *cobra.Command {
	var ownerFlag, sessionFlag string

	rootCmd := &cobra.Command{
		Use:   "finrecon",
		Short: "Financial document import and reconciliation",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "owner id (required for most commands)")
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "operate on a replicated session instead of the master dataset")

	rootCmd.AddCommand(newImportCommand(&ownerFlag, &sessionFlag))
	rootCmd.AddCommand(newReconcileCommand(&ownerFlag, &sessionFlag))
	rootCmd.AddCommand(newSessionCommand(&ownerFlag))
	rootCmd.AddCommand(newReportCommand(&ownerFlag, &sessionFlag))

	return rootCmd
}

// openStore connects to Firestore using the loaded configuration.
func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, func() error, error) {
	if cfg.ProjectID == "" {
		return nil, nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT must be set")
	}
	store, err := firestoredb.New(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to Firestore: %w", err)
	}
	return store, store.Close, nil
}

func matchingConfig(cfg *config.Config) reconcile.Config {
	matching := reconcile.DefaultConfig()
	matching.AcceptanceThreshold = cfg.AcceptanceThreshold
	matching.DateWindowDays = cfg.DateWindowDays
	return matching
}

func scopeFor(session string) repo.Scope {
	if session != "" {
		return repo.Session(session)
	}
	return repo.Master
}
