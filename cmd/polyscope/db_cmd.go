package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"polyscope/config"
	"polyscope/store"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the local store",
	}
	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBStatusCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the store schema (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadFromEnv()
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()
			if err := st.Migrate(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Printf("migrated %s\n", cfg.DBPath)
			return nil
		},
	}
}

func newDBStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print row counts for every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadFromEnv()
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			fmt.Printf("db:       %s\n", cfg.DBPath)
			fmt.Printf("fills:     %d\n", stats.Fills)
			fmt.Printf("markets:   %d\n", stats.Markets)
			fmt.Printf("accounts:  %d\n", stats.Accounts)
			fmt.Printf("redemptions: %d\n", stats.Redemptions)
			fmt.Printf("backfill queue: %d\n", stats.BackfillQueued)
			return nil
		},
	}
}
