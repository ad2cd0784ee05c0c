package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-platform/migrations"
)

func newMigrateCommand(configFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or roll back the journal schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending journal migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openJournalDB(configPath(*configFlag))
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-only command

			status, err := db.MigrationStatus(cmd.Context(), migrations.FS)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, a := range status.Applied {
				fmt.Fprintf(out, "applied  %s  %s\n", a.Version, a.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			for _, m := range status.Pending {
				fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
			}
			if size, err := db.Size(); err == nil {
				fmt.Fprintf(out, "%s: %d KiB\n", db.Path(), size/1024)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the newest journal migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openJournalDB(configPath(*configFlag))
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // closing after rollback

			m, ok, err := db.Rollback(cmd.Context(), migrations.FS)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s %s\n", m.Version, m.Name)
			return nil
		},
	})
	return cmd
}

func openJournalDB(path string) (*database.DB, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}
