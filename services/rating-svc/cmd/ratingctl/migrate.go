package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"busbar/migrations"
	"busbar/pkg/database"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}

	run := func(fn func(ctx context.Context, m *database.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			db, err := database.NewPostgresDB(cmd.Context(), &cfg.Database)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer db.Close()
			return fn(cmd.Context(), database.NewMigrator(db.Pool(), migrations.FS, migrations.Dir))
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE:  run(func(ctx context.Context, m *database.Migrator) error { return m.Up(ctx) }),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE:  run(func(ctx context.Context, m *database.Migrator) error { return m.Down(ctx) }),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the status of every migration",
			Args:  cobra.NoArgs,
			RunE:  run(func(ctx context.Context, m *database.Migrator) error { return m.Status(ctx) }),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(func(ctx context.Context, m *database.Migrator) error {
					v, err := m.Version(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), v)
					return nil
				})(cmd, args)
			},
		},
	)

	return cmd
}
