package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hongminglow/passgate/internal/config"
	"github.com/hongminglow/passgate/internal/storage/postgres"
)

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	run := func(name string, fn func(*postgres.Migrator) (string, error)) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("Run migrate %s", name),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) (err error) {
				cfg, logger, err := flags.load(cmd)
				if err != nil {
					return err
				}
				if cfg.Database.Driver != config.DriverPostgres {
					return oops.Code("MIGRATE_UNSUPPORTED").
						With("database.driver", cfg.Database.Driver).
						Errorf("migrations only apply to the postgres driver")
				}

				m, err := postgres.NewMigrator(cfg.Database.URL)
				if err != nil {
					return err
				}
				defer func() {
					if cerr := m.Close(); cerr != nil && err == nil {
						err = cerr
					}
				}()

				out, err := fn(m)
				if err != nil {
					return err
				}
				logger.Info("migrate "+name+" complete", "result", out)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			},
		}
	}

	cmd.AddCommand(
		run("up", func(m *postgres.Migrator) (string, error) {
			return "schema is up to date", m.Up()
		}),
		run("down", func(m *postgres.Migrator) (string, error) {
			return "all migrations rolled back", m.Down()
		}),
		run("version", func(m *postgres.Migrator) (string, error) {
			v, dirty, err := m.Version()
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("version %d (dirty=%t)", v, dirty), nil
		}),
	)
	return cmd
}
