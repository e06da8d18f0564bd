package main

import (
	"fmt"

	"carechat/infrastructure/config"
	"carechat/infrastructure/persistence/sqlstore"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQL schema migrations",
	Long:  `Migrates the Postgres or SQLite store selected by STORE_KIND. Other stores have no schema.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		var db *sqlstore.DB
		switch cfg.StoreKind {
		case config.StorePostgres:
			db, err = sqlstore.OpenPostgres(cmd.Context(), cfg.DatabaseURL)
		case config.StoreSQLite:
			db, err = sqlstore.OpenSQLite(cmd.Context(), cfg.SQLitePath)
		default:
			return fmt.Errorf("store %q has no schema to migrate", cfg.StoreKind)
		}
		if err != nil {
			return err
		}
		defer db.Close()

		version, err := db.Migrate(cmd.Context(), logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", db.Dialect(), version)
		return nil
	},
}
