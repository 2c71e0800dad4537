package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellolink/internal/config"
	"github.com/dropDatabas3/hellolink/internal/store/pg"
	migrations "github.com/dropDatabas3/hellolink/migrations/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones pendientes del schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate requiere storage.driver=postgres (actual: %q)", cfg.Storage.Driver)
			}

			ctx := cmd.Context()
			store, err := pg.Connect(ctx, cfg.Storage.DSN, cfg.Storage.Postgres.MaxOpenConns, cfg.Storage.Postgres.MaxIdleConns)
			if err != nil {
				return err
			}
			defer store.Close()

			ran, err := store.Migrate(ctx, migrations.FS)
			if err != nil {
				return err
			}
			if len(ran) == 0 {
				fmt.Println("schema al día, nada que aplicar")
				return nil
			}
			fmt.Printf("aplicadas %d migraciones: %v\n", len(ran), ran)
			return nil
		},
	}
}
