package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/bookpage/pkg/pg"
	"github.com/dmitrymomot/bookpage/svc/profile"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		pool, err := pg.Connect(cmd.Context(), cfg.PG)
		if err != nil {
			return err
		}
		defer pool.Close()

		return pg.Migrate(cmd.Context(), pool, cfg.PG, profile.Migrations, log)
	},
}
