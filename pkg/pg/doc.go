// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Connect opens a *pgxpool.Pool with retry, Migrate runs goose/v3 migrations
// from an fs.FS against the same pool, and Healthcheck returns a readiness
// probe. The Is*Error helpers classify *pgconn.PgError values so store code
// can map constraint violations to domain errors.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, profile.Migrations, log); err != nil {
//		return err
//	}
package pg
