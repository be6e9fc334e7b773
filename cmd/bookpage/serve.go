package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/bookpage/pkg/httpserver"
	"github.com/dmitrymomot/bookpage/svc/reconcile"
)

var withoutScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the reconciliation sweeps",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withoutScheduler, "no-sweeps", false, "Do not run reconciliation sweeps in this process")
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	handler, err := a.router()
	if err != nil {
		return err
	}
	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, handler)
	})

	if !withoutScheduler {
		sched := reconcile.NewScheduler(reconcile.WithSchedulerLogger(log))
		if err := a.reconcile.Register(sched, cfg.Reconcile); err != nil {
			return err
		}
		g.Go(func() error {
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	log.Info("bookpage started", "version", Version, "addr", cfg.HTTP.Addr)
	return g.Wait()
}
