package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/raceway-cad/internal/core/config"
	"github.com/mohammed-shakir/raceway-cad/internal/core/health"
	"github.com/mohammed-shakir/raceway-cad/internal/core/server"
	"github.com/mohammed-shakir/raceway-cad/internal/host/memdb"
	"github.com/mohammed-shakir/raceway-cad/internal/scan"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve scans over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := setup(cmd, "http", true, func(c *config.Config) {
				if addr != "" {
					c.Addr = addr
				}
			})
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := scan.Options{Logger: a.log, Register: a.metrics.Registerer(), RunID: a.runID}
			ready := map[string]health.Check{}
			if rc, store := a.resultCache(ctx); rc != nil {
				opts.Cache = rc
				ready["cache"] = func(ctx context.Context) error { return store.Ping(ctx) }
			}
			pub, err := a.publisher()
			if err != nil {
				return err
			}
			if pub != nil {
				opts.Events = pub
			}

			a.log.Info("starting server", "addr", a.cfg.Addr, "version", Version)
			h := server.NewRouter(server.Deps{
				Logger:  a.log,
				Metrics: a.metrics.Handler(),
				Scanner: scan.New(memdb.Opener{}, opts),
				Ready:   ready,
			})
			return server.Run(ctx, a.cfg.Addr, h, a.log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	return cmd
}
