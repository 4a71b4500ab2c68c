package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/raceway-cad/internal/core/config"
	"github.com/mohammed-shakir/raceway-cad/internal/core/health"
	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/core/server"
	"github.com/mohammed-shakir/raceway-cad/internal/export"
	"github.com/mohammed-shakir/raceway-cad/internal/host/memdb"
	"github.com/mohammed-shakir/raceway-cad/internal/scan"
	"github.com/mohammed-shakir/raceway-cad/internal/worker"
)

func workerCmd() *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume scan jobs from Kafka and export their results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := setup(cmd, "worker", true, func(c *config.Config) {
				if topic != "" {
					c.Worker.Topic = topic
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

			opts := scan.Options{Logger: a.log, Register: a.metrics.Registerer()}
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

			w := worker.New(worker.Config{
				Brokers:       a.cfg.Events.BrokerList(),
				Topic:         a.cfg.Worker.Topic,
				GroupID:       a.cfg.Worker.GroupID,
				InitialOldest: a.cfg.Worker.InitialOldest,
			}, scan.New(memdb.Opener{}, opts), worker.Options{
				Logger:   a.log,
				Register: a.metrics.Registerer(),
				Exporter: exporter(a),
			})
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()
			ready["kafka"] = w.Ready

			h := server.NewRouter(server.Deps{Logger: a.log, Metrics: a.metrics.Handler(), Ready: ready})
			return server.Run(ctx, a.cfg.Addr, h, a.log)
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "jobs topic")
	return cmd
}

// exporter writes job results into the configured export directory. A job
// without formats gets json.
func exporter(a *app) worker.Exporter {
	return func(ctx context.Context, results []model.DrawingScanResult, formats []string) error {
		if len(formats) == 0 {
			formats = []string{"json"}
		}
		for _, name := range formats {
			w, err := export.New(name, a.cfg.ExportDir, a.log)
			if err != nil {
				return err
			}
			if _, err := w.Write(ctx, results); err != nil {
				return fmt.Errorf("export %s: %w", name, err)
			}
		}
		return nil
	}
}
