package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/raceway-cad/internal/cache"
	"github.com/mohammed-shakir/raceway-cad/internal/cache/redisstore"
	"github.com/mohammed-shakir/raceway-cad/internal/core/config"
	"github.com/mohammed-shakir/raceway-cad/internal/events"
	"github.com/mohammed-shakir/raceway-cad/internal/logger"
	"github.com/mohammed-shakir/raceway-cad/internal/metrics"
)

// app is the wiring shared by every command.
type app struct {
	cfg     config.Config
	zl      zerolog.Logger
	log     *slog.Logger
	metrics *metrics.Provider
	runID   string

	closers []func() error
}

// setup loads configuration, applies command flag overrides, validates and
// builds the logger and metrics registry.
func setup(cmd *cobra.Command, component string, runtimeMetrics bool, override func(*config.Config)) (*app, error) {
	cfg := config.FromEnv()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if override != nil {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, runID: logger.NewRunID()}
	a.zl = logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: component,
		RunID:     a.runID,
	}, os.Stderr)
	a.log = logger.NewSlog(&a.zl)
	a.metrics = metrics.Init(metrics.Config{
		Runtime: runtimeMetrics,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	return a, nil
}

func (a *app) context(ctx context.Context, component string) context.Context {
	return logger.WithComponent(logger.WithRunID(ctx, a.runID), component)
}

// resultCache connects the Redis result cache when enabled. A connection
// failure disables caching for the run instead of failing it.
func (a *app) resultCache(ctx context.Context) (*cache.Results, *redisstore.Client) {
	if !a.cfg.CacheEnabled {
		return nil, nil
	}
	rc, err := redisstore.New(ctx, a.cfg.RedisAddr, a.metrics.Registerer())
	if err != nil {
		a.log.Warn("result cache unavailable; scanning without it", "addr", a.cfg.RedisAddr, "err", err)
		return nil, nil
	}
	a.closers = append(a.closers, rc.Close)
	return cache.NewResults(rc, a.cfg.CacheTTL), rc
}

func (a *app) publisher() (*events.Publisher, error) {
	if !a.cfg.Events.Enabled {
		return nil, nil
	}
	p, err := events.NewPublisher(a.cfg.Events.BrokerList(), a.cfg.Events.Topic, a.cfg.Events.Queue, a.log)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	a.closers = append(a.closers, p.Close)
	return p, nil
}

// close flushes everything opened for the run and writes the metrics
// textfile last so it sees the final counts.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	errs = append(errs, a.metrics.WriteTextfile(a.cfg.MetricsTextfile))
	return errors.Join(errs...)
}
