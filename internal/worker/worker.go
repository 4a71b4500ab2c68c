// Package worker consumes scan jobs from a Kafka topic and runs them through
// the batch scanner, one job at a time per claimed partition.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/logger"
	"github.com/mohammed-shakir/raceway-cad/internal/scan"
)

var ErrNotAssigned = errors.New("no partitions assigned")

type Scanner interface {
	Scan(ctx context.Context, paths []string, q scan.Query) ([]model.DrawingScanResult, error)
}

// Exporter writes a finished job's results in the requested formats.
type Exporter func(ctx context.Context, results []model.DrawingScanResult, formats []string) error

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
	Exporter Exporter
	// NewGroup overrides how the consumer group is created.
	NewGroup func(brokers []string, groupID string, cfg *sarama.Config) (sarama.ConsumerGroup, error)
}

type Runner struct {
	log      *slog.Logger
	cfg      Config
	scanner  Scanner
	export   Exporter
	newGroup func([]string, string, *sarama.Config) (sarama.ConsumerGroup, error)
	ms       *metricSet
	dedupe   *seqDedupe
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func New(cfg Config, s Scanner, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewGroup == nil {
		opts.NewGroup = sarama.NewConsumerGroup
	}
	return &Runner{
		log:      opts.Logger,
		cfg:      cfg.withDefaults(),
		scanner:  s,
		export:   opts.Exporter,
		newGroup: opts.NewGroup,
		ms:       newMetricSet(opts.Register),
		dedupe:   newSeqDedupe(8192),
		assign:   map[int32]struct{}{},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if r.scanner == nil {
		return errors.New("scan worker: scanner is required")
	}
	if len(r.cfg.Brokers) == 0 || r.cfg.Topic == "" {
		return errors.New("scan worker: brokers and topic are required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := r.newGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(true)
			r.assign = map[int32]struct{}{}
			for _, parts := range sess.Claims() {
				for _, p := range parts {
					r.assign[p] = struct{}{}
				}
			}
			r.assignMu.Unlock()
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(false)
			r.assign = map[int32]struct{}{}
			r.assignMu.Unlock()
		},
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("scan worker started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("scan worker stopped")
}

// Ready reports whether the group has handed this worker any partitions.
func (r *Runner) Ready(context.Context) error {
	if !r.assigned.Load() {
		return ErrNotAssigned
	}
	return nil
}

func (r *Runner) Partitions() []int32 {
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	out := make([]int32, 0, len(r.assign))
	for p := range r.assign {
		out = append(out, p)
	}
	return out
}

// handleMessage runs one job. Malformed or invalid jobs are logged and
// skipped so they cannot block the partition; an export failure is returned
// and the message is redelivered after the next rebalance.
func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	if !msg.Timestamp.IsZero() {
		r.ms.lagGauge.Set(time.Since(msg.Timestamp).Seconds())
	}

	var job Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		r.ms.jobs.WithLabelValues("invalid").Inc()
		r.log.Warn("skipping undecodable job", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := job.Validate(); err != nil {
		r.ms.jobs.WithLabelValues("invalid").Inc()
		r.log.Warn("skipping invalid job", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if r.dedupe.seen(job.RunID, job.Seq) {
		r.ms.jobs.WithLabelValues("duplicate").Inc()
		return nil
	}

	ctx = logger.WithComponent(logger.WithRunID(ctx, job.RunID), "worker")
	results, err := r.scanner.Scan(ctx, job.Paths, job.Query())
	if errors.Is(err, scan.ErrConfig) {
		r.ms.jobs.WithLabelValues("invalid").Inc()
		r.log.WarnContext(ctx, "skipping job with bad query", "err", err)
		r.dedupe.done(job.RunID, job.Seq)
		return nil
	}
	if err != nil {
		r.ms.jobs.WithLabelValues("error").Inc()
		return fmt.Errorf("scan run %s: %w", job.RunID, err)
	}
	if r.export != nil {
		if err := r.export(ctx, results, job.Formats); err != nil {
			r.ms.jobs.WithLabelValues("error").Inc()
			return fmt.Errorf("export run %s: %w", job.RunID, err)
		}
	}

	r.dedupe.done(job.RunID, job.Seq)
	r.ms.jobs.WithLabelValues("ok").Inc()
	r.ms.proc.Observe(time.Since(start).Seconds())
	r.log.InfoContext(ctx, "scan job done", "files", len(results), "took", time.Since(start))
	return nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
