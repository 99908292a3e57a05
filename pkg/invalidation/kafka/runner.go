package kafka

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

	"github.com/mohammed-shakir/meteo-query/internal/cache"
	"github.com/mohammed-shakir/meteo-query/internal/cache/keys"
	"github.com/mohammed-shakir/meteo-query/internal/core/observability"
	"github.com/mohammed-shakir/meteo-query/internal/invalidation"
	"github.com/mohammed-shakir/meteo-query/internal/mapper"
)

type HotnessResetter interface {
	Reset(cells ...string)
}

// CellIndex finds the cached keys of an area.
type CellIndex interface {
	Keys(ctx context.Context, cells []string) ([]string, error)
	Forget(ctx context.Context, cells []string) error
}

type Runner struct {
	log      *slog.Logger
	cfg      InvalidationConfig
	stores   []cache.Interface
	mapper   mapper.Interface
	idx      CellIndex
	hot      HotnessResetter
	opTO     time.Duration
	ms       *metricSet
	ver      *versionDedupe
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger    *slog.Logger
	Register  prometheus.Registerer
	Hotness   HotnessResetter
	CellIndex CellIndex
	// OpTimeout bounds each cache call made for one event.
	OpTimeout time.Duration
}

// New builds a runner that deletes matching keys from every store.
func New(cfg InvalidationConfig, stores []cache.Interface, m mapper.Interface, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 2 * time.Second
	}
	return &Runner{
		log:    opts.Logger,
		cfg:    cfg,
		stores: stores,
		mapper: m,
		idx:    opts.CellIndex,
		hot:    opts.Hotness,
		opTO:   opts.OpTimeout,
		ms:     newMetricSet(opts.Register),
		ver:    newVersionDedupe(8192),
		assign: map[int32]struct{}{},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if r.cfg.Driver != DriverKafka || !r.cfg.Enabled {
		r.log.Info("invalidation runner disabled", "driver", r.cfg.Driver, "enabled", r.cfg.Enabled)
		return nil
	}
	if len(r.stores) == 0 {
		return errors.New("kafka runner: at least one cache store is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "meteo-query-invalidation"
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
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

	r.log.Info("kafka invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("kafka invalidation runner stopped")
}

func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

// Check adapts Readiness to a readiness probe.
func (r *Runner) Check(context.Context) error {
	if ok, _ := r.Readiness(); !ok {
		return errors.New("no partitions assigned")
	}
	return nil
}

func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	if !msg.Timestamp.IsZero() {
		r.ms.lagGauge.Set(time.Since(msg.Timestamp).Seconds())
	}

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		return fmt.Errorf("decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		// a malformed event is skipped, not retried
		r.ms.msgs.WithLabelValues("invalid").Inc()
		r.log.Warn("invalid invalidation event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if ev.Version > 0 && !r.ver.shouldApply(ev.Source, ev.Version) {
		r.ms.apply.WithLabelValues("skip_version").Inc()
		return nil
	}

	err := r.apply(ctx, ev)
	r.observe(ev.Op, err, time.Since(start))
	if err == nil {
		observability.SetSourceInvalidatedAt(ev.Source, ev.TS)
	}
	return err
}

func (r *Runner) observe(op string, err error, dur time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
	} else {
		r.ms.msgs.WithLabelValues("ok").Inc()
	}
	r.ms.proc.WithLabelValues(op).Observe(dur.Seconds())
}

func (r *Runner) apply(ctx context.Context, ev invalidation.Event) error {
	if ev.Key != "" {
		if !ev.Matches(keys.ShapeOf(ev.Key)) {
			return nil
		}
		return r.delete(ctx, []string{ev.Key})
	}

	cells := ev.Cells
	if len(cells) == 0 {
		c, err := r.mapper.CellsForLocation(ev.Location())
		if err != nil {
			return fmt.Errorf("cells for event: %w", err)
		}
		cells = c
	}
	if len(cells) == 0 {
		return nil
	}

	if r.idx == nil {
		r.ms.apply.WithLabelValues("no_index").Inc()
		r.log.Warn("area invalidation without a cell index", "op", ev.Op, "cells", len(cells))
	} else {
		ictx, cancel := context.WithTimeout(ctx, r.opTO)
		found, err := r.idx.Keys(ictx, cells)
		cancel()
		if err != nil {
			return fmt.Errorf("cell index lookup: %w", err)
		}
		ks := make([]string, 0, len(found))
		for _, k := range found {
			if ev.Matches(keys.ShapeOf(k)) {
				ks = append(ks, k)
			}
		}
		if err := r.delete(ctx, ks); err != nil {
			return err
		}
	}

	if ev.Op != invalidation.OpPurge {
		return nil
	}
	if r.idx != nil && len(ev.Shapes) == 0 {
		fctx, cancel := context.WithTimeout(ctx, r.opTO)
		err := r.idx.Forget(fctx, cells)
		cancel()
		if err != nil {
			r.log.Warn("cell index forget failed", "cells", len(cells), "err", err)
		}
	}
	if r.hot != nil {
		r.hot.Reset(cells...)
	}
	return nil
}

func (r *Runner) delete(ctx context.Context, ks []string) error {
	if len(ks) == 0 {
		return nil
	}
	var errs []error
	for _, s := range r.stores {
		dctx, cancel := context.WithTimeout(ctx, r.opTO)
		if err := s.Del(dctx, ks...); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("cache del (%d keys): %w", len(ks), err)
	}
	r.ms.apply.WithLabelValues("delete").Add(float64(len(ks)))
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
