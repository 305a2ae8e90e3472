package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/signal-monitor/internal/instrument"
	"github.com/atmx/signal-monitor/internal/metrics"
	"github.com/atmx/signal-monitor/internal/model"
	"github.com/atmx/signal-monitor/internal/notify"
	"github.com/atmx/signal-monitor/internal/store"
)

// PriceSource returns current prices keyed by canonical symbol.
type PriceSource interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// Notifier delivers one lifecycle event to every interested channel.
type Notifier interface {
	Notify(ctx context.Context, eventType model.EventType, sig model.Signal) notify.Report
}

// Broadcaster pushes lifecycle events to live subscribers.
type Broadcaster interface {
	PublishEvent(sig model.Signal, ev model.Event)
}

// TickReport summarizes one monitor pass.
type TickReport struct {
	Candidates int           `json:"candidates"`
	Symbols    int           `json:"symbols"`
	Evaluated  int           `json:"evaluated"`
	Updated    int           `json:"updated"`
	Events     int           `json:"events"`
	NoPrice    int           `json:"no_price"`
	Invalid    int           `json:"invalid"`
	Conflicts  int           `json:"conflicts"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Monitor runs the load → price → evaluate → persist → notify pipeline.
type Monitor struct {
	store       store.SignalStore
	prices      PriceSource
	engine      *Engine
	notifier    Notifier
	broadcaster Broadcaster
	now         func() time.Time
}

// NewMonitor wires a monitor. notifier may be nil to disable delivery.
func NewMonitor(st store.SignalStore, prices PriceSource, engine *Engine, notifier Notifier) *Monitor {
	return &Monitor{
		store:    st,
		prices:   prices,
		engine:   engine,
		notifier: notifier,
		now:      time.Now,
	}
}

// WithBroadcaster attaches a live event broadcaster.
func (m *Monitor) WithBroadcaster(b Broadcaster) *Monitor {
	m.broadcaster = b
	return m
}

// Tick evaluates every PENDING or OPEN signal once. A store or price
// failure aborts the whole tick; per-signal failures only skip that signal
// and are picked up again from durable state on the next tick.
func (m *Monitor) Tick(ctx context.Context) (TickReport, error) {
	start := m.now()
	var rep TickReport
	defer func() {
		rep.Duration = m.now().Sub(start)
		metrics.TickDuration.Observe(rep.Duration.Seconds())
	}()

	candidates, err := m.store.FindCandidates(ctx)
	if err != nil {
		metrics.TicksTotal.WithLabelValues("store_error").Inc()
		return rep, fmt.Errorf("load candidates: %w", err)
	}
	rep.Candidates = len(candidates)
	metrics.Candidates.Set(float64(len(candidates)))
	if len(candidates) == 0 {
		metrics.TicksTotal.WithLabelValues("ok").Inc()
		return rep, nil
	}

	symbols := make([]string, 0, len(candidates))
	for _, sig := range candidates {
		symbols = append(symbols, sig.Pair)
	}
	symbols = instrument.Dedupe(symbols)
	rep.Symbols = len(symbols)

	prices, err := m.prices.GetPrices(ctx, symbols)
	if err != nil {
		metrics.TicksTotal.WithLabelValues("price_error").Inc()
		return rep, fmt.Errorf("fetch prices: %w", err)
	}

	for _, sig := range candidates {
		if err := ctx.Err(); err != nil {
			metrics.TicksTotal.WithLabelValues("cancelled").Inc()
			return rep, err
		}
		m.process(ctx, sig, prices, &rep)
	}

	metrics.TicksTotal.WithLabelValues("ok").Inc()
	slog.Info("monitor tick complete",
		"candidates", rep.Candidates,
		"symbols", rep.Symbols,
		"updated", rep.Updated,
		"events", rep.Events,
		"conflicts", rep.Conflicts,
		"failed", rep.Failed,
	)
	return rep, nil
}

func (m *Monitor) process(ctx context.Context, sig model.Signal, prices map[string]decimal.Decimal, rep *TickReport) {
	if err := Validate(sig); err != nil {
		rep.Invalid++
		metrics.UpdateFailures.WithLabelValues("invalid").Inc()
		slog.Warn("skipping invalid signal", "signal_id", sig.ID, "err", err)
		return
	}

	price, ok := prices[instrument.Symbol(sig.Pair)]
	if !ok {
		rep.NoPrice++
		slog.Debug("no price for signal", "signal_id", sig.ID, "pair", sig.Pair)
		return
	}

	rep.Evaluated++
	out := m.engine.Evaluate(sig, price, m.now())
	if !out.Changed() {
		return
	}

	updated, err := m.store.ApplyUpdate(ctx, sig.ID, sig.Version, out.Lifecycle)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			rep.Conflicts++
			metrics.UpdateFailures.WithLabelValues("conflict").Inc()
			slog.Info("signal changed concurrently, retrying next tick", "signal_id", sig.ID, "version", sig.Version)
			return
		}
		rep.Failed++
		metrics.UpdateFailures.WithLabelValues("store").Inc()
		slog.Error("persist lifecycle failed", "signal_id", sig.ID, "err", err)
		return
	}
	rep.Updated++

	for _, ev := range out.Events {
		rep.Events++
		metrics.LifecycleEvents.WithLabelValues(string(ev.Kind)).Inc()
		slog.Info("lifecycle event",
			"signal_id", updated.ID,
			"pair", updated.Pair,
			"event", ev.Kind,
			"price", ev.Price.String(),
		)
		if m.notifier != nil {
			m.notifier.Notify(ctx, ev.Kind.EventType(), *updated)
		}
		if m.broadcaster != nil {
			m.broadcaster.PublishEvent(*updated, ev)
		}
	}
}
