// Package lifecycle evaluates trading signals against live prices and moves
// them through PENDING → OPEN → CLOSED (or CANCELLED), and runs the monitor
// tick that persists each transition and fans it out to notifications.
//
// Evaluation is pure: Evaluate takes the persisted snapshot and a price and
// returns the new lifecycle plus the events it appended. Every rule checks
// the event log before firing, so re-evaluating a snapshot that already
// records an effect never applies it twice.
package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/signal-monitor/internal/model"
)

// DefaultThreshold is the ± fraction of a reference price that counts as
// "at" that price.
var DefaultThreshold = decimal.NewFromFloat(0.005)

var (
	// ErrInvalidSignal is returned by Validate for signals the engine cannot
	// evaluate.
	ErrInvalidSignal = errors.New("lifecycle: invalid signal terms")
)

// Engine applies the lifecycle rules. It is stateless apart from its
// configuration and safe for concurrent use.
type Engine struct {
	threshold decimal.Decimal
	newID     func() string
}

// NewEngine creates an engine with the given window fraction. A zero or
// negative threshold falls back to DefaultThreshold.
func NewEngine(threshold decimal.Decimal) *Engine {
	if !threshold.IsPositive() {
		threshold = DefaultThreshold
	}
	return &Engine{
		threshold: threshold,
		newID:     uuid.NewString,
	}
}

// Threshold returns the configured window fraction.
func (e *Engine) Threshold() decimal.Decimal {
	return e.threshold
}

// Outcome is the result of evaluating one signal at one price.
type Outcome struct {
	Lifecycle model.Lifecycle
	Events    []model.Event
}

// Changed reports whether anything needs to be persisted.
func (o Outcome) Changed() bool {
	return len(o.Events) > 0
}

// Validate checks the terms the rules depend on.
func Validate(sig model.Signal) error {
	switch {
	case !sig.Direction.Valid():
		return fmt.Errorf("%w: direction %q", ErrInvalidSignal, sig.Direction)
	case !sig.Entry.IsPositive():
		return fmt.Errorf("%w: entry must be positive", ErrInvalidSignal)
	case !sig.Stop.IsPositive():
		return fmt.Errorf("%w: stop must be positive", ErrInvalidSignal)
	case !sig.Leverage.IsPositive():
		return fmt.Errorf("%w: leverage must be positive", ErrInvalidSignal)
	}
	for i, t := range sig.Targets {
		if !t.IsPositive() {
			return fmt.Errorf("%w: target %d must be positive", ErrInvalidSignal, i+1)
		}
		if i > 0 && !beyond(sig.Direction, t, sig.Targets[i-1]) {
			return fmt.Errorf("%w: target %d must be %s target %d", ErrInvalidSignal, i+1, farther(sig.Direction), i)
		}
	}
	return nil
}

// beyond reports whether a lies strictly further along the trade than b:
// higher for LONG, lower for SHORT.
func beyond(dir model.Direction, a, b decimal.Decimal) bool {
	if dir == model.Short {
		return a.LessThan(b)
	}
	return a.GreaterThan(b)
}

func farther(dir model.Direction) string {
	if dir == model.Short {
		return "below"
	}
	return "above"
}

// targetOrder returns target indexes from nearest to farthest from entry.
// For a valid signal this is the list order.
func targetOrder(dir model.Direction, targets []decimal.Decimal) []int {
	order := make([]int, len(targets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return beyond(dir, targets[order[b]], targets[order[a]])
	})
	return order
}

// Evaluate runs one tick of the rules for sig at price.
//
// Order within a tick:
//  1. manual close (OPEN only) wins outright;
//  2. New flag cleared;
//  3. PENDING: cancellation, then entry (a cancelled signal never opens);
//  4. OPEN in the snapshot: targets, then stop.
//
// Target and stop rules look at the snapshot state, so a signal that opens
// in this tick is first checked against targets on the next one. At most
// one terminal transition happens per tick.
func (e *Engine) Evaluate(sig model.Signal, price decimal.Decimal, now time.Time) Outcome {
	snap := sig.Lifecycle
	if snap.Terminal() {
		return Outcome{Lifecycle: snap.Clone()}
	}

	ev := &evaluation{
		engine: e,
		sig:    sig,
		lc:     snap.Clone(),
		price:  price,
		now:    now.UTC(),
	}

	pending := !snap.IsOpen && !snap.IsClosed
	open := snap.IsOpen && !snap.IsClosed

	if snap.IsManualCloseRequested && open {
		ev.manualClose()
		return ev.outcome()
	}

	if ev.lc.IsNew {
		ev.lc.IsNew = false
		ev.emit(model.Event{Kind: model.EventNew, Price: price, Reason: "signal published"})
	}

	if pending {
		if !ev.cancel() {
			ev.enter()
		}
	}

	if open {
		if !ev.targets() {
			ev.stop()
		}
	}

	return ev.outcome()
}

// evaluation is the scratch state for one Evaluate call.
type evaluation struct {
	engine *Engine
	sig    model.Signal
	lc     model.Lifecycle
	price  decimal.Decimal
	now    time.Time
	events []model.Event
}

func (ev *evaluation) outcome() Outcome {
	return Outcome{Lifecycle: ev.lc, Events: ev.events}
}

func (ev *evaluation) emit(e model.Event) {
	e.ID = ev.engine.newID()
	e.Timestamp = ev.now
	ev.lc.Events = append(ev.lc.Events, e)
	ev.events = append(ev.events, e)
}

// within reports whether price lies inside ± threshold of ref.
func (ev *evaluation) within(ref decimal.Decimal) bool {
	band := ref.Abs().Mul(ev.engine.threshold)
	return ev.price.Sub(ref).Abs().LessThanOrEqual(band)
}

// cancel fires when the first decision point (stop or first target) is
// already at hand while the signal is still PENDING.
func (ev *evaluation) cancel() bool {
	var reason string
	switch {
	case ev.within(ev.sig.Stop):
		reason = fmt.Sprintf("price %s reached the stop zone %s before entry", ev.price, ev.sig.Stop)
	case len(ev.sig.Targets) > 0 && ev.within(ev.sig.Targets[0]):
		reason = fmt.Sprintf("price %s reached the first target zone %s before entry", ev.price, ev.sig.Targets[0])
	default:
		return false
	}

	ev.lc.IsCancelled = true
	ev.emit(model.Event{Kind: model.EventCancelled, Price: ev.price, Reason: reason})
	return true
}

// enter opens the position when price is inside the entry window. The
// window is the same for LONG and SHORT.
func (ev *evaluation) enter() {
	if ev.lc.Entry != nil || !ev.within(ev.sig.Entry) {
		return
	}
	entry := ev.price
	at := ev.now
	ev.lc.IsOpen = true
	ev.lc.Entry = &entry
	ev.lc.EntryDate = &at
	ev.emit(model.Event{Kind: model.EventEntry, Price: ev.price, Reason: "price entered the entry zone"})
}

func (ev *evaluation) targetReached(target decimal.Decimal) bool {
	if ev.sig.Direction == model.Short {
		return ev.price.LessThanOrEqual(target)
	}
	return ev.price.GreaterThanOrEqual(target)
}

// targets records newly hit targets in ascending order (T1 first, nearest
// to entry) and closes the signal once every target is covered, exiting at
// the farthest one. Returns true if the signal closed.
func (ev *evaluation) targets() bool {
	var hits []int
	covered := 0
	seen := make(map[string]bool, len(ev.sig.Targets))
	for _, i := range targetOrder(ev.sig.Direction, ev.sig.Targets) {
		t := ev.sig.Targets[i]
		key := t.String()
		if ev.lc.TargetHit(t) || seen[key] {
			covered++
			continue
		}
		if ev.targetReached(t) {
			hits = append(hits, i)
			seen[key] = true
			covered++
		}
	}
	if len(hits) == 0 {
		return false
	}

	closing := covered == len(ev.sig.Targets)
	for n, i := range hits {
		target := ev.sig.Targets[i]
		e := model.Event{
			Kind:   model.EventTargetHit,
			Price:  ev.price,
			Target: &target,
			Reason: fmt.Sprintf("target %d reached", i+1),
		}
		if closing && n == len(hits)-1 {
			m := ev.close(target)
			e.Reason = fmt.Sprintf("target %d reached, all targets hit", i+1)
			e.Details = metricDetails(m)
		}
		ev.emit(e)
	}
	return closing
}

// stop closes the position when price crosses the stop.
func (ev *evaluation) stop() {
	hit := ev.price.LessThanOrEqual(ev.sig.Stop)
	if ev.sig.Direction == model.Short {
		hit = ev.price.GreaterThanOrEqual(ev.sig.Stop)
	}
	if !hit {
		return
	}
	ev.lc.IsStop = true
	m := ev.close(ev.price)
	ev.emit(model.Event{
		Kind:    model.EventStopLoss,
		Price:   ev.price,
		Reason:  fmt.Sprintf("price crossed the stop %s", ev.sig.Stop),
		Details: metricDetails(m),
	})
}

func (ev *evaluation) manualClose() {
	m := ev.close(ev.price)
	ev.emit(model.Event{
		Kind:    model.EventManualClose,
		Price:   ev.price,
		Reason:  "closed manually by the trader",
		Details: metricDetails(m),
	})
}

// close moves the lifecycle to CLOSED at exit and sets the metrics.
func (ev *evaluation) close(exit decimal.Decimal) model.Metrics {
	entry := ev.sig.Entry
	if ev.lc.Entry != nil {
		entry = *ev.lc.Entry
	}
	at := ev.now
	m := ComputeMetrics(ev.sig.Direction, entry, exit, ev.sig.Stop, ev.sig.Leverage)

	ev.lc.IsOpen = false
	ev.lc.IsClosed = true
	ev.lc.Exit = &exit
	ev.lc.ExitDate = &at
	ev.lc.Metrics = &m
	return m
}

func metricDetails(m model.Metrics) map[string]string {
	return map[string]string{
		"pnl_percentage":    m.PnLPercentage.String(),
		"pnl_amount":        m.PnLAmount.String(),
		"risk_reward_ratio": m.RiskRewardRatio.String(),
	}
}
