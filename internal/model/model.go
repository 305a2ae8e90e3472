// Package model defines the core domain types shared across the signal monitor.
// All prices and P&L values use shopspring/decimal, never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a trade recommendation.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign returns +1 for LONG and -1 for SHORT.
func (d Direction) Sign() decimal.Decimal {
	if d == Short {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// EventKind labels an entry in a signal's event log.
type EventKind string

const (
	EventNew         EventKind = "New"
	EventEntry       EventKind = "Entry"
	EventTargetHit   EventKind = "Target Hit"
	EventStopLoss    EventKind = "Stop Loss"
	EventManualClose EventKind = "Manual Close"
	EventCancelled   EventKind = "Cancelled"
)

// Event is one append-only record in a signal's lifecycle. The event log is
// the source of truth for idempotency: an effect already represented here
// is never applied twice.
type Event struct {
	ID        string            `json:"id"`
	Kind      EventKind         `json:"kind"`
	Price     decimal.Decimal   `json:"price"`
	Target    *decimal.Decimal  `json:"target,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Metrics are the realized performance figures, set only on a terminal
// close (targets, stop or manual). Cancelled signals have none.
type Metrics struct {
	PnLPercentage   decimal.Decimal `json:"pnl_percentage"`
	PnLAmount       decimal.Decimal `json:"pnl_amount"`
	RiskRewardRatio decimal.Decimal `json:"risk_reward_ratio"`
}

// Lifecycle is the mutable part of a signal. It is only changed by the
// lifecycle engine and by the manual-close request flag.
type Lifecycle struct {
	IsNew                  bool `json:"is_new"`
	IsOpen                 bool `json:"is_open"`
	IsClosed               bool `json:"is_closed"`
	IsStop                 bool `json:"is_stop"`
	IsCancelled            bool `json:"is_cancelled"`
	IsManualCloseRequested bool `json:"is_manual_close_requested"`

	Entry     *decimal.Decimal `json:"entry,omitempty"`
	Exit      *decimal.Decimal `json:"exit,omitempty"`
	EntryDate *time.Time       `json:"entry_date,omitempty"`
	ExitDate  *time.Time       `json:"exit_date,omitempty"`

	Metrics *Metrics `json:"metrics,omitempty"`
	Events  []Event  `json:"events"`
}

// Clone returns a deep copy so callers can mutate without aliasing the
// stored record.
func (l Lifecycle) Clone() Lifecycle {
	c := l
	if l.Entry != nil {
		v := *l.Entry
		c.Entry = &v
	}
	if l.Exit != nil {
		v := *l.Exit
		c.Exit = &v
	}
	if l.EntryDate != nil {
		v := *l.EntryDate
		c.EntryDate = &v
	}
	if l.ExitDate != nil {
		v := *l.ExitDate
		c.ExitDate = &v
	}
	if l.Metrics != nil {
		m := *l.Metrics
		c.Metrics = &m
	}
	c.Events = make([]Event, len(l.Events))
	for i, e := range l.Events {
		if e.Target != nil {
			t := *e.Target
			e.Target = &t
		}
		if e.Details != nil {
			d := make(map[string]string, len(e.Details))
			for k, v := range e.Details {
				d[k] = v
			}
			e.Details = d
		}
		c.Events[i] = e
	}
	return c
}

// State is the derived live state of a signal.
type State string

const (
	StatePending   State = "PENDING"
	StateOpen      State = "OPEN"
	StateClosed    State = "CLOSED"
	StateCancelled State = "CANCELLED"
)

// State derives the live state from the lifecycle flags.
func (l Lifecycle) State() State {
	switch {
	case l.IsCancelled:
		return StateCancelled
	case l.IsClosed:
		return StateClosed
	case l.IsOpen:
		return StateOpen
	default:
		return StatePending
	}
}

// Terminal reports whether no further rule evaluation can have an effect.
func (l Lifecycle) Terminal() bool {
	return l.IsClosed || l.IsCancelled
}

// TargetHit reports whether the event log already records a hit for target.
func (l Lifecycle) TargetHit(target decimal.Decimal) bool {
	for _, e := range l.Events {
		if e.Kind == EventTargetHit && e.Target != nil && e.Target.Equal(target) {
			return true
		}
	}
	return false
}

// Signal is one directional trade recommendation published by a trader
// (the "operation").
type Signal struct {
	ID        string            `json:"id"`
	TraderID  string            `json:"trader_id"`
	Username  string            `json:"username"`
	Pair      string            `json:"pair"`
	Direction Direction         `json:"direction"`
	Leverage  decimal.Decimal   `json:"leverage"`
	Entry     decimal.Decimal   `json:"entry"`
	Stop      decimal.Decimal   `json:"stop"`
	Targets   []decimal.Decimal `json:"targets"`
	Strategy  string            `json:"strategy,omitempty"`
	Risk      string            `json:"risk,omitempty"`
	Lifecycle Lifecycle         `json:"lifecycle"`
	Version   int64             `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
}

// Clone returns a deep copy of the signal.
func (s Signal) Clone() Signal {
	c := s
	c.Targets = append([]decimal.Decimal(nil), s.Targets...)
	c.Lifecycle = s.Lifecycle.Clone()
	return c
}
