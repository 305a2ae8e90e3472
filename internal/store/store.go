// Package store defines the persistence interfaces for the signal monitor.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache for directory lookups), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/signal-monitor/internal/model"
)

var (
	// ErrNotFound is returned when a signal, community or channel does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrVersionConflict is returned by ApplyUpdate when the stored version
	// no longer matches the version the caller read.
	ErrVersionConflict = errors.New("store: version conflict")
)

// SignalStore persists trading signals. The monitor reads candidates and
// writes lifecycle deltas with compare-and-swap on Signal.Version.
type SignalStore interface {
	// CreateSignal persists a new signal.
	CreateSignal(ctx context.Context, sig *model.Signal) error

	// GetSignal retrieves a signal by its ID.
	GetSignal(ctx context.Context, id string) (*model.Signal, error)

	// FindCandidates returns every PENDING or OPEN signal.
	FindCandidates(ctx context.Context) ([]model.Signal, error)

	// ApplyUpdate replaces the lifecycle if the stored version equals
	// version, bumping it by one. Returns the refreshed signal.
	ApplyUpdate(ctx context.Context, id string, version int64, lc model.Lifecycle) (*model.Signal, error)

	// RequestManualClose sets the manual-close flag and bumps the version.
	// A signal already flagged is returned unchanged.
	RequestManualClose(ctx context.Context, id string) (*model.Signal, error)
}

// Directory resolves who should hear about a trader's signals.
type Directory interface {
	// CommunitiesHiringTrader returns communities whose hired list contains
	// traderID. Inactive communities are included; callers filter.
	CommunitiesHiringTrader(ctx context.Context, traderID string) ([]model.Community, error)

	// ActiveChannels returns the active channels of a community.
	ActiveChannels(ctx context.Context, communityID string) ([]model.Channel, error)
}

// IsCandidate reports whether a signal should be evaluated by the monitor:
// status PENDING, or open and not closed.
func IsCandidate(lc model.Lifecycle) bool {
	if lc.IsCancelled || lc.IsClosed {
		return false
	}
	return true
}
