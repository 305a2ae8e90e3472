// Package notify fans lifecycle events out to the messaging channels of
// every community that hires the signal's trader. Delivery is best effort:
// each send is isolated and a failure never reaches the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/atmx/signal-monitor/internal/format"
	"github.com/atmx/signal-monitor/internal/metrics"
	"github.com/atmx/signal-monitor/internal/model"
	"github.com/atmx/signal-monitor/internal/store"
)

var (
	// ErrMissingCredentials is returned by a sender whose channel lacks a
	// required credential.
	ErrMissingCredentials = errors.New("notify: missing channel credentials")

	// ErrNoSender is recorded when a channel's type has no adapter.
	ErrNoSender = errors.New("notify: no sender for channel type")
)

// Sender delivers a rendered message over one messaging network.
type Sender interface {
	Send(ctx context.Context, creds model.Credentials, text string) error
}

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SendError is a non-2xx response from a messaging API.
type SendError struct {
	Channel    model.ChannelType
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("notify: %s returned %d: %s", e.Channel, e.StatusCode, e.Body)
}

// Report summarizes one Notify call.
type Report struct {
	Communities int `json:"communities"`
	Attempted   int `json:"attempted"`
	Delivered   int `json:"delivered"`
	Failed      int `json:"failed"`
}

// Dispatcher resolves recipients and sends through the channel adapters.
type Dispatcher struct {
	dir      store.Directory
	senders  map[model.ChannelType]Sender
	limiters map[model.ChannelType]*rate.Limiter
}

// NewDispatcher creates a dispatcher. perSecond limits sends per adapter;
// zero or negative disables throttling.
func NewDispatcher(dir store.Directory, senders map[model.ChannelType]Sender, perSecond float64) *Dispatcher {
	limiters := make(map[model.ChannelType]*rate.Limiter, len(senders))
	for typ := range senders {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			limiters[typ] = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
	return &Dispatcher{dir: dir, senders: senders, limiters: limiters}
}

// Notify delivers the message for eventType about sig. It never fails;
// lookup and send errors are logged and counted in the report.
func (d *Dispatcher) Notify(ctx context.Context, eventType model.EventType, sig model.Signal) Report {
	var rep Report

	communities, err := d.dir.CommunitiesHiringTrader(ctx, sig.TraderID)
	if err != nil {
		slog.Error("resolve communities failed", "trader_id", sig.TraderID, "signal_id", sig.ID, "err", err)
		return rep
	}

	active := communities[:0:0]
	for _, c := range communities {
		if c.Active {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		slog.Info("no active communities for trader", "trader_id", sig.TraderID, "signal_id", sig.ID)
		return rep
	}
	rep.Communities = len(active)

	text := format.Render(eventType, sig)

	for _, c := range active {
		channels, err := d.dir.ActiveChannels(ctx, c.ID)
		if err != nil {
			slog.Error("resolve channels failed", "community_id", c.ID, "err", err)
			continue
		}
		for _, ch := range channels {
			if !ch.Active {
				continue
			}
			rep.Attempted++
			if err := d.send(ctx, ch, text); err != nil {
				rep.Failed++
				metrics.Notifications.WithLabelValues(string(ch.Type), "error").Inc()
				slog.Warn("notification failed",
					"community_id", c.ID,
					"channel_id", ch.ID,
					"channel", ch.Type,
					"signal_id", sig.ID,
					"event", eventType,
					"err", err,
				)
				continue
			}
			rep.Delivered++
			metrics.Notifications.WithLabelValues(string(ch.Type), "ok").Inc()
		}
	}

	slog.Info("notifications dispatched",
		"signal_id", sig.ID,
		"event", eventType,
		"communities", rep.Communities,
		"delivered", rep.Delivered,
		"failed", rep.Failed,
	)
	return rep
}

// send isolates one delivery, including panics inside an adapter.
func (d *Dispatcher) send(ctx context.Context, ch model.Channel, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify: %s sender panicked: %v", ch.Type, r)
		}
	}()

	sender, ok := d.senders[ch.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSender, ch.Type)
	}
	if lim, ok := d.limiters[ch.Type]; ok {
		if err := lim.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	return sender.Send(ctx, ch.Credentials, text)
}
