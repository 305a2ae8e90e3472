// Package format renders lifecycle notifications as plain text. Rendering
// is pure: the same event type and signal always produce the same message.
package format

import (
	"fmt"
	"strings"

	"github.com/atmx/signal-monitor/internal/model"
)

const timeLayout = "2006-01-02 15:04 UTC"

var headers = map[model.EventType]string{
	model.TypeEntry:       "🟢 ENTRY",
	model.TypeTargetHit:   "🎯 TARGET HIT",
	model.TypeStopLoss:    "🛑 STOP LOSS",
	model.TypeManualClose: "✋ MANUAL CLOSE",
	model.TypeCancelled:   "⚪ CANCELLED",
	model.TypeUpdate:      "🔔 UPDATE",
}

// Header returns the first line of a message for eventType.
func Header(eventType model.EventType) string {
	if h, ok := headers[eventType]; ok {
		return h
	}
	return headers[model.TypeUpdate]
}

// Render builds the message for one lifecycle event.
func Render(eventType model.EventType, sig model.Signal) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s | %s %s\n", Header(eventType), sig.Pair, sig.Direction)
	if sig.Username != "" {
		fmt.Fprintf(&b, "Trader: %s\n", sig.Username)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Pair: %s\n", sig.Pair)
	fmt.Fprintf(&b, "Direction: %s\n", sig.Direction)
	fmt.Fprintf(&b, "Entry: %s\n", sig.Entry)
	fmt.Fprintf(&b, "Stop: %s\n", sig.Stop)

	if len(sig.Targets) > 0 {
		b.WriteString("\nTargets:\n")
		for i, t := range sig.Targets {
			mark := "⏳"
			if sig.Lifecycle.TargetHit(t) {
				mark = "✅"
			}
			fmt.Fprintf(&b, "%s T%d: %s\n", mark, i+1, t)
		}
	}

	b.WriteString("\nDetails:\n")
	fmt.Fprintf(&b, "Leverage: %sx\n", sig.Leverage)
	if sig.Strategy != "" {
		fmt.Fprintf(&b, "Strategy: %s\n", sig.Strategy)
	}
	if sig.Risk != "" {
		fmt.Fprintf(&b, "Risk: %s\n", sig.Risk)
	}
	if lc := sig.Lifecycle; lc.Entry != nil {
		fmt.Fprintf(&b, "Filled at: %s\n", lc.Entry)
	}
	if lc := sig.Lifecycle; lc.Exit != nil {
		fmt.Fprintf(&b, "Exited at: %s\n", lc.Exit)
	}
	fmt.Fprintf(&b, "Updated: %s\n", stamp(sig))

	if m := sig.Lifecycle.Metrics; m != nil {
		b.WriteString("\nPerformance:\n")
		fmt.Fprintf(&b, "P&L: %s%%\n", signed(m.PnLPercentage.String()))
		fmt.Fprintf(&b, "P&L amount: %s\n", signed(m.PnLAmount.StringFixed(2)))
		fmt.Fprintf(&b, "Risk/Reward: %s\n", m.RiskRewardRatio)
	}

	if events := sig.Lifecycle.Events; len(events) > 0 {
		b.WriteString("\nHistory:\n")
		for _, e := range events {
			b.WriteString(eventLine(e))
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func eventLine(e model.Event) string {
	line := fmt.Sprintf("%s %s @ %s", e.Timestamp.UTC().Format(timeLayout), e.Kind, e.Price)
	if e.Target != nil {
		line += fmt.Sprintf(" (target %s)", e.Target)
	}
	if e.Reason != "" {
		line += " - " + e.Reason
	}
	return line
}

// stamp is the time of the latest event, falling back to creation.
func stamp(sig model.Signal) string {
	at := sig.CreatedAt
	if n := len(sig.Lifecycle.Events); n > 0 {
		at = sig.Lifecycle.Events[n-1].Timestamp
	}
	if at.IsZero() {
		return "-"
	}
	return at.UTC().Format(timeLayout)
}

func signed(s string) string {
	if strings.HasPrefix(s, "-") {
		return s
	}
	return "+" + s
}

