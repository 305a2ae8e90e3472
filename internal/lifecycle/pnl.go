package lifecycle

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/signal-monitor/internal/model"
)

// BaseCapital is the fixed notional every P&L amount is computed against.
var BaseCapital = decimal.NewFromInt(1000)

var hundred = decimal.NewFromInt(100)

// ComputeMetrics returns the realized performance of a position opened at
// entry and closed at exit.
//
//	pnl%   = dir * (exit - entry) / entry * 100 * leverage
//	pnl    = BaseCapital * leverage * pnl% / 100
//	r:r    = |exit - entry| / |entry - stop|   (0 when entry == stop)
func ComputeMetrics(dir model.Direction, entry, exit, stop, leverage decimal.Decimal) model.Metrics {
	if entry.IsZero() {
		return model.Metrics{}
	}

	pct := dir.Sign().Mul(exit.Sub(entry)).Div(entry).Mul(hundred).Mul(leverage)
	amount := BaseCapital.Mul(leverage).Mul(pct).Div(hundred)

	rr := decimal.Zero
	if risk := entry.Sub(stop).Abs(); !risk.IsZero() {
		rr = exit.Sub(entry).Abs().Div(risk)
	}

	return model.Metrics{
		PnLPercentage:   pct.Round(2),
		PnLAmount:       amount.Round(2),
		RiskRewardRatio: rr.Round(4),
	}
}
