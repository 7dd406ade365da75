package strategy

import (
	"github.com/quantave/quantave/internal/models"
	"github.com/shopspring/decimal"
)

func init() {
	Register("rsi", func(p Params) (Strategy, error) {
		return newRSI(p), nil
	})
}

// rsiStrategy buys when the relative strength index drops below the
// oversold line and sells the position once it climbs past overbought.
type rsiStrategy struct {
	name       string
	period     int
	oversold   decimal.Decimal
	overbought decimal.Decimal
	allocation decimal.Decimal
	exits      exitRules
	symbols    map[string]*rsiState
}

type rsiState struct {
	lastClose decimal.Decimal
	gains     []decimal.Decimal
	losses    []decimal.Decimal
	primed    bool
	holding   bool
	entry     decimal.Decimal
	qty       decimal.Decimal
}

func newRSI(p Params) *rsiStrategy {
	return &rsiStrategy{
		name:       p.Name,
		period:     int(p.Option("period", 14)),
		oversold:   decimal.NewFromFloat(p.Option("oversold", 30)),
		overbought: decimal.NewFromFloat(p.Option("overbought", 70)),
		allocation: decimal.NewFromFloat(p.Allocation),
		exits:      newExitRules(p),
		symbols:    make(map[string]*rsiState),
	}
}

func (s *rsiStrategy) Name() string { return s.name }

func (s *rsiStrategy) OnBar(bar models.Bar) (*models.TradeSignal, bool) {
	state, ok := s.symbols[bar.Symbol]
	if !ok {
		state = &rsiState{}
		s.symbols[bar.Symbol] = state
	}

	if !state.primed {
		state.lastClose = bar.Close
		state.primed = true
		return nil, false
	}

	change := bar.Close.Sub(state.lastClose)
	state.lastClose = bar.Close

	gain, loss := decimal.Zero, decimal.Zero
	if change.IsPositive() {
		gain = change
	} else {
		loss = change.Abs()
	}
	state.gains = append(state.gains, gain)
	state.losses = append(state.losses, loss)
	if len(state.gains) > s.period {
		state.gains = state.gains[1:]
		state.losses = state.losses[1:]
	}
	// Stop loss and take profit are checked on every bar while holding,
	// ahead of the indicator logic
	if state.holding && s.exits.Exit(state.entry, bar.Close) {
		state.holding = false
		return signalFor(s.name, bar, models.SignalSell, state.qty), true
	}

	if len(state.gains) < s.period {
		return nil, false
	}

	rsi := computeRSI(state.gains, state.losses)

	if rsi.LessThan(s.oversold) && !state.holding {
		qty := positionSize(s.allocation, bar.Close)
		if qty.IsZero() {
			return nil, false
		}
		state.holding = true
		state.entry = bar.Close
		state.qty = qty
		return signalFor(s.name, bar, models.SignalBuy, qty), true
	}
	if rsi.GreaterThan(s.overbought) && state.holding {
		state.holding = false
		return signalFor(s.name, bar, models.SignalSell, state.qty), true
	}
	return nil, false
}

var hundred = decimal.NewFromInt(100)

func computeRSI(gains, losses []decimal.Decimal) decimal.Decimal {
	avgGain := sma(gains)
	avgLoss := sma(losses)
	if avgLoss.IsZero() {
		return hundred
	}
	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(one.Add(rs)))
}
