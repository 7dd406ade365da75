package strategy

import (
	"github.com/quantave/quantave/internal/models"
	"github.com/shopspring/decimal"
)

func init() {
	Register("ma_crossover", func(p Params) (Strategy, error) {
		return newMACrossover(p), nil
	})
}

// maCrossover goes long when the short moving average crosses above the
// long one and exits when it crosses back below. State is tracked per
// symbol.
type maCrossover struct {
	name       string
	shortLen   int
	longLen    int
	allocation decimal.Decimal
	exits      exitRules
	symbols    map[string]*maState
}

type maState struct {
	closes  []decimal.Decimal
	holding bool
	entry   decimal.Decimal
	qty     decimal.Decimal
}

func newMACrossover(p Params) *maCrossover {
	return &maCrossover{
		name:       p.Name,
		shortLen:   int(p.Option("short_window", 20)),
		longLen:    int(p.Option("long_window", 50)),
		allocation: decimal.NewFromFloat(p.Allocation),
		exits:      newExitRules(p),
		symbols:    make(map[string]*maState),
	}
}

func (s *maCrossover) Name() string { return s.name }

func (s *maCrossover) OnBar(bar models.Bar) (*models.TradeSignal, bool) {
	state, ok := s.symbols[bar.Symbol]
	if !ok {
		state = &maState{}
		s.symbols[bar.Symbol] = state
	}

	state.closes = append(state.closes, bar.Close)
	if len(state.closes) > s.longLen {
		state.closes = state.closes[1:]
	}

	// Stop loss and take profit are checked on every bar while holding,
	// ahead of the crossover logic
	if state.holding && s.exits.Exit(state.entry, bar.Close) {
		state.holding = false
		return signalFor(s.name, bar, models.SignalSell, state.qty), true
	}

	if len(state.closes) < s.longLen {
		return nil, false
	}

	short := sma(state.closes[len(state.closes)-s.shortLen:])
	long := sma(state.closes)

	if short.GreaterThan(long) && !state.holding {
		qty := positionSize(s.allocation, bar.Close)
		if qty.IsZero() {
			return nil, false
		}
		state.holding = true
		state.entry = bar.Close
		state.qty = qty
		return signalFor(s.name, bar, models.SignalBuy, qty), true
	}
	if short.LessThan(long) && state.holding {
		state.holding = false
		return signalFor(s.name, bar, models.SignalSell, state.qty), true
	}
	return nil, false
}

func sma(values []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// positionSize converts a dollar allocation to whole shares
func positionSize(allocation, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !allocation.IsPositive() {
		return decimal.Zero
	}
	return allocation.Div(price).Floor()
}

func signalFor(name string, bar models.Bar, side models.SignalSide, qty decimal.Decimal) *models.TradeSignal {
	price := bar.Close
	return &models.TradeSignal{
		Ticker:     bar.Symbol,
		Side:       side,
		Quantity:   qty,
		StrategyID: name,
		Timestamp:  bar.Timestamp,
		Price:      &price,
		OrderType:  models.Market,
	}
}
