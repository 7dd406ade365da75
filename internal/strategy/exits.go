package strategy

import "github.com/shopspring/decimal"

var one = decimal.NewFromInt(1)

// exitRules holds the stop loss and take profit bands applied around
// the entry price while a position is held. A zero fraction disables
// that band.
type exitRules struct {
	stopLoss   decimal.Decimal
	takeProfit decimal.Decimal
}

func newExitRules(p Params) exitRules {
	return exitRules{
		stopLoss:   decimal.NewFromFloat(p.StopLoss),
		takeProfit: decimal.NewFromFloat(p.TakeProfit),
	}
}

// Exit reports whether price has fallen to the stop loss band or risen
// to the take profit band relative to the entry price.
func (r exitRules) Exit(entry, price decimal.Decimal) bool {
	if !entry.IsPositive() {
		return false
	}
	if r.stopLoss.IsPositive() && price.LessThanOrEqual(entry.Mul(one.Sub(r.stopLoss))) {
		return true
	}
	if r.takeProfit.IsPositive() && price.GreaterThanOrEqual(entry.Mul(one.Add(r.takeProfit))) {
		return true
	}
	return false
}
