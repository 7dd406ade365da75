package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SignalSide is the direction a strategy wants to trade.
type SignalSide string

const (
	SignalBuy  SignalSide = "BUY"
	SignalSell SignalSide = "SELL"
)

// TradeSignal is a strategy's request to buy or sell a quantity of a ticker.
// Immutable once created; serializable so it can be persisted while a failed
// trade awaits recovery.
type TradeSignal struct {
	Ticker      string           `json:"ticker"`
	Side        SignalSide       `json:"side"`
	Quantity    decimal.Decimal  `json:"quantity"`
	StrategyID  string           `json:"strategy_id"`
	Timestamp   time.Time        `json:"timestamp"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	OrderType   OrderType        `json:"order_type"`
	LimitPrice  *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice   *decimal.Decimal `json:"stop_price,omitempty"`
	TimeInForce TimeInForce      `json:"time_in_force"`

	// Liquidation marks a position-closing order. Exits skip risk
	// admission: the limits that gate new exposure must never trap an
	// open position.
	Liquidation bool `json:"liquidation,omitempty"`
}

// Validate checks the structural invariants of a signal before it is admitted.
func (s *TradeSignal) Validate() error {
	if s.Ticker == "" {
		return fmt.Errorf("trade signal missing ticker")
	}
	if s.Side != SignalBuy && s.Side != SignalSell {
		return fmt.Errorf("trade signal %s: invalid side %q", s.Ticker, s.Side)
	}
	if !s.Quantity.IsPositive() {
		return fmt.Errorf("trade signal %s: quantity must be positive, got %s", s.Ticker, s.Quantity)
	}
	switch s.OrderType {
	case Market:
	case Limit:
		if s.LimitPrice == nil {
			return fmt.Errorf("trade signal %s: limit order requires limit price", s.Ticker)
		}
	case Stop:
		if s.StopPrice == nil {
			return fmt.Errorf("trade signal %s: stop order requires stop price", s.Ticker)
		}
	default:
		return fmt.Errorf("trade signal %s: invalid order type %q", s.Ticker, s.OrderType)
	}
	return nil
}

// EffectivePrice returns the price used for order-value calculations:
// the limit price for limit orders, the stop price for stop orders, and the
// signal's own price otherwise. Returns false when no price is known.
func (s *TradeSignal) EffectivePrice() (decimal.Decimal, bool) {
	switch s.OrderType {
	case Limit:
		if s.LimitPrice != nil {
			return *s.LimitPrice, true
		}
	case Stop:
		if s.StopPrice != nil {
			return *s.StopPrice, true
		}
	}
	if s.Price != nil && !s.Price.IsZero() {
		return *s.Price, true
	}
	return decimal.Zero, false
}

// OrderSide maps the signal side onto the brokerage order side.
func (s *TradeSignal) OrderSide() OrderSide {
	if s.Side == SignalSell {
		return Sell
	}
	return Buy
}

// ToOrderRequest maps the signal onto a brokerage order request.
func (s *TradeSignal) ToOrderRequest(clientOrderID string) *OrderRequest {
	qty := s.Quantity
	tif := s.TimeInForce
	if tif == "" {
		tif = Day
	}
	req := &OrderRequest{
		Symbol:        s.Ticker,
		Qty:           &qty,
		Side:          s.OrderSide(),
		Type:          s.OrderType,
		TimeInForce:   tif,
		ClientOrderID: clientOrderID,
	}
	switch s.OrderType {
	case Limit:
		req.LimitPrice = s.LimitPrice
	case Stop:
		req.StopPrice = s.StopPrice
	}
	return req
}

// MarshalSignal serializes a signal for failed-trade persistence.
func MarshalSignal(s *TradeSignal) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal trade signal: %w", err)
	}
	return string(data), nil
}

// UnmarshalSignal restores a signal persisted by MarshalSignal.
func UnmarshalSignal(data string) (*TradeSignal, error) {
	var s TradeSignal
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("unmarshal trade signal: %w", err)
	}
	return &s, nil
}
