package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quantave/quantave/internal/metrics"
	"github.com/quantave/quantave/internal/models"
	"github.com/quantave/quantave/internal/retry"
	"github.com/quantave/quantave/internal/store"
	"go.uber.org/zap"
)

// Tracker follows an order from submission to its terminal status and
// records the fill side effects: trade row, equity snapshot, daily P&L.
type Tracker struct {
	engine *Engine
}

func newTracker(e *Engine) *Tracker {
	return &Tracker{engine: e}
}

// Submit places the order for a signal and returns the brokerage order
func (t *Tracker) Submit(ctx context.Context, signal *models.TradeSignal) (*models.Order, error) {
	req := signal.ToOrderRequest(uuid.New().String())

	start := time.Now()
	order, err := t.engine.broker.PlaceOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	order.ExecutionTime = time.Since(start)

	metrics.OrdersPlaced.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	t.engine.logger.Info("order submitted",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("qty", order.Qty.String()),
		zap.Duration("execution_time", order.ExecutionTime))
	return order, nil
}

// PollUntilTerminal polls the order status until it reaches a terminal
// state or the poll budget runs out. A timed-out order is left
// outstanding and stays in the active order map: the brokerage may
// still fill it, and a later fill must not be treated as a failure.
func (t *Tracker) PollUntilTerminal(ctx context.Context, signal *models.TradeSignal, order *models.Order) {
	e := t.engine
	for i := 0; i < e.cfg.OrderPollLimit; i++ {
		if err := retry.Sleep(ctx, e.cfg.OrderPollDelay); err != nil {
			return
		}
		current, err := e.broker.GetOrder(ctx, order.ID)
		if err != nil {
			e.logger.Warn("order status check failed",
				zap.String("order_id", order.ID), zap.Error(err))
			continue
		}
		if current.Status.IsTerminal() {
			t.finalize(ctx, signal, current)
			return
		}
	}
	e.logger.Warn("order status check timed out, leaving order outstanding",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol))
}

// finalize handles a terminal order status
func (t *Tracker) finalize(ctx context.Context, signal *models.TradeSignal, order *models.Order) {
	e := t.engine
	e.removeActiveOrder(signal.StrategyID, order.ID)

	switch order.Status {
	case models.OrderFilled:
		t.recordFill(ctx, signal, order)
	case models.OrderRejected:
		e.logger.Warn("order rejected by brokerage",
			zap.String("order_id", order.ID),
			zap.String("symbol", order.Symbol))
		e.failTrade(signal, "order rejected by brokerage")
	case models.OrderCanceled:
		e.logger.Info("order canceled",
			zap.String("order_id", order.ID),
			zap.String("symbol", order.Symbol))
	}
}

// recordFill persists the fill and refreshes the daily P&L from a fresh
// account snapshot. Daily P&L is equity minus last close equity.
func (t *Tracker) recordFill(ctx context.Context, signal *models.TradeSignal, order *models.Order) {
	e := t.engine

	price := 0.0
	if order.FilledAvgPrice != nil {
		price = order.FilledAvgPrice.InexactFloat64()
	}
	filledAt := time.Now()
	if order.FilledAt != nil {
		filledAt = *order.FilledAt
	}
	if err := e.store.RecordTrade(&store.LiveTrade{
		StrategyName: signal.StrategyID,
		Symbol:       order.Symbol,
		Side:         string(signal.Side),
		Quantity:     order.FilledQty.InexactFloat64(),
		Price:        price,
		OrderID:      order.ID,
		FilledAt:     filledAt,
	}); err != nil {
		e.logger.Error("failed to record trade", zap.Error(err))
	}

	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		e.logger.Error("failed to refresh account after fill", zap.Error(err))
	} else {
		e.cache.SetAccount(account)
		e.setDailyPnL(account.Equity.Sub(account.LastEquity))
		if err := e.store.SaveEquity(account); err != nil {
			e.logger.Error("failed to save equity snapshot", zap.Error(err))
		}
	}

	e.logger.Info("order filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("filled_qty", order.FilledQty.String()),
		zap.Float64("filled_price", price),
		zap.String("daily_pnl", e.DailyPnL().String()))
}
