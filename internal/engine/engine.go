package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantave/quantave/internal/cache"
	"github.com/quantave/quantave/internal/config"
	"github.com/quantave/quantave/internal/metrics"
	"github.com/quantave/quantave/internal/models"
	"github.com/quantave/quantave/internal/retry"
	"github.com/quantave/quantave/internal/risk"
	"github.com/quantave/quantave/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Brokerage is the slice of the brokerage API the engine needs
type Brokerage interface {
	GetAccount(ctx context.Context) (*models.Account, error)
	PlaceOrder(ctx context.Context, order *models.OrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAllOrders(ctx context.Context) error
	GetPositions(ctx context.Context) ([]*models.Position, error)
	GetPosition(ctx context.Context, symbol string) (*models.Position, error)
}

// TradeStore is the slice of the persistence layer the engine needs
type TradeStore interface {
	LogFailedTrade(signal *models.TradeSignal, errMsg string) (string, error)
	PendingFailedTrades(maxRetries int) ([]store.FailedTrade, error)
	UpdateFailedTradeStatus(id, status string) error
	IncrementRetry(id string) error
	RecordTrade(trade *store.LiveTrade) error
	SaveEquity(account *models.Account) error
}

// Engine consumes trade signals from a queue, validates them against
// risk limits, and executes them against the brokerage with retries.
// A single worker drains the queue so orders execute in arrival order.
type Engine struct {
	cfg       *config.Config
	broker    Brokerage
	store     TradeStore
	validator *risk.Validator
	tracker   *Tracker
	cache     *cache.Cache
	logger    *zap.Logger

	queue *signalQueue
	now   func() time.Time

	mu           sync.Mutex
	dailyPnL     decimal.Decimal
	activeOrders map[string][]string

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates an execution engine
func New(cfg *config.Config, broker Brokerage, st TradeStore, c *cache.Cache, logger *zap.Logger) *Engine {
	e := &Engine{
		cfg:          cfg,
		broker:       broker,
		store:        st,
		validator:    risk.NewValidator(cfg),
		cache:        c,
		logger:       logger,
		queue:        newSignalQueue(),
		now:          time.Now,
		activeOrders: make(map[string][]string),
	}
	e.tracker = newTracker(e)
	return e
}

// Start launches the signal worker and the failed trade recovery sweep
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.started {
		return
	}
	e.started = true

	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		e.worker(ctx)
	}()
	go e.recoveryLoop(ctx)

	e.logger.Info("execution engine started",
		zap.Int("max_retries", e.cfg.MaxRetries),
		zap.Duration("recovery_interval", e.cfg.RecoveryInterval))
}

// AddTradeSignal enqueues a signal for execution. Never blocks; returns
// an error only when the engine is shutting down.
func (e *Engine) AddTradeSignal(signal *models.TradeSignal) error {
	if signal == nil {
		return fmt.Errorf("nil trade signal")
	}
	if !e.queue.Push(signal) {
		return fmt.Errorf("engine is shutting down, signal for %s not accepted", signal.Ticker)
	}
	metrics.SignalsQueued.WithLabelValues(signal.StrategyID).Inc()
	metrics.QueueDepth.Set(float64(e.queue.Len()))
	e.logger.Debug("signal queued",
		zap.String("ticker", signal.Ticker),
		zap.String("side", string(signal.Side)),
		zap.String("strategy", signal.StrategyID))
	return nil
}

// QueueLen reports how many signals are waiting for execution
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// DailyPnL returns the running daily profit and loss
func (e *Engine) DailyPnL() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dailyPnL
}

// ActiveOrders returns the non-terminal order ids tracked per strategy
func (e *Engine) ActiveOrders() map[string][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string][]string, len(e.activeOrders))
	for k, v := range e.activeOrders {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (e *Engine) addActiveOrder(strategyID, orderID string) {
	e.mu.Lock()
	e.activeOrders[strategyID] = append(e.activeOrders[strategyID], orderID)
	e.mu.Unlock()
}

func (e *Engine) removeActiveOrder(strategyID, orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.activeOrders[strategyID]
	for i, id := range ids {
		if id == orderID {
			e.activeOrders[strategyID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(e.activeOrders[strategyID]) == 0 {
		delete(e.activeOrders, strategyID)
	}
}

func (e *Engine) setDailyPnL(pnl decimal.Decimal) {
	e.mu.Lock()
	e.dailyPnL = pnl
	e.mu.Unlock()
}

// worker is the single consumer of the signal queue
func (e *Engine) worker(ctx context.Context) {
	for {
		for {
			signal, ok := e.queue.Pop()
			if !ok {
				break
			}
			metrics.QueueDepth.Set(float64(e.queue.Len()))
			e.process(ctx, signal)
		}
		if e.queue.Closed() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-e.queue.Wait():
		}
	}
}

// process runs one signal through market hours, risk, and execution.
// Liquidations skip admission entirely and go straight to execution.
func (e *Engine) process(ctx context.Context, signal *models.TradeSignal) {
	if !signal.Liquidation && !e.admit(ctx, signal) {
		return
	}

	if err := e.executeWithRetries(ctx, signal); err != nil {
		metrics.OrdersFailed.Inc()
		e.logger.Error("trade execution failed",
			zap.String("ticker", signal.Ticker),
			zap.String("strategy", signal.StrategyID),
			zap.Error(err))
		e.failTrade(signal, err.Error())
	}
}

// admit runs the market hours and risk checks that gate new exposure.
// A refused signal is recorded as a failed trade.
func (e *Engine) admit(ctx context.Context, signal *models.TradeSignal) bool {
	if !e.marketOpen() {
		e.failTrade(signal, "market closed")
		return false
	}

	account := e.getAccount(ctx)
	result := e.validator.Validate(signal, account, e.DailyPnL())
	if !result.Passed {
		metrics.SignalsRejected.WithLabelValues(signal.StrategyID).Inc()
		e.logger.Warn("signal rejected by risk check",
			zap.String("ticker", signal.Ticker),
			zap.String("strategy", signal.StrategyID),
			zap.String("reason", result.Reason))
		e.failTrade(signal, result.Reason)
		return false
	}
	for _, w := range result.Warnings {
		e.logger.Warn("risk warning", zap.String("ticker", signal.Ticker), zap.String("warning", w))
	}
	return true
}

// executeWithRetries places the order, retrying transient brokerage
// failures with the configured backoff before giving up.
func (e *Engine) executeWithRetries(ctx context.Context, signal *models.TradeSignal) error {
	delays := e.retryDelays()
	return retry.Do(ctx, delays, func(attempt int) error {
		if attempt > 0 {
			e.logger.Info("retrying trade execution",
				zap.String("ticker", signal.Ticker),
				zap.Int("attempt", attempt+1))
		}
		return e.executeOnce(ctx, signal)
	})
}

// retryDelays returns the delays between attempts so the total attempt
// count equals MaxRetries.
func (e *Engine) retryDelays() []time.Duration {
	n := e.cfg.MaxRetries - 1
	if n < 0 {
		n = 0
	}
	if n > len(e.cfg.RetryDelays) {
		n = len(e.cfg.RetryDelays)
	}
	return e.cfg.RetryDelays[:n]
}

// executeOnce submits one order and hands it to the lifecycle tracker
func (e *Engine) executeOnce(ctx context.Context, signal *models.TradeSignal) error {
	order, err := e.tracker.Submit(ctx, signal)
	if err != nil {
		return err
	}
	e.addActiveOrder(signal.StrategyID, order.ID)
	e.tracker.PollUntilTerminal(ctx, signal, order)
	return nil
}

// failTrade persists a signal that could not be executed so the
// recovery sweep can retry it later.
func (e *Engine) failTrade(signal *models.TradeSignal, reason string) {
	id, err := e.store.LogFailedTrade(signal, reason)
	if err != nil {
		e.logger.Error("failed to persist failed trade",
			zap.String("ticker", signal.Ticker), zap.Error(err))
		return
	}
	e.logger.Info("failed trade recorded",
		zap.String("id", id),
		zap.String("ticker", signal.Ticker),
		zap.String("reason", reason))
}

// getAccount returns a cached account snapshot, fetching on miss. A nil
// return means the account endpoint is unreachable.
func (e *Engine) getAccount(ctx context.Context) *models.Account {
	if account, ok := e.cache.GetAccount(); ok {
		return account
	}
	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		e.logger.Error("failed to fetch account", zap.Error(err))
		return nil
	}
	e.cache.SetAccount(account)
	return account
}

// marketOpen reports whether the regular session is open, 9:30 to 16:00
// local time on weekdays.
func (e *Engine) marketOpen() bool {
	now := e.now()
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	open := time.Date(now.Year(), now.Month(), now.Day(), 9, 30, 0, 0, now.Location())
	close := time.Date(now.Year(), now.Month(), now.Day(), 16, 0, 0, 0, now.Location())
	return !now.Before(open) && now.Before(close)
}

// LiquidatePosition closes the position in one symbol with a market
// order sized to the full held quantity.
func (e *Engine) LiquidatePosition(ctx context.Context, symbol, strategyID string) error {
	position, err := e.broker.GetPosition(ctx, symbol)
	if err != nil {
		return fmt.Errorf("failed to fetch position for %s: %w", symbol, err)
	}
	signal, err := e.liquidationSignal(position, strategyID)
	if err != nil {
		return err
	}
	return e.AddTradeSignal(signal)
}

// LiquidateAllPositions queues a closing order for every open position.
// One position failing to queue does not stop the rest.
func (e *Engine) LiquidateAllPositions(ctx context.Context, strategyID string) error {
	positions, err := e.broker.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch positions: %w", err)
	}
	var firstErr error
	for _, position := range positions {
		signal, err := e.liquidationSignal(position, strategyID)
		if err == nil {
			err = e.AddTradeSignal(signal)
		}
		if err != nil {
			e.logger.Error("failed to queue liquidation",
				zap.String("symbol", position.Symbol), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// liquidationSignal builds the closing signal for a position, using the
// latest cached bar as the price estimate when the position carries no
// usable current price.
func (e *Engine) liquidationSignal(position *models.Position, strategyID string) (*models.TradeSignal, error) {
	qty := position.Qty
	side := models.SignalSell
	if qty.IsNegative() {
		side = models.SignalBuy
		qty = qty.Abs()
	}
	if qty.IsZero() {
		return nil, fmt.Errorf("no open quantity for %s", position.Symbol)
	}

	price := position.CurrentPrice
	if price.IsZero() {
		if bar, ok := e.cache.GetBar(position.Symbol); ok {
			price = bar.Close
		}
	}

	signal := &models.TradeSignal{
		Ticker:      position.Symbol,
		Side:        side,
		Quantity:    qty,
		StrategyID:  strategyID,
		Timestamp:   e.now(),
		OrderType:   models.Market,
		Liquidation: true,
	}
	if !price.IsZero() {
		signal.Price = &price
	}
	return signal, nil
}

// CancelOrder cancels one open order at the brokerage and drops it
// from the active order map. This is the way out for an order that
// outlived its poll budget and is still sitting open.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	if err := e.broker.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}

	e.mu.Lock()
outer:
	for strategyID, ids := range e.activeOrders {
		for i, id := range ids {
			if id != orderID {
				continue
			}
			e.activeOrders[strategyID] = append(ids[:i], ids[i+1:]...)
			if len(e.activeOrders[strategyID]) == 0 {
				delete(e.activeOrders, strategyID)
			}
			break outer
		}
	}
	e.mu.Unlock()

	e.logger.Info("order canceled", zap.String("order_id", orderID))
	return nil
}

// CancelAllOrders cancels every open order at the brokerage and clears
// the active order map.
func (e *Engine) CancelAllOrders(ctx context.Context) error {
	if err := e.broker.CancelAllOrders(ctx); err != nil {
		return fmt.Errorf("failed to cancel orders: %w", err)
	}
	e.mu.Lock()
	e.activeOrders = make(map[string][]string)
	e.mu.Unlock()
	e.logger.Info("all open orders canceled")
	return nil
}

// Shutdown stops the worker and records every still-queued signal as a
// failed trade so nothing is silently dropped. The in-flight signal,
// including its order status poll, runs to completion before the
// engine context is canceled; the ctx deadline bounds the wait.
func (e *Engine) Shutdown(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.started {
		return
	}
	e.started = false

	remaining := e.queue.Close()
	select {
	case <-e.done:
	case <-ctx.Done():
		e.logger.Warn("shutdown deadline reached before worker drained")
	}
	e.cancel()

	for _, signal := range remaining {
		e.failTrade(signal, "not processed due to shutdown")
	}
	e.logger.Info("execution engine stopped", zap.Int("unprocessed_signals", len(remaining)))
}
