package engine

import (
	"context"

	"github.com/quantave/quantave/internal/metrics"
	"github.com/quantave/quantave/internal/models"
	"github.com/quantave/quantave/internal/retry"
	"github.com/quantave/quantave/internal/store"
	"go.uber.org/zap"
)

// recoveryLoop periodically sweeps the failed trade table and retries
// signals that have not exhausted their retry budget.
func (e *Engine) recoveryLoop(ctx context.Context) {
	for {
		if err := retry.Sleep(ctx, e.cfg.RecoveryInterval); err != nil {
			return
		}
		e.recoverFailedTrades(ctx)
	}
}

// recoverFailedTrades loads pending failed trades and re-executes each
// one. The sweep is skipped entirely outside market hours so retries
// are not burned when execution cannot possibly succeed.
func (e *Engine) recoverFailedTrades(ctx context.Context) {
	if !e.marketOpen() {
		return
	}

	pending, err := e.store.PendingFailedTrades(e.cfg.MaxRetries)
	if err != nil {
		e.logger.Error("failed to load failed trades", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}
	e.logger.Info("recovering failed trades", zap.Int("count", len(pending)))

	for _, record := range pending {
		if ctx.Err() != nil {
			return
		}
		e.recoverOne(ctx, record)
	}
}

// recoverOne retries one failed trade. The retry counter increments
// before the attempt so a crash mid-attempt cannot grant extra retries.
func (e *Engine) recoverOne(ctx context.Context, record store.FailedTrade) {
	signal, err := models.UnmarshalSignal(record.TradeSignalJSON)
	if err != nil {
		e.logger.Error("failed trade payload is unreadable, marking failed",
			zap.String("id", record.ID), zap.Error(err))
		e.markFailed(record.ID)
		return
	}

	if err := e.store.IncrementRetry(record.ID); err != nil {
		e.logger.Error("failed to increment retry count",
			zap.String("id", record.ID), zap.Error(err))
		return
	}
	attempt := record.RetryCount + 1

	// Backoff scales with how many times this trade has already failed
	if err := retry.Sleep(ctx, retry.DelayFor(e.cfg.RetryDelays, record.RetryCount)); err != nil {
		return
	}

	// Liquidations bypass risk checks on recovery as well, a retried
	// exit must not be trapped by the limits that gate new exposure.
	if !signal.Liquidation {
		account := e.getAccount(ctx)
		result := e.validator.Validate(signal, account, e.DailyPnL())
		if !result.Passed {
			e.logger.Warn("recovered trade rejected by risk check",
				zap.String("id", record.ID),
				zap.String("ticker", signal.Ticker),
				zap.String("reason", result.Reason))
			e.finishAttempt(record.ID, attempt)
			return
		}
	}

	// A recovery failure does not log a new failed trade row, the
	// existing record carries the history and its retry count.
	if err := e.executeWithRetries(ctx, signal); err != nil {
		e.logger.Warn("recovery attempt failed",
			zap.String("id", record.ID),
			zap.String("ticker", signal.Ticker),
			zap.Int("attempt", attempt),
			zap.Error(err))
		e.finishAttempt(record.ID, attempt)
		return
	}

	metrics.TradesRecovered.Inc()
	if err := e.store.UpdateFailedTradeStatus(record.ID, store.FailedStatusResolved); err != nil {
		e.logger.Error("failed to mark trade resolved",
			zap.String("id", record.ID), zap.Error(err))
		return
	}
	e.logger.Info("failed trade recovered",
		zap.String("id", record.ID),
		zap.String("ticker", signal.Ticker),
		zap.Int("attempt", attempt))
}

// finishAttempt marks the record failed once the retry budget is spent
func (e *Engine) finishAttempt(id string, attempt int) {
	if attempt >= e.cfg.MaxRetries {
		e.markFailed(id)
	}
}

func (e *Engine) markFailed(id string) {
	if err := e.store.UpdateFailedTradeStatus(id, store.FailedStatusFailed); err != nil {
		e.logger.Error("failed to mark trade failed", zap.String("id", id), zap.Error(err))
	}
}
