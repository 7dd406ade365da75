package risk

import (
	"fmt"

	"github.com/quantave/quantave/internal/config"
	"github.com/quantave/quantave/internal/models"
	"github.com/shopspring/decimal"
)

// Validator performs admission control over trade signals
type Validator struct {
	cfg *config.Config
}

// NewValidator creates a new risk validator
func NewValidator(cfg *config.Config) *Validator {
	return &Validator{cfg: cfg}
}

// CheckResult contains the result of a risk check
type CheckResult struct {
	Passed   bool
	Reason   string
	Warnings []string
}

// Validate performs pre-trade admission checks for a signal against the
// current account snapshot and the engine's running daily P&L.
//
// An unavailable or zero portfolio value rejects the signal outright:
// validating against unknown account data would silently disable every
// risk limit.
func (v *Validator) Validate(signal *models.TradeSignal, account *models.Account, dailyPnL decimal.Decimal) CheckResult {
	if err := signal.Validate(); err != nil {
		return CheckResult{Passed: false, Reason: err.Error()}
	}

	if account == nil {
		return CheckResult{
			Passed: false,
			Reason: "account data unavailable, rejecting until account endpoint recovers",
		}
	}

	if account.TradingBlocked || account.AccountBlocked {
		return CheckResult{
			Passed: false,
			Reason: "trading is blocked on this account",
		}
	}

	portfolioValue := account.PortfolioValue
	if !portfolioValue.IsPositive() {
		return CheckResult{
			Passed: false,
			Reason: "portfolio value unavailable or zero, rejecting until account data is available",
		}
	}

	price, ok := signal.EffectivePrice()
	if !ok {
		// No price anywhere on the signal (market order without a quote).
		// Order value is unknowable, so size limits cannot be enforced.
		return CheckResult{
			Passed: false,
			Reason: fmt.Sprintf("no effective price for %s, cannot compute order value", signal.Ticker),
		}
	}

	orderValue := signal.Quantity.Mul(price)

	maxPositionValue := portfolioValue.Mul(decimal.NewFromFloat(v.cfg.RiskMaxPositionSizePct))
	if orderValue.GreaterThan(maxPositionValue) {
		return CheckResult{
			Passed: false,
			Reason: fmt.Sprintf("order value $%.2f exceeds max position size $%.2f",
				orderValue.InexactFloat64(), maxPositionValue.InexactFloat64()),
		}
	}

	maxOrderValue := decimal.NewFromFloat(v.cfg.RiskMaxOrderValue)
	if orderValue.GreaterThan(maxOrderValue) {
		return CheckResult{
			Passed: false,
			Reason: fmt.Sprintf("order value $%.2f exceeds max order value $%.2f",
				orderValue.InexactFloat64(), maxOrderValue.InexactFloat64()),
		}
	}

	lossLimit := portfolioValue.Mul(decimal.NewFromFloat(v.cfg.RiskDailyLossLimitPct)).Neg()
	if dailyPnL.LessThanOrEqual(lossLimit) {
		return CheckResult{
			Passed: false,
			Reason: fmt.Sprintf("daily loss limit reached: P&L $%.2f at or below $%.2f",
				dailyPnL.InexactFloat64(), lossLimit.InexactFloat64()),
		}
	}

	result := CheckResult{Passed: true}

	// Warn when the daily loss is approaching the limit
	if dailyPnL.IsNegative() {
		used := dailyPnL.Div(lossLimit).Mul(decimal.NewFromInt(100))
		if used.GreaterThan(decimal.NewFromInt(75)) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("approaching daily loss limit: %.1f%% used", used.InexactFloat64()))
		}
	}

	return result
}
