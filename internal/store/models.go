package store

import "time"

// StrategyState is the persisted configuration and mode for a strategy.
// Mode is either "live" or "backtest"; live rows are resumed on startup.
type StrategyState struct {
	Name       string  `gorm:"primaryKey"`
	Kind       string  `gorm:"not null;default:''"`
	Mode       string  `gorm:"not null;default:backtest"`
	Timeframe  string  `gorm:"not null;default:1Min"`
	Tickers    string  `gorm:"not null;default:''"`
	Allocation float64 `gorm:"not null;default:0"`
	StopLoss   float64
	TakeProfit float64
	UpdatedAt  time.Time
}

func (StrategyState) TableName() string { return "strategies" }

// LivePrice is one persisted market bar. The (symbol, timestamp) pair is
// unique so replayed or backfilled bars never duplicate rows.
type LivePrice struct {
	ID        uint      `gorm:"primaryKey"`
	Symbol    string    `gorm:"uniqueIndex:idx_symbol_ts;not null"`
	Timestamp time.Time `gorm:"uniqueIndex:idx_symbol_ts;not null"`
	Open      float64   `gorm:"not null"`
	High      float64   `gorm:"not null"`
	Low       float64   `gorm:"not null"`
	Close     float64   `gorm:"not null"`
	Volume    int64     `gorm:"not null"`
}

func (LivePrice) TableName() string { return "live_prices" }

// LiveTrade records a filled order
type LiveTrade struct {
	ID           uint   `gorm:"primaryKey"`
	StrategyName string `gorm:"index;not null"`
	Symbol       string `gorm:"not null"`
	Side         string `gorm:"not null"`
	Quantity     float64
	Price        float64
	OrderID      string `gorm:"index"`
	FilledAt     time.Time
	CreatedAt    time.Time
}

func (LiveTrade) TableName() string { return "live_trades" }

// Failed trade terminal and pending states
const (
	FailedStatusPending  = "pending"
	FailedStatusRetrying = "retrying"
	FailedStatusResolved = "resolved"
	FailedStatusFailed   = "failed"
)

// FailedTrade is a signal whose execution failed, kept for the recovery
// sweep. TradeSignalJSON holds the serialized original signal.
type FailedTrade struct {
	ID              string `gorm:"primaryKey"`
	StrategyName    string `gorm:"index"`
	Symbol          string
	TradeSignalJSON string `gorm:"not null"`
	ErrorMessage    string
	RetryCount      int    `gorm:"not null;default:0"`
	Status          string `gorm:"index;not null;default:pending"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (FailedTrade) TableName() string { return "failed_trades" }

// AccountEquity is a point-in-time account snapshot taken after fills
type AccountEquity struct {
	ID             uint `gorm:"primaryKey"`
	Equity         float64
	LastEquity     float64
	PortfolioValue float64
	RecordedAt     time.Time `gorm:"index"`
}

func (AccountEquity) TableName() string { return "account_equity" }
