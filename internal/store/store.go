package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quantave/quantave/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store wraps the sqlite database holding strategy state, market bars,
// executed trades, failed trades, and equity snapshots.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and migrates the
// schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&StrategyState{},
		&LivePrice{},
		&LiveTrade{},
		&FailedTrade{},
		&AccountEquity{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- strategies ---

// UpsertStrategy creates or updates a strategy row
func (s *Store) UpsertStrategy(state *StrategyState) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(state).Error
}

// SetStrategyMode flips a strategy between live and backtest
func (s *Store) SetStrategyMode(name, mode string) error {
	if mode != "live" && mode != "backtest" {
		return fmt.Errorf("invalid mode %q", mode)
	}
	res := s.db.Model(&StrategyState{}).Where("name = ?", name).Update("mode", mode)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.db.Create(&StrategyState{Name: name, Mode: mode}).Error
	}
	return nil
}

// GetStrategy returns one strategy row, or gorm.ErrRecordNotFound
func (s *Store) GetStrategy(name string) (*StrategyState, error) {
	var state StrategyState
	if err := s.db.First(&state, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// ListStrategies returns every strategy row
func (s *Store) ListStrategies() ([]StrategyState, error) {
	var states []StrategyState
	if err := s.db.Order("name").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

// LiveStrategies returns strategies persisted in live mode, used to
// resume streaming after a restart.
func (s *Store) LiveStrategies() ([]StrategyState, error) {
	var states []StrategyState
	if err := s.db.Where("mode = ?", "live").Order("name").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

// IsStrategyLive reports whether the strategy is persisted as live
func (s *Store) IsStrategyLive(name string) (bool, error) {
	state, err := s.GetStrategy(name)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}
	return state.Mode == "live", nil
}

// TickerList splits the stored comma separated ticker field
func (st *StrategyState) TickerList() []string {
	if st.Tickers == "" {
		return nil
	}
	parts := strings.Split(st.Tickers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SetTickers replaces the ticker list for a strategy
func (s *Store) SetTickers(name string, tickers []string) error {
	return s.db.Model(&StrategyState{}).Where("name = ?", name).
		Update("tickers", strings.Join(tickers, ",")).Error
}

// --- market bars ---

// SaveBar persists one bar, silently skipping duplicates on
// (symbol, timestamp).
func (s *Store) SaveBar(bar models.Bar) error {
	row := LivePrice{
		Symbol:    bar.Symbol,
		Timestamp: bar.Timestamp.UTC(),
		Open:      bar.Open.InexactFloat64(),
		High:      bar.High.InexactFloat64(),
		Low:       bar.Low.InexactFloat64(),
		Close:     bar.Close.InexactFloat64(),
		Volume:    bar.Volume,
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// SaveBars persists a batch of bars, skipping duplicates
func (s *Store) SaveBars(bars []models.Bar) error {
	for _, bar := range bars {
		if err := s.SaveBar(bar); err != nil {
			return err
		}
	}
	return nil
}

// LastMarketTimestamp returns the newest persisted bar timestamp for a
// symbol. A zero time means no bars are stored.
func (s *Store) LastMarketTimestamp(symbol string) (time.Time, error) {
	var row LivePrice
	err := s.db.Where("symbol = ?", symbol).Order("timestamp DESC").First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return row.Timestamp, nil
}

// BarsSince returns persisted bars for a symbol after a timestamp
func (s *Store) BarsSince(symbol string, since time.Time) ([]models.Bar, error) {
	var rows []LivePrice
	err := s.db.Where("symbol = ? AND timestamp > ?", symbol, since.UTC()).
		Order("timestamp ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	bars := make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		bars = append(bars, models.Bar{
			Symbol:    r.Symbol,
			Open:      decimal.NewFromFloat(r.Open),
			High:      decimal.NewFromFloat(r.High),
			Low:       decimal.NewFromFloat(r.Low),
			Close:     decimal.NewFromFloat(r.Close),
			Volume:    r.Volume,
			Timestamp: r.Timestamp,
		})
	}
	return bars, nil
}

// --- trades ---

// RecordTrade records a filled order
func (s *Store) RecordTrade(trade *LiveTrade) error {
	return s.db.Create(trade).Error
}

// TradesForStrategy returns fills for one strategy, newest first
func (s *Store) TradesForStrategy(name string, limit int) ([]LiveTrade, error) {
	var trades []LiveTrade
	q := s.db.Where("strategy_name = ?", name).Order("filled_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

// --- failed trades ---

// LogFailedTrade persists a signal whose execution failed and returns
// the generated record id.
func (s *Store) LogFailedTrade(signal *models.TradeSignal, errMsg string) (string, error) {
	payload, err := models.MarshalSignal(signal)
	if err != nil {
		return "", fmt.Errorf("failed to serialize signal: %w", err)
	}
	row := FailedTrade{
		ID:              uuid.New().String(),
		StrategyName:    signal.StrategyID,
		Symbol:          signal.Ticker,
		TradeSignalJSON: payload,
		ErrorMessage:    errMsg,
		Status:          FailedStatusPending,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", err
	}
	return row.ID, nil
}

// PendingFailedTrades returns failed trades still eligible for retry
func (s *Store) PendingFailedTrades(maxRetries int) ([]FailedTrade, error) {
	var rows []FailedTrade
	err := s.db.Where("status IN ? AND retry_count < ?",
		[]string{FailedStatusPending, FailedStatusRetrying}, maxRetries).
		Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListFailedTrades returns failed trade records, newest first
func (s *Store) ListFailedTrades(limit int) ([]FailedTrade, error) {
	var rows []FailedTrade
	q := s.db.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateFailedTradeStatus moves a failed trade to a new status
func (s *Store) UpdateFailedTradeStatus(id, status string) error {
	return s.db.Model(&FailedTrade{}).Where("id = ?", id).
		Update("status", status).Error
}

// IncrementRetry bumps the retry counter and marks the row retrying
func (s *Store) IncrementRetry(id string) error {
	return s.db.Model(&FailedTrade{}).Where("id = ?", id).Updates(map[string]interface{}{
		"retry_count": gorm.Expr("retry_count + 1"),
		"status":      FailedStatusRetrying,
	}).Error
}

// --- account equity ---

// SaveEquity records an account snapshot
func (s *Store) SaveEquity(account *models.Account) error {
	row := AccountEquity{
		Equity:         account.Equity.InexactFloat64(),
		LastEquity:     account.LastEquity.InexactFloat64(),
		PortfolioValue: account.PortfolioValue.InexactFloat64(),
		RecordedAt:     time.Now().UTC(),
	}
	return s.db.Create(&row).Error
}
