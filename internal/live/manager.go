package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantave/quantave/internal/cache"
	"github.com/quantave/quantave/internal/config"
	"github.com/quantave/quantave/internal/store"
	"github.com/quantave/quantave/internal/strategy"
	"go.uber.org/zap"
)

// StrategyStore extends the bar store with strategy configuration
type StrategyStore interface {
	BarStore
	GetStrategy(name string) (*store.StrategyState, error)
	LiveStrategies() ([]store.StrategyState, error)
	SetTickers(name string, tickers []string) error
}

// Manager owns one supervisor per live strategy and rebuilds them from
// persisted state on startup.
type Manager struct {
	cfg      *config.Config
	store    StrategyStore
	sink     SignalSink
	history  History
	cache    *cache.Cache
	logger   *zap.Logger
	primary  TransportFactory
	fallback TransportFactory

	mu          sync.Mutex
	supervisors map[string]*Supervisor
}

// NewManager creates the live trading manager
func NewManager(cfg *config.Config, st StrategyStore, sink SignalSink, history History,
	c *cache.Cache, primary, fallback TransportFactory, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		store:       st,
		sink:        sink,
		history:     history,
		cache:       c,
		primary:     primary,
		fallback:    fallback,
		logger:      logger,
		supervisors: make(map[string]*Supervisor),
	}
}

// Start brings one persisted strategy live. Idempotent for a strategy
// that is already running.
func (m *Manager) Start(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.supervisors[name]; running {
		return nil
	}

	state, err := m.store.GetStrategy(name)
	if err != nil {
		return fmt.Errorf("unknown strategy %q: %w", name, err)
	}
	tickers := state.TickerList()
	if len(tickers) == 0 {
		return fmt.Errorf("strategy %q has no tickers configured", name)
	}

	kind := state.Kind
	if kind == "" {
		kind = state.Name
	}
	strat, err := strategy.New(kind, strategy.Params{
		Name:       state.Name,
		Tickers:    tickers,
		Timeframe:  state.Timeframe,
		Allocation: state.Allocation,
		StopLoss:   state.StopLoss,
		TakeProfit: state.TakeProfit,
	})
	if err != nil {
		return err
	}

	sup, err := NewSupervisor(m.cfg, strat, tickers, state.Timeframe,
		m.primary, m.fallback, m.sink, m.history, m.store, m.cache, m.logger)
	if err != nil {
		return err
	}
	if err := sup.Start(ctx); err != nil {
		return err
	}
	m.supervisors[name] = sup
	return nil
}

// Stop takes one strategy out of live mode
func (m *Manager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	sup, running := m.supervisors[name]
	delete(m.supervisors, name)
	m.mu.Unlock()

	if !running {
		// Not running here, but make sure the persisted mode agrees
		return m.store.SetStrategyMode(name, "backtest")
	}
	return sup.Stop(ctx)
}

// StopAll stops every running supervisor
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	sups := make(map[string]*Supervisor, len(m.supervisors))
	for name, sup := range m.supervisors {
		sups[name] = sup
	}
	m.supervisors = make(map[string]*Supervisor)
	m.mu.Unlock()

	for name, sup := range sups {
		if err := sup.Stop(ctx); err != nil {
			m.logger.Error("failed to stop supervisor",
				zap.String("strategy", name), zap.Error(err))
		}
	}
}

// Resume restarts every strategy persisted in live mode. Called once at
// startup so a restart does not silently drop live strategies.
func (m *Manager) Resume(ctx context.Context) error {
	states, err := m.store.LiveStrategies()
	if err != nil {
		return fmt.Errorf("failed to load live strategies: %w", err)
	}
	for _, state := range states {
		if err := m.Start(ctx, state.Name); err != nil {
			m.logger.Error("failed to resume live strategy",
				zap.String("strategy", state.Name), zap.Error(err))
			continue
		}
		m.logger.Info("resumed live strategy", zap.String("strategy", state.Name))
	}
	return nil
}

// Running lists the names of running supervisors
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.supervisors))
	for name := range m.supervisors {
		names = append(names, name)
	}
	return names
}

// IsRunning reports whether one strategy has a live supervisor
func (m *Manager) IsRunning(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.supervisors[name]
	return ok
}

// SetMode switches a strategy between live and backtest
func (m *Manager) SetMode(ctx context.Context, name, mode string) error {
	switch mode {
	case "live":
		return m.Start(ctx, name)
	case "backtest":
		return m.Stop(ctx, name)
	default:
		return fmt.Errorf("invalid mode %q", mode)
	}
}

// SetTickers replaces a strategy's ticker list. A running strategy is
// restarted so the stream subscription matches the new list.
func (m *Manager) SetTickers(ctx context.Context, name string, tickers []string) error {
	if len(tickers) == 0 {
		return fmt.Errorf("ticker list cannot be empty")
	}
	if err := m.store.SetTickers(name, tickers); err != nil {
		return err
	}
	if m.IsRunning(name) {
		if err := m.Stop(ctx, name); err != nil {
			return err
		}
		return m.Start(ctx, name)
	}
	return nil
}
