package live

import (
	"context"
	"sync"
	"time"

	"github.com/quantave/quantave/internal/cache"
	"github.com/quantave/quantave/internal/config"
	"github.com/quantave/quantave/internal/marketdata"
	"github.com/quantave/quantave/internal/metrics"
	"github.com/quantave/quantave/internal/models"
	"github.com/quantave/quantave/internal/retry"
	"github.com/quantave/quantave/internal/strategy"
	"github.com/quantave/quantave/internal/transport"
	"go.uber.org/zap"
)

// SignalSink accepts trade signals produced by a running strategy
type SignalSink interface {
	AddTradeSignal(signal *models.TradeSignal) error
}

// History fetches historical bars for gap backfills
type History interface {
	GetBars(ctx context.Context, symbol string, timeframe string, start, end time.Time, limit int) ([]*models.Bar, error)
}

// BarStore is the persistence slice the supervisor needs
type BarStore interface {
	SaveBar(bar models.Bar) error
	LastMarketTimestamp(symbol string) (time.Time, error)
	SetStrategyMode(name, mode string) error
}

// TransportFactory builds a fresh transport. Reconnecting always goes
// through a new instance since a broken stream holds dead state.
type TransportFactory func() transport.Transport

const backfillLimit = 10000

// Supervisor runs live data for one strategy: it keeps a stream open,
// persists and caches every bar, bridges gaps with historical fetches,
// aggregates minute bars to the strategy's timeframe, and forwards the
// strategy's signals to the execution engine.
type Supervisor struct {
	cfg      *config.Config
	strat    strategy.Strategy
	symbols  []string
	primary  TransportFactory
	fallback TransportFactory
	sink     SignalSink
	history  History
	store    BarStore
	cache    *cache.Cache
	logger   *zap.Logger
	agg      *marketdata.Aggregator

	mu     sync.Mutex
	lastTS map[string]time.Time

	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewSupervisor wires a supervisor for one strategy
func NewSupervisor(cfg *config.Config, strat strategy.Strategy, symbols []string, timeframe string,
	primary, fallback TransportFactory, sink SignalSink, history History, st BarStore,
	c *cache.Cache, logger *zap.Logger) (*Supervisor, error) {

	interval, err := marketdata.IntervalForTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		cfg:      cfg,
		strat:    strat,
		symbols:  symbols,
		primary:  primary,
		fallback: fallback,
		sink:     sink,
		history:  history,
		store:    st,
		cache:    c,
		logger:   logger.With(zap.String("strategy", strat.Name())),
		agg:      marketdata.NewAggregator(interval),
		lastTS:   make(map[string]time.Time),
	}, nil
}

// Start persists the live mode, backfills any gap since the last stored
// bar, and launches the streaming loop.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.running {
		return nil
	}
	if err := s.store.SetStrategyMode(s.strat.Name(), "live"); err != nil {
		return err
	}

	s.backfill(ctx)

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()

	s.logger.Info("live data supervisor started", zap.Strings("symbols", s.symbols))
	return nil
}

// Stop tears down the stream and persists backtest mode so the
// strategy does not resume on the next startup.
func (s *Supervisor) Stop(ctx context.Context) error {
	if !s.running {
		return nil
	}
	s.running = false
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		s.logger.Warn("supervisor stop deadline reached")
	}
	if err := s.store.SetStrategyMode(s.strat.Name(), "backtest"); err != nil {
		return err
	}
	s.logger.Info("live data supervisor stopped")
	return nil
}

// run keeps a transport open until the context ends. The primary
// transport is preferred; when it cannot open, the fallback carries the
// stream until the next reconnect cycle tries the primary again.
func (s *Supervisor) run(ctx context.Context) {
	for ctx.Err() == nil {
		tr, delay := s.connect(ctx)
		if tr == nil {
			return
		}

		err := tr.Run(ctx, s.onBar)
		tr.Close()
		if ctx.Err() != nil {
			return
		}

		s.logger.Warn("stream disconnected, reconnecting",
			zap.String("transport", tr.Name()),
			zap.Duration("delay", delay),
			zap.Error(err))
		metrics.StreamReconnects.WithLabelValues(tr.Name()).Inc()
		if err := retry.Sleep(ctx, delay); err != nil {
			return
		}

		// The stream was down; bridge whatever was missed
		s.backfill(ctx)
	}
}

// connect opens a transport, falling back when the primary cannot
// connect and retrying the fallback until something opens. Returns nil
// only when the context ends. The returned delay is the reconnect
// pause for the transport that opened.
func (s *Supervisor) connect(ctx context.Context) (transport.Transport, time.Duration) {
	for ctx.Err() == nil {
		if s.cfg.UsePrimaryStream {
			tr := s.primary()
			err := tr.Open(ctx, s.symbols)
			if err == nil {
				return tr, s.cfg.PrimaryReconnectDelay
			}
			s.logger.Warn("primary transport unavailable, trying fallback",
				zap.String("transport", tr.Name()), zap.Error(err))
		}

		tr := s.fallback()
		err := tr.Open(ctx, s.symbols)
		if err == nil {
			return tr, s.cfg.FallbackReconnect
		}
		s.logger.Error("fallback transport unavailable",
			zap.String("transport", tr.Name()), zap.Error(err))

		if err := retry.Sleep(ctx, s.cfg.FallbackReconnect); err != nil {
			return nil, 0
		}
	}
	return nil, 0
}

// onBar is the per-bar pipeline: ordering check, persist, cache,
// aggregate, strategy dispatch.
func (s *Supervisor) onBar(bar models.Bar) {
	s.mu.Lock()
	last := s.lastTS[bar.Symbol]
	if !bar.Timestamp.After(last) {
		s.mu.Unlock()
		metrics.BarsDiscarded.WithLabelValues(bar.Symbol).Inc()
		s.logger.Warn("discarding out of order bar",
			zap.String("symbol", bar.Symbol),
			zap.Time("bar_ts", bar.Timestamp),
			zap.Time("last_ts", last))
		return
	}
	s.lastTS[bar.Symbol] = bar.Timestamp
	s.mu.Unlock()

	metrics.BarsIngested.WithLabelValues("stream", bar.Symbol).Inc()

	if err := s.store.SaveBar(bar); err != nil {
		s.logger.Error("failed to persist bar",
			zap.String("symbol", bar.Symbol), zap.Error(err))
	}
	barCopy := bar
	s.cache.SetBar(&barCopy)

	merged, ready := s.agg.Add(bar)
	if !ready {
		return
	}
	signal, ok := s.strat.OnBar(merged)
	if !ok {
		return
	}
	if err := s.sink.AddTradeSignal(signal); err != nil {
		s.logger.Error("failed to queue signal",
			zap.String("ticker", signal.Ticker), zap.Error(err))
	}
}

// backfill bridges the hole between the newest persisted bar and now
// for every symbol. Backfilled bars warm the store and the price
// cache; they are not replayed into the strategy.
func (s *Supervisor) backfill(ctx context.Context) {
	now := time.Now().UTC()
	for _, symbol := range s.symbols {
		lastTS, err := s.store.LastMarketTimestamp(symbol)
		if err != nil {
			s.logger.Error("failed to read last bar timestamp",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		gap, found := marketdata.DetectGap(symbol, lastTS, now)
		if !found {
			continue
		}

		s.logger.Info("backfilling data gap",
			zap.String("symbol", symbol),
			zap.Duration("gap", gap.Duration()))
		metrics.GapBackfills.WithLabelValues(symbol).Inc()

		bars, err := s.history.GetBars(ctx, symbol, "1Min", gap.From, gap.To, backfillLimit)
		if err != nil {
			s.logger.Error("gap backfill failed",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		for _, bar := range bars {
			if !bar.Timestamp.After(lastTS) {
				continue
			}
			if err := s.store.SaveBar(*bar); err != nil {
				s.logger.Error("failed to persist backfilled bar",
					zap.String("symbol", symbol), zap.Error(err))
				continue
			}
			metrics.BarsIngested.WithLabelValues("backfill", symbol).Inc()
			lastTS = bar.Timestamp
		}
		if len(bars) > 0 {
			latest := *bars[len(bars)-1]
			s.cache.SetBar(&latest)
			s.mu.Lock()
			if lastTS.After(s.lastTS[symbol]) {
				s.lastTS[symbol] = lastTS
			}
			s.mu.Unlock()
		}
	}
}
