package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quantave/quantave/internal/cache"
	"github.com/quantave/quantave/internal/config"
	"github.com/quantave/quantave/internal/models"
	"github.com/quantave/quantave/internal/transport"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTransport replays scripted bars, then blocks until closed
type fakeTransport struct {
	name    string
	openErr error
	bars    []models.Bar

	mu     sync.Mutex
	opened int
	closed chan struct{}
}

func newFakeTransport(name string, bars ...models.Bar) *fakeTransport {
	return &fakeTransport{name: name, bars: bars, closed: make(chan struct{})}
}

func (t *fakeTransport) Name() string { return t.name }

func (t *fakeTransport) Open(ctx context.Context, symbols []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return t.openErr
	}
	t.opened++
	return nil
}

func (t *fakeTransport) Run(ctx context.Context, onBar transport.BarHandler) error {
	for _, bar := range t.bars {
		onBar(bar)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return errors.New("stream closed")
	}
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
	return nil
}

// fakeBarStore records persisted bars and strategy modes
type fakeBarStore struct {
	mu     sync.Mutex
	bars   []models.Bar
	lastTS map[string]time.Time
	modes  map[string]string
}

func newFakeBarStore() *fakeBarStore {
	return &fakeBarStore{
		lastTS: make(map[string]time.Time),
		modes:  make(map[string]string),
	}
}

func (s *fakeBarStore) SaveBar(bar models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars = append(s.bars, bar)
	if bar.Timestamp.After(s.lastTS[bar.Symbol]) {
		s.lastTS[bar.Symbol] = bar.Timestamp
	}
	return nil
}

func (s *fakeBarStore) LastMarketTimestamp(symbol string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTS[symbol], nil
}

func (s *fakeBarStore) SetStrategyMode(name, mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes[name] = mode
	return nil
}

func (s *fakeBarStore) savedBars() []models.Bar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Bar(nil), s.bars...)
}

func (s *fakeBarStore) mode(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modes[name]
}

// fakeSink collects signals from the supervisor
type fakeSink struct {
	mu      sync.Mutex
	signals []*models.TradeSignal
}

func (s *fakeSink) AddTradeSignal(signal *models.TradeSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, signal)
	return nil
}

func (s *fakeSink) collected() []*models.TradeSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.TradeSignal(nil), s.signals...)
}

// fakeHistory serves canned backfill bars
type fakeHistory struct {
	mu    sync.Mutex
	bars  []*models.Bar
	calls int
}

func (h *fakeHistory) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time, limit int) ([]*models.Bar, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.bars, nil
}

// echoStrategy emits a buy for every bar it sees
type echoStrategy struct {
	mu   sync.Mutex
	seen []models.Bar
}

func (e *echoStrategy) Name() string { return "echo" }

func (e *echoStrategy) OnBar(bar models.Bar) (*models.TradeSignal, bool) {
	e.mu.Lock()
	e.seen = append(e.seen, bar)
	e.mu.Unlock()
	price := bar.Close
	return &models.TradeSignal{
		Ticker:     bar.Symbol,
		Side:       models.SignalBuy,
		Quantity:   decimal.NewFromInt(1),
		StrategyID: "echo",
		Timestamp:  bar.Timestamp,
		Price:      &price,
		OrderType:  models.Market,
	}, true
}

func (e *echoStrategy) seenBars() []models.Bar {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Bar(nil), e.seen...)
}

func liveTestConfig() *config.Config {
	return &config.Config{
		UsePrimaryStream:      true,
		PrimaryReconnectDelay: 5 * time.Millisecond,
		FallbackReconnect:     5 * time.Millisecond,
		CacheTTL:              time.Minute,
	}
}

func streamBar(symbol string, minute int, close float64) models.Bar {
	c := decimal.NewFromFloat(close)
	return models.Bar{
		Symbol:    symbol,
		Open:      c,
		High:      c,
		Low:       c,
		Close:     c,
		Volume:    100,
		Timestamp: time.Date(2024, 3, 5, 14, 30+minute, 0, 0, time.UTC),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func newTestSupervisor(t *testing.T, strat *echoStrategy, st *fakeBarStore, sink *fakeSink,
	history *fakeHistory, primary, fallback TransportFactory) *Supervisor {
	t.Helper()
	sup, err := NewSupervisor(liveTestConfig(), strat, []string{"AAPL"}, "1Min",
		primary, fallback, sink, history, st, cache.NewCache(time.Minute), zap.NewNop())
	require.NoError(t, err)
	return sup
}

func TestSupervisorStreamsToStrategy(t *testing.T) {
	strat := &echoStrategy{}
	st := newFakeBarStore()
	sink := &fakeSink{}
	history := &fakeHistory{}

	tr := newFakeTransport("primary",
		streamBar("AAPL", 0, 150),
		streamBar("AAPL", 1, 151))
	sup := newTestSupervisor(t, strat, st, sink, history,
		func() transport.Transport { return tr },
		func() transport.Transport { return newFakeTransport("fallback") })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))
	defer sup.Stop(context.Background())

	waitFor(t, func() bool { return len(sink.collected()) == 2 })

	assert.Equal(t, "live", st.mode("echo"), "start persists live mode")
	assert.Len(t, st.savedBars(), 2, "every raw bar is persisted")
	assert.Len(t, strat.seenBars(), 2)
	assert.Equal(t, "AAPL", sink.collected()[0].Ticker)
}

func TestSupervisorDiscardsOutOfOrderBars(t *testing.T) {
	strat := &echoStrategy{}
	st := newFakeBarStore()
	sink := &fakeSink{}
	history := &fakeHistory{}

	tr := newFakeTransport("primary",
		streamBar("AAPL", 2, 152),
		streamBar("AAPL", 1, 151), // stale, must be dropped
		streamBar("AAPL", 2, 152), // duplicate, must be dropped
		streamBar("AAPL", 3, 153))
	sup := newTestSupervisor(t, strat, st, sink, history,
		func() transport.Transport { return tr },
		func() transport.Transport { return newFakeTransport("fallback") })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))
	defer sup.Stop(context.Background())

	waitFor(t, func() bool { return len(sink.collected()) == 2 })

	seen := strat.seenBars()
	require.Len(t, seen, 2)
	assert.True(t, seen[1].Timestamp.After(seen[0].Timestamp),
		"delivered bars are strictly ordered")
}

func TestSupervisorFallsBackWhenPrimaryUnavailable(t *testing.T) {
	strat := &echoStrategy{}
	st := newFakeBarStore()
	sink := &fakeSink{}
	history := &fakeHistory{}

	primary := newFakeTransport("primary")
	primary.openErr = errors.New("dial refused")
	fallbackTr := newFakeTransport("fallback", streamBar("AAPL", 0, 150))

	sup := newTestSupervisor(t, strat, st, sink, history,
		func() transport.Transport { return primary },
		func() transport.Transport { return fallbackTr })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))
	defer sup.Stop(context.Background())

	waitFor(t, func() bool { return len(sink.collected()) == 1 })
	assert.Equal(t, 1, fallbackTr.opened, "fallback carried the stream")
}

func TestSupervisorBackfillsGapOnStart(t *testing.T) {
	strat := &echoStrategy{}
	st := newFakeBarStore()
	sink := &fakeSink{}

	// Newest stored bar is ten minutes old
	stale := models.Bar{Symbol: "AAPL", Close: decimal.NewFromInt(149),
		Timestamp: time.Now().UTC().Add(-10 * time.Minute)}
	require.NoError(t, st.SaveBar(stale))

	fill := []*models.Bar{
		{Symbol: "AAPL", Close: decimal.NewFromInt(150), Timestamp: time.Now().UTC().Add(-5 * time.Minute)},
		{Symbol: "AAPL", Close: decimal.NewFromInt(151), Timestamp: time.Now().UTC().Add(-1 * time.Minute)},
	}
	history := &fakeHistory{bars: fill}

	tr := newFakeTransport("primary")
	sup := newTestSupervisor(t, strat, st, sink, history,
		func() transport.Transport { return tr },
		func() transport.Transport { return newFakeTransport("fallback") })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))
	defer sup.Stop(context.Background())

	assert.Equal(t, 1, history.calls, "gap triggers one historical fetch")
	assert.Len(t, st.savedBars(), 3, "backfilled bars are persisted")
	assert.Empty(t, strat.seenBars(), "backfill does not replay into the strategy")
}

func TestSupervisorNoBackfillWithoutStoredData(t *testing.T) {
	strat := &echoStrategy{}
	st := newFakeBarStore()
	sink := &fakeSink{}
	history := &fakeHistory{}

	tr := newFakeTransport("primary")
	sup := newTestSupervisor(t, strat, st, sink, history,
		func() transport.Transport { return tr },
		func() transport.Transport { return newFakeTransport("fallback") })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))
	defer sup.Stop(context.Background())

	assert.Equal(t, 0, history.calls, "empty store has nothing to bridge")
}

func TestSupervisorStopPersistsBacktestMode(t *testing.T) {
	strat := &echoStrategy{}
	st := newFakeBarStore()
	sink := &fakeSink{}
	history := &fakeHistory{}

	tr := newFakeTransport("primary")
	sup := newTestSupervisor(t, strat, st, sink, history,
		func() transport.Transport { return tr },
		func() transport.Transport { return newFakeTransport("fallback") })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))
	require.NoError(t, sup.Stop(context.Background()))

	assert.Equal(t, "backtest", st.mode("echo"))
}
