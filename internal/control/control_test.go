package control

import (
	"context"
	"errors"
	"testing"

	"github.com/quantave/quantave/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeRunner struct {
	modes   map[string]string
	tickers map[string][]string
	failErr error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		modes:   make(map[string]string),
		tickers: make(map[string][]string),
	}
}

func (r *fakeRunner) SetMode(ctx context.Context, name, mode string) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.modes[name] = mode
	return nil
}

func (r *fakeRunner) SetTickers(ctx context.Context, name string, tickers []string) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.tickers[name] = tickers
	return nil
}

func (r *fakeRunner) IsRunning(name string) bool {
	return r.modes[name] == "live"
}

type fakeReader struct {
	states map[string]*store.StrategyState
}

func (f *fakeReader) GetStrategy(name string) (*store.StrategyState, error) {
	state, ok := f.states[name]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return state, nil
}

func newTestHandler(runner *fakeRunner, states map[string]*store.StrategyState) *Handler {
	return NewHandler(runner, &fakeReader{states: states}, zap.NewNop())
}

func TestChangeStrategyMode(t *testing.T) {
	runner := newFakeRunner()
	h := newTestHandler(runner, nil)

	resp := h.Handle(context.Background(), Command{
		Type: CmdChangeStrategyMode, Strategy: "alpha", Mode: "live",
	})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "live", runner.modes["alpha"])

	resp = h.Handle(context.Background(), Command{
		Type: CmdChangeStrategyMode, Strategy: "alpha", Mode: "paused",
	})
	assert.False(t, resp.Success)
}

func TestChangeModeRunnerError(t *testing.T) {
	runner := newFakeRunner()
	runner.failErr = errors.New("no tickers configured")
	h := newTestHandler(runner, nil)

	resp := h.Handle(context.Background(), Command{
		Type: CmdChangeStrategyMode, Strategy: "alpha", Mode: "live",
	})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "no tickers")
}

func TestAddTicker(t *testing.T) {
	runner := newFakeRunner()
	h := newTestHandler(runner, map[string]*store.StrategyState{
		"alpha": {Name: "alpha", Tickers: "AAPL"},
	})

	resp := h.Handle(context.Background(), Command{
		Type: CmdAddTicker, Strategy: "alpha", Ticker: "tsla",
	})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, []string{"AAPL", "TSLA"}, runner.tickers["alpha"],
		"ticker is uppercased and appended")

	// Adding a tracked ticker succeeds without a runner call
	resp = h.Handle(context.Background(), Command{
		Type: CmdAddTicker, Strategy: "alpha", Ticker: "AAPL",
	})
	assert.True(t, resp.Success)
}

func TestRemoveTicker(t *testing.T) {
	runner := newFakeRunner()
	h := newTestHandler(runner, map[string]*store.StrategyState{
		"alpha": {Name: "alpha", Tickers: "AAPL,TSLA"},
	})

	resp := h.Handle(context.Background(), Command{
		Type: CmdRemoveTicker, Strategy: "alpha", Ticker: "TSLA",
	})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, []string{"AAPL"}, runner.tickers["alpha"])

	resp = h.Handle(context.Background(), Command{
		Type: CmdRemoveTicker, Strategy: "alpha", Ticker: "MSFT",
	})
	assert.False(t, resp.Success, "untracked ticker cannot be removed")
}

func TestRemoveLastTickerRefused(t *testing.T) {
	runner := newFakeRunner()
	h := newTestHandler(runner, map[string]*store.StrategyState{
		"alpha": {Name: "alpha", Tickers: "AAPL"},
	})

	resp := h.Handle(context.Background(), Command{
		Type: CmdRemoveTicker, Strategy: "alpha", Ticker: "AAPL",
	})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "last ticker")
}

func TestUnknownCommandAndValidation(t *testing.T) {
	h := newTestHandler(newFakeRunner(), nil)

	resp := h.Handle(context.Background(), Command{Type: "reboot", Strategy: "alpha"})
	assert.False(t, resp.Success)

	resp = h.Handle(context.Background(), Command{Type: CmdChangeStrategyMode})
	assert.False(t, resp.Success, "strategy name is required")

	resp = h.Handle(context.Background(), Command{
		Type: CmdAddTicker, Strategy: "ghost", Ticker: "AAPL",
	})
	assert.False(t, resp.Success, "unknown strategy")
}

func TestHandleJSON(t *testing.T) {
	runner := newFakeRunner()
	h := newTestHandler(runner, nil)

	resp := h.HandleJSON(context.Background(),
		[]byte(`{"type":"change_strategy_mode","strategy":"alpha","mode":"live"}`))
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "live", runner.modes["alpha"])

	resp = h.HandleJSON(context.Background(), []byte(`{not json`))
	assert.False(t, resp.Success)
}
