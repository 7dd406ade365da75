package strategy

import (
	"testing"
	"time"

	"github.com/quantave/quantave/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barAt(symbol string, i int, close float64) models.Bar {
	c := decimal.NewFromFloat(close)
	return models.Bar{
		Symbol:    symbol,
		Open:      c,
		High:      c,
		Low:       c,
		Close:     c,
		Volume:    100,
		Timestamp: time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
	}
}

func TestRegistry(t *testing.T) {
	kinds := Kinds()
	assert.Contains(t, kinds, "ma_crossover")
	assert.Contains(t, kinds, "rsi")

	_, err := New("unknown_kind", Params{})
	assert.Error(t, err)

	s, err := New("ma_crossover", Params{Name: "alpha", Allocation: 5000})
	require.NoError(t, err)
	assert.Equal(t, "alpha", s.Name())
}

func TestMACrossoverSignals(t *testing.T) {
	s, err := New("ma_crossover", Params{
		Name:       "alpha",
		Allocation: 3000,
		Options:    map[string]float64{"short_window": 2, "long_window": 4},
	})
	require.NoError(t, err)

	// Flat prices prime the windows without crossing
	i := 0
	for ; i < 4; i++ {
		sig, ok := s.OnBar(barAt("AAPL", i, 100))
		assert.False(t, ok, "no signal while flat")
		assert.Nil(t, sig)
	}

	// Rising prices lift the short average above the long one
	var buy *models.TradeSignal
	for _, px := range []float64{101, 103, 106} {
		if sig, ok := s.OnBar(barAt("AAPL", i, px)); ok {
			buy = sig
			break
		}
		i++
	}
	require.NotNil(t, buy, "expected a buy on the upward cross")
	assert.Equal(t, models.SignalBuy, buy.Side)
	assert.Equal(t, "alpha", buy.StrategyID)
	// 3000 allocation at 101 is 29 whole shares
	assert.True(t, buy.Quantity.Equal(decimal.NewFromInt(29)), "got %s", buy.Quantity)
	require.NotNil(t, buy.Price)

	// Falling prices cross back down and exit the position
	var sell *models.TradeSignal
	for _, px := range []float64{95, 90, 85, 80, 75} {
		i++
		if sig, ok := s.OnBar(barAt("AAPL", i, px)); ok {
			sell = sig
			break
		}
	}
	require.NotNil(t, sell, "expected a sell on the downward cross")
	assert.Equal(t, models.SignalSell, sell.Side)
}

func TestMACrossoverNoRepeatedBuys(t *testing.T) {
	s, err := New("ma_crossover", Params{
		Name:       "alpha",
		Allocation: 3000,
		Options:    map[string]float64{"short_window": 2, "long_window": 3},
	})
	require.NoError(t, err)

	signals := 0
	px := 100.0
	for i := 0; i < 20; i++ {
		px += 1 // monotonically rising
		if _, ok := s.OnBar(barAt("AAPL", i, px)); ok {
			signals++
		}
	}
	assert.Equal(t, 1, signals, "a held position must not buy again")
}

func TestMACrossoverPerSymbolState(t *testing.T) {
	s, err := New("ma_crossover", Params{
		Name:       "alpha",
		Allocation: 3000,
		Options:    map[string]float64{"short_window": 2, "long_window": 3},
	})
	require.NoError(t, err)

	// Drive AAPL into a buy; MSFT stays flat and must not signal
	px := 100.0
	for i := 0; i < 10; i++ {
		px += 2
		s.OnBar(barAt("AAPL", i, px))
		sig, ok := s.OnBar(barAt("MSFT", i, 400))
		assert.False(t, ok)
		assert.Nil(t, sig)
	}
}

func TestRSISignals(t *testing.T) {
	s, err := New("rsi", Params{
		Name:       "beta",
		Allocation: 2000,
		Options:    map[string]float64{"period": 3},
	})
	require.NoError(t, err)

	// Steady decline drives RSI to zero, well under the oversold line
	i := 0
	var buy *models.TradeSignal
	for _, px := range []float64{100, 98, 96, 94, 92} {
		if sig, ok := s.OnBar(barAt("AAPL", i, px)); ok {
			buy = sig
			break
		}
		i++
	}
	require.NotNil(t, buy, "expected a buy once oversold")
	assert.Equal(t, models.SignalBuy, buy.Side)

	// Steady climb drives RSI to one hundred and exits
	var sell *models.TradeSignal
	for _, px := range []float64{95, 99, 103, 107, 111} {
		i++
		if sig, ok := s.OnBar(barAt("AAPL", i, px)); ok {
			sell = sig
			break
		}
	}
	require.NotNil(t, sell, "expected a sell once overbought")
	assert.Equal(t, models.SignalSell, sell.Side)
}

func TestMACrossoverTakeProfitExit(t *testing.T) {
	s, err := New("ma_crossover", Params{
		Name:       "alpha",
		Allocation: 3000,
		TakeProfit: 0.05,
		Options:    map[string]float64{"short_window": 2, "long_window": 4},
	})
	require.NoError(t, err)

	i := 0
	for ; i < 4; i++ {
		s.OnBar(barAt("AAPL", i, 100))
	}
	buy, ok := s.OnBar(barAt("AAPL", i, 101))
	require.True(t, ok, "expected a buy on the upward cross")
	require.Equal(t, models.SignalBuy, buy.Side)

	// Prices keep rising, so the crossover itself never exits; the
	// take profit band at 106.05 does
	i++
	_, ok = s.OnBar(barAt("AAPL", i, 103))
	assert.False(t, ok)

	i++
	sell, ok := s.OnBar(barAt("AAPL", i, 107))
	require.True(t, ok, "expected a take profit exit")
	assert.Equal(t, models.SignalSell, sell.Side)
	assert.True(t, sell.Quantity.Equal(buy.Quantity), "exit sells the entry quantity")

	// Flat again; the crossover is still long-biased so the next bar
	// re-enters rather than selling twice
	i++
	sig, ok := s.OnBar(barAt("AAPL", i, 110))
	require.True(t, ok)
	assert.Equal(t, models.SignalBuy, sig.Side)
}

func TestRSIStopLossExit(t *testing.T) {
	s, err := New("rsi", Params{
		Name:       "beta",
		Allocation: 2000,
		StopLoss:   0.03,
		Options:    map[string]float64{"period": 3},
	})
	require.NoError(t, err)

	// Steady decline drives RSI to zero and buys at 94
	i := 0
	var buy *models.TradeSignal
	for _, px := range []float64{100, 98, 96, 94} {
		if sig, ok := s.OnBar(barAt("AAPL", i, px)); ok {
			buy = sig
		}
		i++
	}
	require.NotNil(t, buy, "expected a buy once oversold")

	// Still oversold, so no indicator exit; the stop at 91.18 fires
	sell, ok := s.OnBar(barAt("AAPL", i, 91))
	require.True(t, ok, "expected a stop loss exit")
	assert.Equal(t, models.SignalSell, sell.Side)
	assert.True(t, sell.Quantity.Equal(buy.Quantity), "exit sells the entry quantity")
}

func TestExitRulesDisabledByZero(t *testing.T) {
	r := newExitRules(Params{})
	entry := decimal.NewFromInt(100)
	assert.False(t, r.Exit(entry, decimal.NewFromInt(1)))
	assert.False(t, r.Exit(entry, decimal.NewFromInt(1000)))

	r = newExitRules(Params{StopLoss: 0.05, TakeProfit: 0.10})
	assert.True(t, r.Exit(entry, decimal.NewFromInt(95)))
	assert.True(t, r.Exit(entry, decimal.NewFromInt(110)))
	assert.False(t, r.Exit(entry, decimal.NewFromInt(100)))
}

func TestRSINoBuyWithoutHoldingCapacity(t *testing.T) {
	s, err := New("rsi", Params{
		Name:       "beta",
		Allocation: 0, // nothing to allocate
		Options:    map[string]float64{"period": 3},
	})
	require.NoError(t, err)

	for i, px := range []float64{100, 98, 96, 94, 92, 90} {
		sig, ok := s.OnBar(barAt("AAPL", i, px))
		assert.False(t, ok, "zero allocation can never size a position")
		assert.Nil(t, sig)
	}
}

func TestPositionSize(t *testing.T) {
	qty := positionSize(decimal.NewFromInt(3000), decimal.NewFromFloat(150.50))
	assert.True(t, qty.Equal(decimal.NewFromInt(19)), "got %s", qty)

	assert.True(t, positionSize(decimal.NewFromInt(3000), decimal.Zero).IsZero())
	assert.True(t, positionSize(decimal.Zero, decimal.NewFromInt(100)).IsZero())
}
