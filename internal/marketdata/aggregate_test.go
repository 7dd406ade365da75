package marketdata

import (
	"testing"
	"time"

	"github.com/quantave/quantave/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minuteBar(symbol string, minute int, open, high, low, close float64, volume int64) models.Bar {
	return models.Bar{
		Symbol:    symbol,
		Open:      decimal.NewFromFloat(open),
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromFloat(close),
		Volume:    volume,
		Timestamp: time.Date(2024, 3, 5, 14, 30+minute, 0, 0, time.UTC),
	}
}

func TestIntervalForTimeframe(t *testing.T) {
	cases := map[string]int{
		"1Min": 1, "5Min": 5, "15Min": 15, "1Hour": 60, "1Day": 390,
	}
	for tf, want := range cases {
		got, err := IntervalForTimeframe(tf)
		require.NoError(t, err)
		assert.Equal(t, want, got, tf)
	}

	_, err := IntervalForTimeframe("3Min")
	assert.Error(t, err)
}

func TestAggregatorPassthrough(t *testing.T) {
	a := NewAggregator(1)
	bar := minuteBar("AAPL", 0, 150, 151, 149, 150.5, 1000)

	out, ready := a.Add(bar)
	require.True(t, ready)
	assert.Equal(t, bar, out)
}

func TestAggregatorMergesFiveMinutes(t *testing.T) {
	a := NewAggregator(5)

	bars := []models.Bar{
		minuteBar("AAPL", 0, 150, 151, 149, 150.5, 100),
		minuteBar("AAPL", 1, 150.5, 153, 150, 152, 200),
		minuteBar("AAPL", 2, 152, 152.5, 148, 149, 300),
		minuteBar("AAPL", 3, 149, 150, 148.5, 149.5, 150),
		minuteBar("AAPL", 4, 149.5, 151, 149, 150.75, 250),
	}

	for i, b := range bars[:4] {
		_, ready := a.Add(b)
		assert.False(t, ready, "bar %d should still be buffering", i)
	}
	assert.Equal(t, 4, a.Pending("AAPL"))

	out, ready := a.Add(bars[4])
	require.True(t, ready)
	assert.True(t, out.Open.Equal(decimal.NewFromInt(150)), "open of first")
	assert.True(t, out.High.Equal(decimal.NewFromInt(153)), "max high")
	assert.True(t, out.Low.Equal(decimal.NewFromInt(148)), "min low")
	assert.True(t, out.Close.Equal(decimal.NewFromFloat(150.75)), "close of last")
	assert.Equal(t, int64(1000), out.Volume, "summed volume")
	assert.Equal(t, bars[4].Timestamp, out.Timestamp, "timestamp of last")
	assert.Equal(t, 0, a.Pending("AAPL"), "buffer resets after emit")
}

func TestAggregatorBuffersPerSymbol(t *testing.T) {
	a := NewAggregator(2)

	_, ready := a.Add(minuteBar("AAPL", 0, 150, 151, 149, 150, 100))
	assert.False(t, ready)
	_, ready = a.Add(minuteBar("MSFT", 0, 400, 401, 399, 400, 100))
	assert.False(t, ready, "symbols must not share buffers")

	out, ready := a.Add(minuteBar("AAPL", 1, 150, 152, 150, 151, 100))
	require.True(t, ready)
	assert.Equal(t, "AAPL", out.Symbol)
	assert.Equal(t, 1, a.Pending("MSFT"))
}

func TestAggregatorEmitCount(t *testing.T) {
	// N input bars through interval k emit exactly floor(N/k) bars
	a := NewAggregator(5)
	emitted := 0
	for i := 0; i < 23; i++ {
		if _, ready := a.Add(minuteBar("AAPL", i, 150, 151, 149, 150, 10)); ready {
			emitted++
		}
	}
	assert.Equal(t, 4, emitted)
	assert.Equal(t, 3, a.Pending("AAPL"))
}

func TestMergeAll(t *testing.T) {
	_, err := MergeAll(nil)
	assert.Error(t, err)

	out, err := MergeAll([]models.Bar{
		minuteBar("AAPL", 0, 150, 151, 149, 150, 100),
		minuteBar("AAPL", 1, 150, 155, 150, 154, 100),
	})
	require.NoError(t, err)
	assert.True(t, out.High.Equal(decimal.NewFromInt(155)))
	assert.Equal(t, int64(200), out.Volume)
}

func TestDetectGap(t *testing.T) {
	now := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)

	_, found := DetectGap("AAPL", time.Time{}, now)
	assert.False(t, found, "no stored data means no gap")

	_, found = DetectGap("AAPL", now.Add(-30*time.Second), now)
	assert.False(t, found, "recent data means no gap")

	_, found = DetectGap("AAPL", now.Add(-time.Minute), now)
	assert.False(t, found, "exactly one minute is tolerated")

	gap, found := DetectGap("AAPL", now.Add(-10*time.Minute), now)
	require.True(t, found)
	assert.Equal(t, 10*time.Minute, gap.Duration())
	assert.Equal(t, "AAPL", gap.Symbol)
}
