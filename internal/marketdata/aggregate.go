package marketdata

import (
	"fmt"
	"sync"

	"github.com/quantave/quantave/internal/models"
)

// IntervalForTimeframe maps a strategy timeframe to the number of
// one-minute bars that make up one aggregated bar.
func IntervalForTimeframe(timeframe string) (int, error) {
	switch timeframe {
	case "1Min":
		return 1, nil
	case "5Min":
		return 5, nil
	case "15Min":
		return 15, nil
	case "1Hour":
		return 60, nil
	case "1Day":
		// One regular trading session of minute bars
		return 390, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
}

// Aggregator merges streams of one-minute bars into coarser bars. Each
// symbol buffers independently; once interval bars accumulate they are
// merged and the buffer resets.
type Aggregator struct {
	interval int

	mu      sync.Mutex
	buffers map[string][]models.Bar
}

// NewAggregator creates an aggregator producing one bar per interval
// minute bars. An interval of 1 passes bars through untouched.
func NewAggregator(interval int) *Aggregator {
	if interval < 1 {
		interval = 1
	}
	return &Aggregator{
		interval: interval,
		buffers:  make(map[string][]models.Bar),
	}
}

// Add buffers one bar and returns the merged bar once the symbol's
// buffer reaches the interval. The second return is false while the
// buffer is still filling.
func (a *Aggregator) Add(bar models.Bar) (models.Bar, bool) {
	if a.interval == 1 {
		return bar, true
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	buf := append(a.buffers[bar.Symbol], bar)
	if len(buf) < a.interval {
		a.buffers[bar.Symbol] = buf
		return models.Bar{}, false
	}
	delete(a.buffers, bar.Symbol)
	return merge(buf), true
}

// Pending reports how many bars are buffered for a symbol
func (a *Aggregator) Pending(symbol string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers[symbol])
}

// merge combines consecutive bars: open of the first, close and
// timestamp of the last, extreme high and low, summed volume.
func merge(bars []models.Bar) models.Bar {
	out := models.Bar{
		Symbol:    bars[0].Symbol,
		Open:      bars[0].Open,
		High:      bars[0].High,
		Low:       bars[0].Low,
		Close:     bars[len(bars)-1].Close,
		Timestamp: bars[len(bars)-1].Timestamp,
	}
	var volume int64
	for _, b := range bars {
		if b.High.GreaterThan(out.High) {
			out.High = b.High
		}
		if b.Low.LessThan(out.Low) {
			out.Low = b.Low
		}
		volume += b.Volume
	}
	out.Volume = volume
	return out
}

// MergeAll merges a non-empty slice of bars into one. Used when
// backfilled history needs collapsing to a strategy's timeframe.
func MergeAll(bars []models.Bar) (models.Bar, error) {
	if len(bars) == 0 {
		return models.Bar{}, fmt.Errorf("no bars to merge")
	}
	return merge(bars), nil
}
