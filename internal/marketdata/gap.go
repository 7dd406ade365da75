package marketdata

import "time"

// gapThreshold is the largest tolerable distance between the newest
// persisted bar and now. Anything wider needs a historical backfill.
const gapThreshold = time.Minute

// Gap describes a hole in persisted market data for one symbol
type Gap struct {
	Symbol string
	From   time.Time
	To     time.Time
}

// Duration returns the width of the gap
func (g Gap) Duration() time.Duration {
	return g.To.Sub(g.From)
}

// DetectGap compares the newest persisted bar timestamp against now and
// reports whether the hole is wide enough to backfill. A zero lastTS
// means no data has ever been stored and there is nothing to bridge.
func DetectGap(symbol string, lastTS, now time.Time) (Gap, bool) {
	if lastTS.IsZero() {
		return Gap{}, false
	}
	if now.Sub(lastTS) <= gapThreshold {
		return Gap{}, false
	}
	return Gap{Symbol: symbol, From: lastTS, To: now}, true
}
