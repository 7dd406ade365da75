// Package strategy defines the trading strategy contract and a registry
// of implementations keyed by name, so persisted strategy rows can be
// rebuilt into running strategies at startup.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quantave/quantave/internal/models"
)

// Strategy consumes aggregated bars and may emit a trade signal. OnBar
// is called from a single goroutine per strategy; implementations need
// no internal locking.
type Strategy interface {
	Name() string
	OnBar(bar models.Bar) (*models.TradeSignal, bool)
}

// Params carries the persisted configuration a factory builds from
type Params struct {
	Name       string
	Tickers    []string
	Timeframe  string
	Allocation float64
	StopLoss   float64
	TakeProfit float64

	// Options holds strategy specific tuning, e.g. window sizes
	Options map[string]float64
}

// Option returns a tuning value or the given default
func (p Params) Option(key string, def float64) float64 {
	if v, ok := p.Options[key]; ok {
		return v
	}
	return def
}

// Factory builds a strategy from its persisted parameters
type Factory func(p Params) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a strategy kind available by name. Panics on duplicate
// registration, which is a programming error.
func Register(kind string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("strategy %q registered twice", kind))
	}
	registry[kind] = factory
}

// New builds a strategy of the given kind
func New(kind string, p Params) (Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy kind %q (registered: %v)", kind, Kinds())
	}
	return factory(p)
}

// Kinds lists the registered strategy kinds
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
