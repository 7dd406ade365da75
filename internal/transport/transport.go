// Package transport provides streaming market data sources. A Transport
// delivers raw one-minute bars; reconnection policy belongs to the
// caller, which closes a dead transport and opens a fresh one.
package transport

import (
	"context"

	"github.com/quantave/quantave/internal/models"
)

// BarHandler receives each bar as it arrives off the wire
type BarHandler func(bar models.Bar)

// Transport is one streaming source of market bars
type Transport interface {
	// Name identifies the transport in logs and metrics
	Name() string

	// Open connects and subscribes to bar updates for the symbols.
	// Returns only after the source has acknowledged the subscription.
	Open(ctx context.Context, symbols []string) error

	// Run blocks reading bars and invoking onBar until the stream
	// breaks or the context is canceled. Always returns a non-nil
	// error describing why the stream ended.
	Run(ctx context.Context, onBar BarHandler) error

	// Close tears down the connection
	Close() error
}
