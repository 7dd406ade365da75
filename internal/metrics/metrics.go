package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	BarsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantave_bars_ingested_total",
		Help: "Market bars received, labeled by transport and symbol",
	}, []string{"transport", "symbol"})

	BarsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantave_bars_discarded_total",
		Help: "Bars dropped for arriving out of order",
	}, []string{"symbol"})

	SignalsQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantave_signals_queued_total",
		Help: "Trade signals accepted into the execution queue",
	}, []string{"strategy"})

	SignalsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantave_signals_rejected_total",
		Help: "Trade signals rejected by risk checks",
	}, []string{"strategy"})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantave_orders_placed_total",
		Help: "Orders submitted to the brokerage",
	}, []string{"symbol", "side"})

	OrdersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quantave_orders_failed_total",
		Help: "Orders that failed after exhausting retries",
	})

	TradesRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quantave_trades_recovered_total",
		Help: "Failed trades successfully re-executed by the recovery sweep",
	})

	StreamReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantave_stream_reconnects_total",
		Help: "Streaming transport reconnect attempts",
	}, []string{"transport"})

	GapBackfills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantave_gap_backfills_total",
		Help: "Historical backfills triggered by detected data gaps",
	}, []string{"symbol"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quantave_signal_queue_depth",
		Help: "Trade signals currently waiting for execution",
	})
)

// Serve exposes /metrics on addr. Blocks until the server exits.
func Serve(addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("metrics server listening", zap.String("addr", addr))
	return srv.ListenAndServe()
}
