package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantave/quantave/internal/config"
	"github.com/quantave/quantave/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RedisStream is the fallback transport: an external feed process
// publishes bars onto a redis channel and this transport subscribes to
// it. Symbol filtering happens client side since the channel carries
// every symbol the feed knows about.
type RedisStream struct {
	cfg     *config.Config
	logger  *zap.Logger
	client  *redis.Client
	pubsub  *redis.PubSub
	symbols map[string]bool
}

// redisBar is the published wire format
type redisBar struct {
	Symbol    string          `json:"symbol"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewRedisStream creates the fallback transport
func NewRedisStream(cfg *config.Config, logger *zap.Logger) *RedisStream {
	return &RedisStream{cfg: cfg, logger: logger}
}

// Name implements Transport
func (s *RedisStream) Name() string { return "redis" }

// Open implements Transport. The initial Receive confirms the
// subscription is live before Open returns.
func (s *RedisStream) Open(ctx context.Context, symbols []string) error {
	s.client = redis.NewClient(&redis.Options{Addr: s.cfg.RedisAddr})
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	s.symbols = make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		s.symbols[sym] = true
	}

	s.pubsub = s.client.Subscribe(ctx, s.cfg.RedisChannel)
	if _, err := s.pubsub.Receive(ctx); err != nil {
		s.pubsub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	s.logger.Info("redis stream connected",
		zap.String("addr", s.cfg.RedisAddr),
		zap.String("channel", s.cfg.RedisChannel),
		zap.Strings("symbols", symbols))
	return nil
}

// Run implements Transport
func (s *RedisStream) Run(ctx context.Context, onBar BarHandler) error {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			var wire redisBar
			if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
				s.logger.Warn("malformed bar payload dropped", zap.Error(err))
				continue
			}
			if !s.symbols[wire.Symbol] {
				continue
			}
			onBar(models.Bar{
				Symbol:    wire.Symbol,
				Open:      wire.Open,
				High:      wire.High,
				Low:       wire.Low,
				Close:     wire.Close,
				Volume:    wire.Volume,
				Timestamp: wire.Timestamp,
			})
		}
	}
}

// Close implements Transport
func (s *RedisStream) Close() error {
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
