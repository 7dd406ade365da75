package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quantave/quantave/internal/config"
	"github.com/quantave/quantave/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const authTimeout = 10 * time.Second

// AlpacaStream is the primary transport: the brokerage's market data
// websocket. Connecting authenticates, waits for the authenticated
// control message, then subscribes to minute bars.
type AlpacaStream struct {
	cfg    *config.Config
	logger *zap.Logger
	conn   *websocket.Conn
}

// Bar and control frames share the "T" discriminator
type alpacaFrame struct {
	MessageType string          `json:"T"`
	Msg         string          `json:"msg,omitempty"`
	Code        int             `json:"code,omitempty"`
	Symbol      string          `json:"S,omitempty"`
	Open        decimal.Decimal `json:"o,omitempty"`
	High        decimal.Decimal `json:"h,omitempty"`
	Low         decimal.Decimal `json:"l,omitempty"`
	Close       decimal.Decimal `json:"c,omitempty"`
	Volume      int64           `json:"v,omitempty"`
	Time        time.Time       `json:"t,omitempty"`
}

// NewAlpacaStream creates the websocket transport
func NewAlpacaStream(cfg *config.Config, logger *zap.Logger) *AlpacaStream {
	return &AlpacaStream{cfg: cfg, logger: logger}
}

// Name implements Transport
func (s *AlpacaStream) Name() string { return "alpaca" }

// Open implements Transport. It dials, authenticates, waits for the
// authenticated acknowledgement, and subscribes to bars.
func (s *AlpacaStream) Open(ctx context.Context, symbols []string) error {
	dialer := websocket.Dialer{HandshakeTimeout: authTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.BrokerStreamURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	s.conn = conn

	auth := struct {
		Action string `json:"action"`
		Key    string `json:"key"`
		Secret string `json:"secret"`
	}{
		Action: "auth",
		Key:    s.cfg.BrokerKeyID,
		Secret: s.cfg.BrokerSecretKey,
	}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return fmt.Errorf("auth write: %w", err)
	}

	if err := s.awaitAuthenticated(); err != nil {
		conn.Close()
		return err
	}

	sub := struct {
		Action string   `json:"action"`
		Bars   []string `json:"bars"`
	}{
		Action: "subscribe",
		Bars:   symbols,
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe write: %w", err)
	}

	s.logger.Info("websocket stream connected",
		zap.String("url", s.cfg.BrokerStreamURL),
		zap.Strings("symbols", symbols))
	return nil
}

// awaitAuthenticated reads frames until the authenticated control
// message arrives or the auth deadline passes.
func (s *AlpacaStream) awaitAuthenticated() error {
	deadline := time.Now().Add(authTimeout)
	_ = s.conn.SetReadDeadline(deadline)
	defer s.conn.SetReadDeadline(time.Time{})

	for time.Now().Before(deadline) {
		frames, err := s.readFrames()
		if err != nil {
			return fmt.Errorf("auth read: %w", err)
		}
		for _, frame := range frames {
			switch frame.MessageType {
			case "success":
				if frame.Msg == "authenticated" {
					return nil
				}
			case "error":
				return fmt.Errorf("stream auth rejected: %s (code %d)", frame.Msg, frame.Code)
			}
		}
	}
	return fmt.Errorf("stream authentication timed out")
}

// Run implements Transport
func (s *AlpacaStream) Run(ctx context.Context, onBar BarHandler) error {
	// Unblock the read loop when the context ends
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-done:
		}
	}()

	for {
		frames, err := s.readFrames()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream read: %w", err)
		}
		for _, frame := range frames {
			switch frame.MessageType {
			case "b":
				onBar(models.Bar{
					Symbol:    frame.Symbol,
					Open:      frame.Open,
					High:      frame.High,
					Low:       frame.Low,
					Close:     frame.Close,
					Volume:    frame.Volume,
					Timestamp: frame.Time,
				})
			case "error":
				s.logger.Warn("stream error message",
					zap.String("msg", frame.Msg), zap.Int("code", frame.Code))
			}
		}
	}
}

// readFrames reads one websocket message, which carries an array of
// frames.
func (s *AlpacaStream) readFrames() ([]alpacaFrame, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var frames []alpacaFrame
	if err := json.Unmarshal(data, &frames); err != nil {
		return nil, fmt.Errorf("malformed stream message: %w", err)
	}
	return frames, nil
}

// Close implements Transport
func (s *AlpacaStream) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
