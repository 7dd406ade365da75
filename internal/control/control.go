// Package control translates operator commands into live trading
// actions. Commands arrive as small JSON documents so any front end, a
// CLI or a message queue, can drive the pipeline.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quantave/quantave/internal/store"
	"go.uber.org/zap"
)

// Command types
const (
	CmdChangeStrategyMode = "change_strategy_mode"
	CmdAddTicker          = "add_ticker"
	CmdRemoveTicker       = "remove_ticker"
)

// Command is one operator instruction
type Command struct {
	Type     string `json:"type"`
	Strategy string `json:"strategy"`
	Mode     string `json:"mode,omitempty"`
	Ticker   string `json:"ticker,omitempty"`
}

// Response reports the outcome of a command
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Runner is the slice of the live manager the handler drives
type Runner interface {
	SetMode(ctx context.Context, name, mode string) error
	SetTickers(ctx context.Context, name string, tickers []string) error
	IsRunning(name string) bool
}

// StrategyReader loads persisted strategy state
type StrategyReader interface {
	GetStrategy(name string) (*store.StrategyState, error)
}

// Handler executes operator commands
type Handler struct {
	runner Runner
	reader StrategyReader
	logger *zap.Logger
}

// NewHandler creates a command handler
func NewHandler(runner Runner, reader StrategyReader, logger *zap.Logger) *Handler {
	return &Handler{runner: runner, reader: reader, logger: logger}
}

// HandleJSON decodes and executes one JSON encoded command
func (h *Handler) HandleJSON(ctx context.Context, payload []byte) Response {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Response{Success: false, Message: fmt.Sprintf("malformed command: %v", err)}
	}
	return h.Handle(ctx, cmd)
}

// Handle executes one command
func (h *Handler) Handle(ctx context.Context, cmd Command) Response {
	h.logger.Info("operator command",
		zap.String("type", cmd.Type),
		zap.String("strategy", cmd.Strategy))

	if cmd.Strategy == "" {
		return Response{Success: false, Message: "strategy name is required"}
	}

	switch cmd.Type {
	case CmdChangeStrategyMode:
		return h.changeMode(ctx, cmd)
	case CmdAddTicker:
		return h.addTicker(ctx, cmd)
	case CmdRemoveTicker:
		return h.removeTicker(ctx, cmd)
	default:
		return Response{Success: false, Message: fmt.Sprintf("unknown command type %q", cmd.Type)}
	}
}

func (h *Handler) changeMode(ctx context.Context, cmd Command) Response {
	if cmd.Mode != "live" && cmd.Mode != "backtest" {
		return Response{Success: false, Message: fmt.Sprintf("invalid mode %q", cmd.Mode)}
	}
	if err := h.runner.SetMode(ctx, cmd.Strategy, cmd.Mode); err != nil {
		return Response{Success: false, Message: err.Error()}
	}
	return Response{Success: true,
		Message: fmt.Sprintf("strategy %s is now in %s mode", cmd.Strategy, cmd.Mode)}
}

func (h *Handler) addTicker(ctx context.Context, cmd Command) Response {
	ticker := normalizeTicker(cmd.Ticker)
	if ticker == "" {
		return Response{Success: false, Message: "ticker is required"}
	}
	state, err := h.reader.GetStrategy(cmd.Strategy)
	if err != nil {
		return Response{Success: false, Message: fmt.Sprintf("unknown strategy %q", cmd.Strategy)}
	}

	tickers := state.TickerList()
	for _, existing := range tickers {
		if existing == ticker {
			return Response{Success: true,
				Message: fmt.Sprintf("%s already tracked by %s", ticker, cmd.Strategy)}
		}
	}
	tickers = append(tickers, ticker)

	if err := h.runner.SetTickers(ctx, cmd.Strategy, tickers); err != nil {
		return Response{Success: false, Message: err.Error()}
	}
	return Response{Success: true,
		Message: fmt.Sprintf("%s added to %s", ticker, cmd.Strategy)}
}

func (h *Handler) removeTicker(ctx context.Context, cmd Command) Response {
	ticker := normalizeTicker(cmd.Ticker)
	if ticker == "" {
		return Response{Success: false, Message: "ticker is required"}
	}
	state, err := h.reader.GetStrategy(cmd.Strategy)
	if err != nil {
		return Response{Success: false, Message: fmt.Sprintf("unknown strategy %q", cmd.Strategy)}
	}

	tickers := state.TickerList()
	kept := make([]string, 0, len(tickers))
	for _, existing := range tickers {
		if existing != ticker {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(tickers) {
		return Response{Success: false,
			Message: fmt.Sprintf("%s is not tracked by %s", ticker, cmd.Strategy)}
	}
	if len(kept) == 0 {
		return Response{Success: false,
			Message: fmt.Sprintf("cannot remove the last ticker from %s", cmd.Strategy)}
	}

	if err := h.runner.SetTickers(ctx, cmd.Strategy, kept); err != nil {
		return Response{Success: false, Message: err.Error()}
	}
	return Response{Success: true,
		Message: fmt.Sprintf("%s removed from %s", ticker, cmd.Strategy)}
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
