package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quantave/quantave/internal/control"
	"github.com/quantave/quantave/internal/store"
	"github.com/quantave/quantave/internal/strategy"
	"github.com/quantave/quantave/pkg/formatters"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "Manage trading strategies",
}

var strategiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured strategies",
	RunE: func(cmd *cobra.Command, args []string) error {
		states, err := db.ListStrategies()
		if err != nil {
			return err
		}
		fmt.Println(formatters.FormatStrategiesTable(states))
		return nil
	},
}

var (
	addKind       string
	addTimeframe  string
	addTickers    string
	addAllocation float64
)

var strategiesAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Register a strategy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := strategy.Kinds()
		valid := false
		for _, k := range kinds {
			if k == addKind {
				valid = true
			}
		}
		if !valid {
			return fmt.Errorf("unknown strategy kind %q (available: %v)", addKind, kinds)
		}
		return db.UpsertStrategy(&store.StrategyState{
			Name:       args[0],
			Kind:       addKind,
			Mode:       "backtest",
			Timeframe:  addTimeframe,
			Tickers:    strings.ToUpper(addTickers),
			Allocation: addAllocation,
		})
	},
}

var strategiesSetModeCmd = &cobra.Command{
	Use:   "set-mode [name] [live|backtest]",
	Short: "Switch a strategy between live and backtest mode",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp := cmdHandler.Handle(context.Background(), control.Command{
			Type:     control.CmdChangeStrategyMode,
			Strategy: args[0],
			Mode:     args[1],
		})
		fmt.Println(resp.Message)
		if !resp.Success {
			return fmt.Errorf("command failed")
		}
		return nil
	},
}

var strategiesAddTickerCmd = &cobra.Command{
	Use:   "add-ticker [name] [ticker]",
	Short: "Track an additional ticker",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp := cmdHandler.Handle(context.Background(), control.Command{
			Type:     control.CmdAddTicker,
			Strategy: args[0],
			Ticker:   args[1],
		})
		fmt.Println(resp.Message)
		if !resp.Success {
			return fmt.Errorf("command failed")
		}
		return nil
	},
}

var strategiesRemoveTickerCmd = &cobra.Command{
	Use:   "remove-ticker [name] [ticker]",
	Short: "Stop tracking a ticker",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp := cmdHandler.Handle(context.Background(), control.Command{
			Type:     control.CmdRemoveTicker,
			Strategy: args[0],
			Ticker:   args[1],
		})
		fmt.Println(resp.Message)
		if !resp.Success {
			return fmt.Errorf("command failed")
		}
		return nil
	},
}

func init() {
	strategiesAddCmd.Flags().StringVar(&addKind, "kind", "", "strategy kind (required)")
	strategiesAddCmd.Flags().StringVar(&addTimeframe, "timeframe", "1Min", "bar timeframe")
	strategiesAddCmd.Flags().StringVar(&addTickers, "tickers", "", "comma separated tickers")
	strategiesAddCmd.Flags().Float64Var(&addAllocation, "allocation", 0, "dollar allocation per position")
	_ = strategiesAddCmd.MarkFlagRequired("kind")

	strategiesCmd.AddCommand(strategiesListCmd)
	strategiesCmd.AddCommand(strategiesAddCmd)
	strategiesCmd.AddCommand(strategiesSetModeCmd)
	strategiesCmd.AddCommand(strategiesAddTickerCmd)
	strategiesCmd.AddCommand(strategiesRemoveTickerCmd)
	rootCmd.AddCommand(strategiesCmd)
}
