package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantave/quantave/pkg/formatters"
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Show open positions",
	RunE: func(cmd *cobra.Command, args []string) error {
		positions, err := client.GetPositions(context.Background())
		if err != nil {
			return fmt.Errorf("failed to fetch positions: %w", err)
		}
		fmt.Println(formatters.FormatPositionsTable(positions))
		return nil
	},
}

var liquidateSymbol string

var liquidateCmd = &cobra.Command{
	Use:   "liquidate",
	Short: "Queue closing orders for open positions",
	Long: `Queues a market order closing each open position, or a single position
when --symbol is given. Closing orders skip the risk checks that gate
new exposure and go straight to execution with retries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		execEngine.Start(ctx)

		var err error
		if liquidateSymbol != "" {
			err = execEngine.LiquidatePosition(ctx, liquidateSymbol, "manual")
		} else {
			err = execEngine.LiquidateAllPositions(ctx, "manual")
		}
		if err != nil {
			execEngine.Shutdown(ctx)
			return err
		}

		// Let the worker drain the closing orders before stopping
		for execEngine.QueueLen() > 0 {
			time.Sleep(time.Second)
		}
		execEngine.Shutdown(ctx)
		fmt.Println("Liquidation orders processed")
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel ORDER_ID",
	Short: "Cancel one open order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := execEngine.CancelOrder(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Order %s canceled\n", args[0])
		return nil
	},
}

var cancelAllCmd = &cobra.Command{
	Use:   "cancel-all",
	Short: "Cancel every open order",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := execEngine.CancelAllOrders(context.Background()); err != nil {
			return err
		}
		fmt.Println("All open orders canceled")
		return nil
	},
}

func init() {
	liquidateCmd.Flags().StringVar(&liquidateSymbol, "symbol", "", "liquidate a single symbol")
	rootCmd.AddCommand(positionsCmd)
	rootCmd.AddCommand(liquidateCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(cancelAllCmd)
}
