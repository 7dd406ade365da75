package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantave/quantave/pkg/formatters"
)

var tradesLimit int

var tradesCmd = &cobra.Command{
	Use:   "trades [strategy]",
	Short: "Show recorded fills for a strategy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trades, err := db.TradesForStrategy(args[0], tradesLimit)
		if err != nil {
			return err
		}
		fmt.Println(formatters.FormatTradesTable(trades))
		return nil
	},
}

var failedTradesLimit int

var failedTradesCmd = &cobra.Command{
	Use:   "failed-trades",
	Short: "Show the failed trade audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := db.ListFailedTrades(failedTradesLimit)
		if err != nil {
			return err
		}
		fmt.Println(formatters.FormatFailedTradesTable(rows))
		return nil
	},
}

func init() {
	tradesCmd.Flags().IntVar(&tradesLimit, "limit", 50, "number of fills to show")
	failedTradesCmd.Flags().IntVar(&failedTradesLimit, "limit", 50, "number of records to show")
	rootCmd.AddCommand(tradesCmd)
	rootCmd.AddCommand(failedTradesCmd)
}
