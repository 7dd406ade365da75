package formatters

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/quantave/quantave/internal/models"
	"github.com/quantave/quantave/internal/store"
	"github.com/shopspring/decimal"
)

// Colors for different values
var (
	ColorGreen  = text.FgGreen
	ColorRed    = text.FgRed
	ColorYellow = text.FgYellow
	ColorGray   = text.FgHiBlack
)

// FormatDollarAmount formats a dollar amount with appropriate color
func FormatDollarAmount(amount decimal.Decimal) string {
	amountStr := fmt.Sprintf("$%.2f", amount.Abs().InexactFloat64())

	if amount.IsNegative() {
		return ColorRed.Sprint("-" + amountStr)
	}
	return ColorGreen.Sprint(amountStr)
}

// FormatPositionsTable renders open positions
func FormatPositionsTable(positions []*models.Position) string {
	if len(positions) == 0 {
		return "No open positions"
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Symbol", "Qty", "Avg Entry", "Current", "Market Value", "Unrealized P&L"})

	for _, p := range positions {
		t.AppendRow(table.Row{
			p.Symbol,
			p.Qty.String(),
			fmt.Sprintf("$%.2f", p.AvgEntryPrice.InexactFloat64()),
			fmt.Sprintf("$%.2f", p.CurrentPrice.InexactFloat64()),
			fmt.Sprintf("$%.2f", p.MarketValue.InexactFloat64()),
			FormatDollarAmount(p.UnrealizedPL),
		})
	}
	return t.Render()
}

// FormatStrategiesTable renders persisted strategy configuration
func FormatStrategiesTable(states []store.StrategyState) string {
	if len(states) == 0 {
		return "No strategies configured"
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Kind", "Mode", "Timeframe", "Tickers", "Allocation"})

	for _, s := range states {
		mode := s.Mode
		if mode == "live" {
			mode = ColorGreen.Sprint(mode)
		} else {
			mode = ColorGray.Sprint(mode)
		}
		t.AppendRow(table.Row{
			s.Name,
			s.Kind,
			mode,
			s.Timeframe,
			s.Tickers,
			fmt.Sprintf("$%.2f", s.Allocation),
		})
	}
	return t.Render()
}

// FormatFailedTradesTable renders the failed trade audit listing
func FormatFailedTradesTable(rows []store.FailedTrade) string {
	if len(rows) == 0 {
		return "No failed trades"
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Strategy", "Symbol", "Error", "Retries", "Status", "Created"})

	for _, r := range rows {
		status := r.Status
		switch status {
		case store.FailedStatusResolved:
			status = ColorGreen.Sprint(status)
		case store.FailedStatusFailed:
			status = ColorRed.Sprint(status)
		default:
			status = ColorYellow.Sprint(status)
		}
		errMsg := r.ErrorMessage
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}
		t.AppendRow(table.Row{
			shortID(r.ID),
			r.StrategyName,
			r.Symbol,
			errMsg,
			r.RetryCount,
			status,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return t.Render()
}

// FormatTradesTable renders executed fills
func FormatTradesTable(trades []store.LiveTrade) string {
	if len(trades) == 0 {
		return "No recorded trades"
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Strategy", "Symbol", "Side", "Qty", "Price", "Filled At"})

	for _, tr := range trades {
		side := tr.Side
		if side == string(models.SignalBuy) {
			side = ColorGreen.Sprint(side)
		} else {
			side = ColorRed.Sprint(side)
		}
		t.AppendRow(table.Row{
			tr.StrategyName,
			tr.Symbol,
			side,
			fmt.Sprintf("%.2f", tr.Quantity),
			fmt.Sprintf("$%.2f", tr.Price),
			tr.FilledAt.Format("2006-01-02 15:04:05"),
		})
	}
	return t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
