package utils

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FormatMoney renders a monetary amount with 2 decimal places.
func FormatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// FormatPnL renders a P&L amount with an explicit sign.
func FormatPnL(pnl decimal.Decimal) string {
	if pnl.IsPositive() {
		return "+" + pnl.StringFixed(2)
	}
	return pnl.StringFixed(2)
}

// FormatPercent formats a fractional value as a signed percentage.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value*100)
}

// FormatDuration renders a duration rounded to the nearest second.
func FormatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
