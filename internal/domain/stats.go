package domain

import "github.com/shopspring/decimal"

// TradeStats are aggregate execution outcomes served on the stats endpoint.
type TradeStats struct {
	TotalExecutions int
	Completed       int
	Failed          int
	Active          int
	SuccessRate     float64         // completed / terminal, 0 when no terminal runs
	TotalProfit     decimal.Decimal // sum of completed execution profits
}
