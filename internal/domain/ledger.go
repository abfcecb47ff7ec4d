package domain

import "time"

// Ledger record notes for non-trade events.
const (
	NoteInsufficientCash = "insufficient_cash" // entry skipped, not filled
)

// TradeRecord is one row of the output trade ledger: an executed (or
// skipped) trade with its costs and the cash balance after it.
type TradeRecord struct {
	Symbol        string
	Action        Action
	Date          time.Time
	Price         float64
	Quantity      int64
	Commission    float64
	Slippage      float64
	ResultingCash float64
	Note          string // empty for fills; NoteInsufficientCash for skipped entries
}

// EquityPoint is one day of the equity curve: cash plus open positions
// marked to market at that day's close.
type EquityPoint struct {
	Date        time.Time
	TotalEquity float64
}
