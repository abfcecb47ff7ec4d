package domain

import "time"

// Action is the direction of a trade event.
type Action string

// Action constants.
const (
	ActionEnter Action = "enter"
	ActionExit  Action = "exit"
)

// Trade event reasons.
const (
	ReasonBreakout  = "breakout"   // close broke the prior N-day high
	ReasonStop      = "stop"       // intraday low breached the entry-day low
	ReasonEndOfData = "end_of_data" // forced close-out at the last bar
)

// TradeEvent is a single entry or exit signal emitted by a strategy.
// Events are immutable once emitted.
type TradeEvent struct {
	Symbol string
	Action Action
	Date   time.Time
	Price  float64
	Reason string
}
