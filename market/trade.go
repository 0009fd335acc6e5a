package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade sides as reported on the public tape.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Trade is one historical fill from the exchange tape. Immutable once
// retrieved; uniqueness is by ID (exchange-assigned, monotonically
// increasing). Quantity carries the base-currency value of the fill, so
// interval volume and VWAP weights are base-denominated.
type Trade struct {
	ID        int64
	Timestamp time.Time
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Side      string
}
