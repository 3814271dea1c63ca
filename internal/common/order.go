package common

import "fmt"

// Order describes intent plus the mutable residual quantity. The book that
// accepts an order owns it; everything handed outward is a copy.
type Order struct {
	OrderID     OrderID
	TraderID    TraderID
	Symbol      string
	Side        Side
	OrderType   OrderType
	Price       Price       // Limiting price, in ticks
	Quantity    Quantity    // Original volume requested
	Remaining   Quantity    // Unfilled volume; non-increasing until removal
	TimeInForce TimeInForce //
	Timestamp   Timestamp   // Arrival time, monotonic ns

	// Reserved for iceberg/hidden order support. Carried but never acted on.
	PostOnly        bool
	Hidden          bool
	DisplayQuantity Quantity
}

func (o *Order) IsBuy() bool      { return o.Side == Buy }
func (o *Order) IsSell() bool     { return o.Side == Sell }
func (o *Order) IsLimit() bool    { return o.OrderType == LimitOrder }
func (o *Order) IsMarket() bool   { return o.OrderType == MarketOrder }
func (o *Order) IsFilled() bool   { return o.Remaining == 0 }
func (o *Order) IsIOC() bool      { return o.TimeInForce == IOC }
func (o *Order) IsFOK() bool      { return o.TimeInForce == FOK }
func (o *Order) Filled() Quantity { return o.Quantity - o.Remaining }

func (o Order) String() string {
	return fmt.Sprintf("%s %s %s %d@%d (%d left) tif=%s order=%d trader=%d",
		o.Symbol,
		o.Side,
		o.OrderType,
		o.Quantity,
		o.Price,
		o.Remaining,
		o.TimeInForce,
		o.OrderID,
		o.TraderID,
	)
}
