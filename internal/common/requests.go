package common

// NewOrderRequest is the inbound intent to place an order.
type NewOrderRequest struct {
	OrderID     OrderID     `json:"order_id"`
	TraderID    TraderID    `json:"trader_id"`
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	OrderType   OrderType   `json:"order_type"`
	Price       Price       `json:"price"`
	Quantity    Quantity    `json:"quantity"`
	TimeInForce TimeInForce `json:"time_in_force"`
	Timestamp   Timestamp   `json:"timestamp"`
}

// Order materialises the request into a fresh, unfilled order.
func (r NewOrderRequest) Order() Order {
	return Order{
		OrderID:     r.OrderID,
		TraderID:    r.TraderID,
		Symbol:      r.Symbol,
		Side:        r.Side,
		OrderType:   r.OrderType,
		Price:       r.Price,
		Quantity:    r.Quantity,
		Remaining:   r.Quantity,
		TimeInForce: r.TimeInForce,
		Timestamp:   r.Timestamp,
	}
}

type CancelRequest struct {
	OrderID   OrderID   `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Timestamp Timestamp `json:"timestamp"`
}

type ReplaceRequest struct {
	OrderID     OrderID   `json:"order_id"`
	Symbol      string    `json:"symbol"`
	NewPrice    Price     `json:"new_price"`
	NewQuantity Quantity  `json:"new_quantity"`
	Timestamp   Timestamp `json:"timestamp"`
}

// OrderResponse is the synchronous result of handling one intent. The event
// slices carry everything that was emitted for it, in emission order.
type OrderResponse struct {
	OrderID  OrderID
	Result   ResultCode
	Message  string
	Accepts  []OrderAcceptedEvent
	Rejects  []OrderRejectedEvent
	Cancels  []OrderCancelledEvent
	Replaces []OrderReplacedEvent
	Trades   []TradeEvent
}

// SymbolConfig describes one tradable instrument.
type SymbolConfig struct {
	Symbol      string    `json:"symbol"`
	TickSize    Price     `json:"tick_size"`    // Minimum price increment
	LotSize     Quantity  `json:"lot_size"`     // Minimum quantity increment
	MinQuantity Quantity  `json:"min_quantity"` // Minimum order quantity
	STPPolicy   STPPolicy `json:"stp_policy"`
}

func (c SymbolConfig) Valid() bool {
	return c.Symbol != "" && c.TickSize > 0 && c.LotSize > 0 && c.MinQuantity > 0
}
