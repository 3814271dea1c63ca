package common

import "fmt"

// TradeEvent is emitted for every match. The price is always the resting
// (passive) order's price; SequenceNumber is stamped by the engine facade,
// not the book.
type TradeEvent struct {
	TradeID           TradeID   `json:"trade_id"`
	Symbol            string    `json:"symbol"`
	Price             Price     `json:"price"`
	Quantity          Quantity  `json:"quantity"`
	AggressorSide     Side      `json:"aggressor_side"`
	AggressiveOrderID OrderID   `json:"aggressive_order_id"`
	PassiveOrderID    OrderID   `json:"passive_order_id"`
	AggressiveTrader  TraderID  `json:"aggressive_trader_id"`
	PassiveTrader     TraderID  `json:"passive_trader_id"`
	Timestamp         Timestamp `json:"timestamp"`
	SequenceNumber    uint64    `json:"sequence_number"`
}

func (t TradeEvent) String() string {
	return fmt.Sprintf("trade %d %s %d@%d aggressor=%s (%d->%d) seq=%d",
		t.TradeID, t.Symbol, t.Quantity, t.Price, t.AggressorSide,
		t.AggressiveOrderID, t.PassiveOrderID, t.SequenceNumber)
}

type OrderAcceptedEvent struct {
	OrderID        OrderID   `json:"order_id"`
	Symbol         string    `json:"symbol"`
	Side           Side      `json:"side"`
	Price          Price     `json:"price"`
	Quantity       Quantity  `json:"quantity"`
	Timestamp      Timestamp `json:"timestamp"`
	SequenceNumber uint64    `json:"sequence_number"`
}

type OrderRejectedEvent struct {
	OrderID        OrderID    `json:"order_id"`
	Symbol         string     `json:"symbol"`
	Reason         ResultCode `json:"reason"`
	Message        string     `json:"message"`
	Timestamp      Timestamp  `json:"timestamp"`
	SequenceNumber uint64     `json:"sequence_number"`
}

type OrderCancelledEvent struct {
	OrderID        OrderID   `json:"order_id"`
	Symbol         string    `json:"symbol"`
	Remaining      Quantity  `json:"remaining_quantity"`
	Timestamp      Timestamp `json:"timestamp"`
	SequenceNumber uint64    `json:"sequence_number"`
}

type OrderReplacedEvent struct {
	OldOrderID     OrderID   `json:"old_order_id"`
	NewOrderID     OrderID   `json:"new_order_id"`
	Symbol         string    `json:"symbol"`
	NewPrice       Price     `json:"new_price"`
	NewQuantity    Quantity  `json:"new_quantity"`
	Timestamp      Timestamp `json:"timestamp"`
	SequenceNumber uint64    `json:"sequence_number"`
}

// BookUpdateEvent reports an aggregate change at one price level. Quantity
// zero means the level was removed.
type BookUpdateEvent struct {
	Symbol         string    `json:"symbol"`
	Side           Side      `json:"side"`
	Price          Price     `json:"price"`
	Quantity       Quantity  `json:"quantity"`
	Timestamp      Timestamp `json:"timestamp"`
	SequenceNumber uint64    `json:"sequence_number"`
}
