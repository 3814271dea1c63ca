package engine

import (
	. "mjolnir/internal/common"
)

// Listener receives engine events synchronously on the intent-handling
// goroutine, in emission order. Implementations must not call back into the
// engine.
type Listener interface {
	OnOrderAccepted(event OrderAcceptedEvent)
	OnOrderRejected(event OrderRejectedEvent)
	OnOrderCancelled(event OrderCancelledEvent)
	OnOrderReplaced(event OrderReplacedEvent)
	OnTrade(event TradeEvent)
	OnBookUpdate(event BookUpdateEvent)
}

// ListenerBase is a no-op Listener for embedding, so consumers only override
// the hooks they care about.
type ListenerBase struct{}

func (ListenerBase) OnOrderAccepted(OrderAcceptedEvent)   {}
func (ListenerBase) OnOrderRejected(OrderRejectedEvent)   {}
func (ListenerBase) OnOrderCancelled(OrderCancelledEvent) {}
func (ListenerBase) OnOrderReplaced(OrderReplacedEvent)   {}
func (ListenerBase) OnTrade(TradeEvent)                   {}
func (ListenerBase) OnBookUpdate(BookUpdateEvent)         {}
