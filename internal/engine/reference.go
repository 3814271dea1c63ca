package engine

import (
	"sort"

	. "mjolnir/internal/common"
)

// ReferenceOrderBook is the deliberately naive oracle: every resting order
// lives in one flat slice and matching scans the whole slice for the best
// eligible counterparty. Its trades and book state must agree with OrderBook
// for every legal intent sequence; it exists only for validation.
type ReferenceOrderBook struct {
	symbol string
	stp    STPPolicy
	clock  Clock

	orders      []*Order
	nextTradeID TradeID
}

func NewReferenceOrderBook(symbol string, stp STPPolicy, clock Clock) *ReferenceOrderBook {
	return &ReferenceOrderBook{
		symbol:      symbol,
		stp:         stp,
		clock:       clock,
		nextTradeID: 1,
	}
}

func (b *ReferenceOrderBook) Symbol() string { return b.symbol }

func (b *ReferenceOrderBook) AddOrder(order Order) ([]TradeEvent, error) {
	incoming := &order
	ts := b.clock.Now()
	incoming.Timestamp = ts

	if incoming.IsFOK() && !b.fokFillable(incoming) {
		return nil, ErrFOKNotFillable
	}

	trades := b.match(incoming, ts)

	if incoming.Remaining > 0 {
		switch {
		case incoming.IsMarket(), incoming.IsIOC(), incoming.IsFOK():
			// Dropped.
		default:
			b.orders = append(b.orders, incoming)
		}
	}

	return trades, nil
}

func (b *ReferenceOrderBook) CancelOrder(orderID OrderID) bool {
	for i, order := range b.orders {
		if order.OrderID == orderID {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			return true
		}
	}
	return false
}

func (b *ReferenceOrderBook) ReplaceOrder(orderID OrderID, newPrice Price, newQuantity Quantity) []TradeEvent {
	var old *Order
	for _, order := range b.orders {
		if order.OrderID == orderID {
			old = order
			break
		}
	}
	if old == nil {
		return nil
	}

	replacement := *old
	replacement.Price = newPrice
	replacement.Quantity = newQuantity
	replacement.Remaining = newQuantity

	b.CancelOrder(orderID)
	trades, _ := b.AddOrder(replacement)
	return trades
}

func (b *ReferenceOrderBook) BestBid() (Price, bool) {
	best := InvalidPrice
	for _, order := range b.orders {
		if order.IsBuy() && order.Remaining > 0 && (best == InvalidPrice || order.Price > best) {
			best = order.Price
		}
	}
	return best, best != InvalidPrice
}

func (b *ReferenceOrderBook) BestAsk() (Price, bool) {
	best := InvalidPrice
	for _, order := range b.orders {
		if order.IsSell() && order.Remaining > 0 && (best == InvalidPrice || order.Price < best) {
			best = order.Price
		}
	}
	return best, best != InvalidPrice
}

func (b *ReferenceOrderBook) TopOfBook(ts Timestamp) TopOfBook {
	tob := TopOfBook{
		Symbol:    b.symbol,
		BestBid:   InvalidPrice,
		BestAsk:   InvalidPrice,
		Timestamp: ts,
	}
	if bid, ok := b.BestBid(); ok {
		tob.BestBid = bid
		for _, order := range b.orders {
			if order.IsBuy() && order.Price == bid {
				tob.BidSize += order.Remaining
			}
		}
	}
	if ask, ok := b.BestAsk(); ok {
		tob.BestAsk = ask
		for _, order := range b.orders {
			if order.IsSell() && order.Price == ask {
				tob.AskSize += order.Remaining
			}
		}
	}
	return tob
}

func (b *ReferenceOrderBook) DepthSnapshot(depthLevels int, ts Timestamp) DepthSnapshot {
	snapshot := DepthSnapshot{Symbol: b.symbol, Timestamp: ts}

	type levelAgg struct {
		qty   Quantity
		count uint32
	}
	bidAgg := make(map[Price]*levelAgg)
	askAgg := make(map[Price]*levelAgg)
	for _, order := range b.orders {
		agg := bidAgg
		if order.IsSell() {
			agg = askAgg
		}
		if level, ok := agg[order.Price]; ok {
			level.qty += order.Remaining
			level.count++
		} else {
			agg[order.Price] = &levelAgg{qty: order.Remaining, count: 1}
		}
	}

	flatten := func(agg map[Price]*levelAgg, descending bool) []PriceLevel {
		prices := make([]Price, 0, len(agg))
		for price := range agg {
			prices = append(prices, price)
		}
		sort.Slice(prices, func(i, j int) bool {
			if descending {
				return prices[i] > prices[j]
			}
			return prices[i] < prices[j]
		})
		if len(prices) > depthLevels {
			prices = prices[:depthLevels]
		}
		out := make([]PriceLevel, 0, len(prices))
		for _, price := range prices {
			out = append(out, PriceLevel{
				Price:      price,
				Quantity:   agg[price].qty,
				OrderCount: agg[price].count,
			})
		}
		return out
	}

	snapshot.Bids = flatten(bidAgg, true)
	snapshot.Asks = flatten(askAgg, false)
	return snapshot
}

func (b *ReferenceOrderBook) FindOrder(orderID OrderID) (Order, bool) {
	for _, order := range b.orders {
		if order.OrderID == orderID {
			return *order, true
		}
	}
	return Order{}, false
}

func (b *ReferenceOrderBook) ActiveOrderCount() int { return len(b.orders) }

// --- Naive matching ---------------------------------------------------------

func (b *ReferenceOrderBook) match(incoming *Order, ts Timestamp) []TradeEvent {
	var trades []TradeEvent

	for incoming.Remaining > 0 {
		best := b.findBestMatch(incoming)
		if best == nil {
			break
		}

		if b.wouldSelfTrade(incoming, best) {
			switch b.stp {
			case STPCancelIncoming:
				incoming.Remaining = 0
			case STPCancelResting:
				b.CancelOrder(best.OrderID)
				continue
			case STPCancelBoth:
				incoming.Remaining = 0
				b.CancelOrder(best.OrderID)
			}
			break
		}

		qty := min(incoming.Remaining, best.Remaining)
		trades = append(trades, TradeEvent{
			TradeID:           b.nextTradeID,
			Symbol:            b.symbol,
			Price:             best.Price,
			Quantity:          qty,
			AggressorSide:     incoming.Side,
			AggressiveOrderID: incoming.OrderID,
			PassiveOrderID:    best.OrderID,
			AggressiveTrader:  incoming.TraderID,
			PassiveTrader:     best.TraderID,
			Timestamp:         ts,
		})
		b.nextTradeID++

		incoming.Remaining -= qty
		best.Remaining -= qty

		if best.Remaining == 0 {
			b.CancelOrder(best.OrderID)
		}
	}

	return trades
}

// findBestMatch scans all resting orders for the price-time best eligible
// counterparty. Ties on price and timestamp fall to insertion order, the
// same order the FIFO queues preserve.
func (b *ReferenceOrderBook) findBestMatch(incoming *Order) *Order {
	var best *Order
	for _, order := range b.orders {
		if order.Side == incoming.Side || order.Remaining == 0 {
			continue
		}
		if !canTrade(incoming, order) {
			continue
		}
		if best == nil {
			best = order
			continue
		}
		if incoming.IsBuy() {
			if order.Price < best.Price ||
				(order.Price == best.Price && order.Timestamp < best.Timestamp) {
				best = order
			}
		} else {
			if order.Price > best.Price ||
				(order.Price == best.Price && order.Timestamp < best.Timestamp) {
				best = order
			}
		}
	}
	return best
}

func canTrade(incoming, resting *Order) bool {
	if incoming.IsMarket() || resting.IsMarket() {
		return true
	}
	if incoming.IsBuy() {
		return incoming.Price >= resting.Price
	}
	return incoming.Price <= resting.Price
}

func (b *ReferenceOrderBook) wouldSelfTrade(incoming, resting *Order) bool {
	if b.stp == STPNone {
		return false
	}
	return incoming.TraderID == resting.TraderID && incoming.TraderID != InvalidTraderID
}

// fokFillable mirrors OrderBook.fokFillable against the flat slice: walk
// counterparties in price-time order, stopping where matching would stop.
func (b *ReferenceOrderBook) fokFillable(incoming *Order) bool {
	needed := incoming.Remaining

	eligible := make([]*Order, 0, len(b.orders))
	for _, order := range b.orders {
		if order.Side == incoming.Side || order.Remaining == 0 {
			continue
		}
		if canTrade(incoming, order) {
			eligible = append(eligible, order)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Price != eligible[j].Price {
			if incoming.IsBuy() {
				return eligible[i].Price < eligible[j].Price
			}
			return eligible[i].Price > eligible[j].Price
		}
		return eligible[i].Timestamp < eligible[j].Timestamp
	})

	var available Quantity
	for _, order := range eligible {
		if b.wouldSelfTrade(incoming, order) {
			switch b.stp {
			case STPCancelIncoming, STPCancelBoth:
				return available >= needed
			case STPCancelResting:
				continue
			}
		}
		available += order.Remaining
		if available >= needed {
			return true
		}
	}
	return available >= needed
}
