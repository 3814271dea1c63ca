package engine

import (
	"errors"
	"fmt"

	"github.com/tidwall/btree"

	. "mjolnir/internal/common"
)

var (
	// ErrFOKNotFillable reports a fill-or-kill order that could not be
	// fully filled. The book is untouched when this is returned.
	ErrFOKNotFillable = errors.New("fok order not fully fillable")
)

// priceLevel pairs one price with its FIFO queue. Stored in the btrees by
// pointer so queue mutations never copy.
type priceLevel struct {
	price Price
	queue priceLevelQueue
}

type priceLevels = btree.BTreeG[*priceLevel]

// OrderBook maintains the resting orders for a single symbol and performs
// matching under price-time priority. It owns every resting Order; the level
// queues and the id index alias the same objects, and the book is the only
// mutator. Not safe for concurrent use.
type OrderBook struct {
	symbol string
	stp    STPPolicy
	clock  Clock

	// Price levels sorted best-first: bids greatest price first, asks
	// least price first.
	bids *priceLevels
	asks *priceLevels

	// Resting order index.
	orders map[OrderID]*Order

	nextTradeID TradeID
	tradeCount  uint64
	totalVolume uint64
}

func NewOrderBook(symbol string, stp STPPolicy, clock Clock) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *priceLevel) bool {
		return a.price > b.price
	})
	asks := btree.NewBTreeG(func(a, b *priceLevel) bool {
		return a.price < b.price
	})
	return &OrderBook{
		symbol:      symbol,
		stp:         stp,
		clock:       clock,
		bids:        bids,
		asks:        asks,
		orders:      make(map[OrderID]*Order),
		nextTradeID: 1,
	}
}

func (b *OrderBook) Symbol() string { return b.symbol }

// AddOrder attempts to match the incoming order and then, depending on its
// time in force, rests the residual. The returned trades are in match order.
//
// Fill-or-kill orders are prechecked: if the book cannot fully fill one, no
// matching happens at all and ErrFOKNotFillable is returned.
func (b *OrderBook) AddOrder(order Order) ([]TradeEvent, error) {
	incoming := &order
	ts := b.clock.Now()
	incoming.Timestamp = ts

	if incoming.IsFOK() && !b.fokFillable(incoming) {
		return nil, ErrFOKNotFillable
	}

	trades := b.match(incoming, ts)

	if incoming.Remaining > 0 {
		switch {
		case incoming.IsMarket(), incoming.IsIOC():
			// Residual is dropped; market orders never rest.
		case incoming.IsFOK():
			// Precheck guarantees a full fill; a residual here means
			// the book lied to itself.
			panic(fmt.Sprintf("orderbook %s: fok order %d passed precheck but did not fill",
				b.symbol, incoming.OrderID))
		default:
			// DAY/GTC rest on the book.
			b.orders[incoming.OrderID] = incoming
			b.addToBook(incoming)
		}
	}

	return trades, nil
}

// CancelOrder removes a resting order. Returns false for ids that are
// unknown, already filled, or already cancelled.
func (b *OrderBook) CancelOrder(orderID OrderID) bool {
	order, ok := b.orders[orderID]
	if !ok {
		return false
	}
	b.removeFromBook(order)
	delete(b.orders, orderID)
	return true
}

// ReplaceOrder removes the resting order unconditionally and submits a fresh
// one inheriting trader, side, type, time in force and symbol, with the new
// price and quantity and the current timestamp. The replacement keeps its id
// but loses queue priority. Returns the trades produced by the replay, or
// nil if the id was not resting.
func (b *OrderBook) ReplaceOrder(orderID OrderID, newPrice Price, newQuantity Quantity) []TradeEvent {
	old, ok := b.orders[orderID]
	if !ok {
		return nil
	}

	replacement := *old
	replacement.Price = newPrice
	replacement.Quantity = newQuantity
	replacement.Remaining = newQuantity

	b.removeFromBook(old)
	delete(b.orders, orderID)

	// Only DAY/GTC orders ever rest, so the replay cannot hit the FOK
	// precheck.
	trades, err := b.AddOrder(replacement)
	if err != nil {
		panic(fmt.Sprintf("orderbook %s: replace replay rejected: %v", b.symbol, err))
	}
	return trades
}

// BestBid returns the highest resting bid price.
func (b *OrderBook) BestBid() (Price, bool) {
	level, ok := b.bids.Min()
	if !ok {
		return InvalidPrice, false
	}
	return level.price, true
}

// BestAsk returns the lowest resting ask price.
func (b *OrderBook) BestAsk() (Price, bool) {
	level, ok := b.asks.Min()
	if !ok {
		return InvalidPrice, false
	}
	return level.price, true
}

func (b *OrderBook) TopOfBook(ts Timestamp) TopOfBook {
	tob := TopOfBook{
		Symbol:    b.symbol,
		BestBid:   InvalidPrice,
		BestAsk:   InvalidPrice,
		Timestamp: ts,
	}
	if level, ok := b.bids.Min(); ok {
		tob.BestBid = level.price
		tob.BidSize = level.queue.totalQuantity()
	}
	if level, ok := b.asks.Min(); ok {
		tob.BestAsk = level.price
		tob.AskSize = level.queue.totalQuantity()
	}
	return tob
}

// DepthSnapshot aggregates the top depthLevels levels per side, best first.
func (b *OrderBook) DepthSnapshot(depthLevels int, ts Timestamp) DepthSnapshot {
	snapshot := DepthSnapshot{
		Symbol:         b.symbol,
		Timestamp:      ts,
		SequenceNumber: b.tradeCount,
	}
	snapshot.Bids = collectLevels(b.bids, depthLevels)
	snapshot.Asks = collectLevels(b.asks, depthLevels)
	return snapshot
}

func collectLevels(levels *priceLevels, depthLevels int) []PriceLevel {
	out := make([]PriceLevel, 0, depthLevels)
	levels.Scan(func(level *priceLevel) bool {
		if len(out) >= depthLevels {
			return false
		}
		out = append(out, PriceLevel{
			Price:      level.price,
			Quantity:   level.queue.totalQuantity(),
			OrderCount: uint32(level.queue.orderCount()),
		})
		return true
	})
	return out
}

// FindOrder returns a copy of the resting order, if any.
func (b *OrderBook) FindOrder(orderID OrderID) (Order, bool) {
	order, ok := b.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *order, true
}

func (b *OrderBook) ActiveOrderCount() int { return len(b.orders) }
func (b *OrderBook) BidLevelCount() int    { return b.bids.Len() }
func (b *OrderBook) AskLevelCount() int    { return b.asks.Len() }

// Stats reports the current book shape. Max depth is the largest level
// quantity currently resting, not a historical maximum.
func (b *OrderBook) Stats() SymbolStats {
	stats := SymbolStats{
		ActiveOrders: uint64(len(b.orders)),
		BidLevels:    uint64(b.bids.Len()),
		AskLevels:    uint64(b.asks.Len()),
		TradeVolume:  b.totalVolume,
		TradeCount:   b.tradeCount,
		BestBid:      InvalidPrice,
		BestAsk:      InvalidPrice,
	}
	if bid, ok := b.BestBid(); ok {
		stats.BestBid = bid
	}
	if ask, ok := b.BestAsk(); ok {
		stats.BestAsk = ask
	}
	b.bids.Scan(func(level *priceLevel) bool {
		stats.MaxBidDepth = max(stats.MaxBidDepth, level.queue.totalQuantity())
		return true
	})
	b.asks.Scan(func(level *priceLevel) bool {
		stats.MaxAskDepth = max(stats.MaxAskDepth, level.queue.totalQuantity())
		return true
	})
	return stats
}

// --- Matching ---------------------------------------------------------------

// match sweeps the opposite side best level first, FIFO within a level,
// until the incoming order is exhausted or no eligible liquidity remains.
// Limit orders stop at their limit price; market orders take any price.
func (b *OrderBook) match(incoming *Order, ts Timestamp) []TradeEvent {
	var trades []TradeEvent

	opp := b.asks
	if incoming.IsSell() {
		opp = b.bids
	}

	for incoming.Remaining > 0 {
		level, ok := opp.MinMut()
		if !ok {
			break
		}
		if incoming.IsLimit() && !crosses(incoming, level.price) {
			break
		}

		queue := &level.queue
		for incoming.Remaining > 0 && !queue.empty() {
			resting := queue.front()

			if b.wouldSelfTrade(incoming, resting) {
				b.applySTP(incoming, resting, queue)
				continue
			}

			qty := min(incoming.Remaining, resting.Remaining)
			trades = append(trades, b.newTrade(incoming, resting, qty, level.price, ts))

			incoming.Remaining -= qty
			resting.Remaining -= qty
			queue.reduce(qty)

			b.tradeCount++
			b.totalVolume += qty

			if resting.Remaining == 0 {
				queue.popFront()
				delete(b.orders, resting.OrderID)
			}
		}

		if queue.empty() {
			opp.Delete(level)
			continue
		}
		// Level not consumed with quantity left over only happens when
		// STP halted the incoming order.
		break
	}

	return trades
}

func crosses(incoming *Order, restingPrice Price) bool {
	if incoming.IsBuy() {
		return incoming.Price >= restingPrice
	}
	return incoming.Price <= restingPrice
}

func (b *OrderBook) wouldSelfTrade(incoming, resting *Order) bool {
	if b.stp == STPNone {
		return false
	}
	return incoming.TraderID == resting.TraderID && incoming.TraderID != InvalidTraderID
}

// applySTP resolves one prospective self-trade pair. Never records a trade.
func (b *OrderBook) applySTP(incoming, resting *Order, queue *priceLevelQueue) {
	switch b.stp {
	case STPCancelIncoming:
		incoming.Remaining = 0
	case STPCancelResting:
		queue.removeOrder(resting)
		delete(b.orders, resting.OrderID)
	case STPCancelBoth:
		incoming.Remaining = 0
		queue.removeOrder(resting)
		delete(b.orders, resting.OrderID)
	}
}

// fokFillable walks the opposite side exactly the way match would, totalling
// the quantity available to this order. STP is modelled: a pair that would
// halt matching halts the walk, a resting order that would be cancelled
// contributes nothing.
func (b *OrderBook) fokFillable(incoming *Order) bool {
	needed := incoming.Remaining

	opp := b.asks
	if incoming.IsSell() {
		opp = b.bids
	}

	var available Quantity
	opp.Scan(func(level *priceLevel) bool {
		if incoming.IsLimit() && !crosses(incoming, level.price) {
			return false
		}
		for _, resting := range level.queue.orders {
			if b.wouldSelfTrade(incoming, resting) {
				switch b.stp {
				case STPCancelIncoming, STPCancelBoth:
					// Matching would halt on this pair.
					return false
				case STPCancelResting:
					continue
				}
			}
			available += resting.Remaining
			if available >= needed {
				return false
			}
		}
		return true
	})

	return available >= needed
}

func (b *OrderBook) addToBook(order *Order) {
	levels := b.bids
	if order.IsSell() {
		levels = b.asks
	}
	probe := &priceLevel{price: order.Price}
	if level, ok := levels.GetMut(probe); ok {
		level.queue.addOrder(order)
		return
	}
	probe.queue.addOrder(order)
	levels.Set(probe)
}

func (b *OrderBook) removeFromBook(order *Order) {
	levels := b.bids
	if order.IsSell() {
		levels = b.asks
	}
	probe := &priceLevel{price: order.Price}
	level, ok := levels.GetMut(probe)
	if !ok {
		return
	}
	level.queue.removeOrder(order)
	if level.queue.empty() {
		levels.Delete(probe)
	}
}

func (b *OrderBook) newTrade(aggressive, passive *Order, qty Quantity, price Price, ts Timestamp) TradeEvent {
	trade := TradeEvent{
		TradeID:           b.nextTradeID,
		Symbol:            b.symbol,
		Price:             price,
		Quantity:          qty,
		AggressorSide:     aggressive.Side,
		AggressiveOrderID: aggressive.OrderID,
		PassiveOrderID:    passive.OrderID,
		AggressiveTrader:  aggressive.TraderID,
		PassiveTrader:     passive.TraderID,
		Timestamp:         ts,
	}
	b.nextTradeID++
	return trade
}

// CheckInvariants verifies the structural invariants that must hold after
// every accepted mutation. Used by the validator and tests; a non-nil error
// here is a programming error in the book.
func (b *OrderBook) CheckInvariants() error {
	bestBid, bidOk := b.BestBid()
	bestAsk, askOk := b.BestAsk()
	if bidOk && askOk && bestBid >= bestAsk {
		return fmt.Errorf("book %s crossed: best bid %d >= best ask %d", b.symbol, bestBid, bestAsk)
	}

	indexed := 0
	var err error
	check := func(side Side, levels *priceLevels) {
		levels.Scan(func(level *priceLevel) bool {
			if level.queue.empty() {
				err = fmt.Errorf("book %s: empty %s level at %d retained", b.symbol, side, level.price)
				return false
			}
			var total Quantity
			var lastArrival Timestamp
			for i, order := range level.queue.orders {
				if order.Side != side || order.Price != level.price {
					err = fmt.Errorf("book %s: order %d misplaced at %s level %d", b.symbol, order.OrderID, side, level.price)
					return false
				}
				if order.Remaining == 0 {
					err = fmt.Errorf("book %s: order %d resting with zero quantity", b.symbol, order.OrderID)
					return false
				}
				if indexedOrder, ok := b.orders[order.OrderID]; !ok || indexedOrder != order {
					err = fmt.Errorf("book %s: order %d not in index", b.symbol, order.OrderID)
					return false
				}
				if i > 0 && order.Timestamp < lastArrival {
					err = fmt.Errorf("book %s: level %d breaks arrival order at order %d", b.symbol, level.price, order.OrderID)
					return false
				}
				lastArrival = order.Timestamp
				total += order.Remaining
				indexed++
			}
			if total != level.queue.totalQuantity() {
				err = fmt.Errorf("book %s: level %d cached total %d != %d", b.symbol, level.price, level.queue.totalQuantity(), total)
				return false
			}
			return true
		})
	}
	check(Buy, b.bids)
	if err != nil {
		return err
	}
	check(Sell, b.asks)
	if err != nil {
		return err
	}

	if indexed != len(b.orders) {
		return fmt.Errorf("book %s: index holds %d orders, levels hold %d", b.symbol, len(b.orders), indexed)
	}
	return nil
}
