package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "mjolnir/internal/common"
	"mjolnir/internal/eventlog"
)

// --- Setup & Helpers --------------------------------------------------------

func newTestEngine(stp STPPolicy) *MatchingEngine {
	eng := NewWithClock(false, &CounterClock{})
	eng.AddSymbol(SymbolConfig{
		Symbol:      "TEST",
		TickSize:    1,
		LotSize:     1,
		MinQuantity: 1,
		STPPolicy:   stp,
	})
	return eng
}

func newOrder(id OrderID, trader TraderID, side Side, price Price, qty Quantity) NewOrderRequest {
	return NewOrderRequest{
		OrderID:   id,
		TraderID:  trader,
		Symbol:    "TEST",
		Side:      side,
		OrderType: LimitOrder,
		Price:     price,
		Quantity:  qty,
	}
}

// recordingListener captures every callback in emission order.
type recordingListener struct {
	ListenerBase
	events []string
	trades []TradeEvent
}

func (l *recordingListener) OnOrderAccepted(OrderAcceptedEvent) {
	l.events = append(l.events, "accepted")
}

func (l *recordingListener) OnOrderRejected(OrderRejectedEvent) {
	l.events = append(l.events, "rejected")
}

func (l *recordingListener) OnOrderCancelled(OrderCancelledEvent) {
	l.events = append(l.events, "cancelled")
}

func (l *recordingListener) OnOrderReplaced(OrderReplacedEvent) {
	l.events = append(l.events, "replaced")
}

func (l *recordingListener) OnTrade(event TradeEvent) {
	l.events = append(l.events, "trade")
	l.trades = append(l.trades, event)
}

// --- Symbol registration -----------------------------------------------------

func TestAddSymbol(t *testing.T) {
	eng := NewWithClock(false, &CounterClock{})

	valid := SymbolConfig{Symbol: "ABC", TickSize: 1, LotSize: 1, MinQuantity: 1}
	assert.True(t, eng.AddSymbol(valid))
	assert.False(t, eng.AddSymbol(valid), "duplicate registration rejected")
	assert.True(t, eng.HasSymbol("ABC"))

	assert.False(t, eng.AddSymbol(SymbolConfig{Symbol: "", TickSize: 1, LotSize: 1, MinQuantity: 1}))
	assert.False(t, eng.AddSymbol(SymbolConfig{Symbol: "BAD", TickSize: 0, LotSize: 1, MinQuantity: 1}))
}

// --- End-to-end scenarios ----------------------------------------------------

func TestScenario_SimpleCross(t *testing.T) {
	eng := newTestEngine(STPNone)

	eng.HandleNewOrder(newOrder(1, 100, Sell, 10000, 100))
	response := eng.HandleNewOrder(newOrder(2, 101, Buy, 10000, 100))

	require.Equal(t, Success, response.Result)
	require.Len(t, response.Trades, 1)
	trade := response.Trades[0]
	assert.Equal(t, Price(10000), trade.Price)
	assert.Equal(t, Quantity(100), trade.Quantity)
	assert.Equal(t, Buy, trade.AggressorSide)
	assert.Equal(t, OrderID(2), trade.AggressiveOrderID)
	assert.Equal(t, OrderID(1), trade.PassiveOrderID)

	tob := eng.TopOfBook("TEST", 0)
	assert.Equal(t, InvalidPrice, tob.BestBid)
	assert.Equal(t, InvalidPrice, tob.BestAsk)
	assert.Equal(t, 0, eng.Book("TEST").ActiveOrderCount())
}

func TestScenario_PartialFillRests(t *testing.T) {
	eng := newTestEngine(STPNone)

	eng.HandleNewOrder(newOrder(1, 100, Sell, 10000, 100))
	response := eng.HandleNewOrder(newOrder(2, 101, Buy, 10000, 40))

	require.Len(t, response.Trades, 1)
	assert.Equal(t, Quantity(40), response.Trades[0].Quantity)

	tob := eng.TopOfBook("TEST", 0)
	assert.Equal(t, Price(10000), tob.BestAsk)
	assert.Equal(t, Quantity(60), tob.AskSize)
	assert.Equal(t, 1, eng.Book("TEST").ActiveOrderCount())
}

func TestScenario_MarketOrder(t *testing.T) {
	eng := newTestEngine(STPNone)

	eng.HandleNewOrder(newOrder(1, 100, Sell, 10000, 100))

	request := newOrder(2, 101, Buy, 0, 50)
	request.OrderType = MarketOrder
	response := eng.HandleNewOrder(request)

	require.Equal(t, Success, response.Result)
	require.Len(t, response.Trades, 1)
	assert.Equal(t, Quantity(50), response.Trades[0].Quantity)
	assert.Equal(t, Price(10000), response.Trades[0].Price)

	tob := eng.TopOfBook("TEST", 0)
	assert.Equal(t, Price(10000), tob.BestAsk)
	assert.Equal(t, Quantity(50), tob.AskSize)
}

func TestScenario_IOCResidualDropped(t *testing.T) {
	eng := newTestEngine(STPNone)

	eng.HandleNewOrder(newOrder(1, 100, Sell, 10000, 100))

	request := newOrder(2, 101, Buy, 10000, 150)
	request.TimeInForce = IOC
	response := eng.HandleNewOrder(request)

	require.Len(t, response.Trades, 1)
	assert.Equal(t, Quantity(100), response.Trades[0].Quantity)
	assert.Equal(t, 0, eng.Book("TEST").ActiveOrderCount())
}

func TestScenario_STPCancelIncoming(t *testing.T) {
	eng := newTestEngine(STPCancelIncoming)

	eng.HandleNewOrder(newOrder(1, 42, Sell, 10000, 100))
	response := eng.HandleNewOrder(newOrder(2, 42, Buy, 10000, 100))

	require.Equal(t, Success, response.Result)
	assert.Empty(t, response.Trades)

	resting, ok := eng.Book("TEST").FindOrder(1)
	require.True(t, ok)
	assert.Equal(t, Quantity(100), resting.Remaining)
}

func TestScenario_CancelUnknown(t *testing.T) {
	eng := newTestEngine(STPNone)

	eng.HandleNewOrder(newOrder(1, 100, Sell, 10000, 100))
	response := eng.HandleCancel(CancelRequest{OrderID: 999, Symbol: "TEST"})

	assert.Equal(t, RejectedOrderNotFound, response.Result)
	assert.Empty(t, response.Cancels, "no cancelled event for an unknown id")
}

func TestScenario_ReplaceLosesPriority(t *testing.T) {
	eng := newTestEngine(STPNone)

	eng.HandleNewOrder(newOrder(1, 1, Buy, 10000, 100)) // A
	eng.HandleNewOrder(newOrder(2, 2, Buy, 10000, 50))  // B

	replace := eng.HandleReplace(ReplaceRequest{
		OrderID:     1,
		Symbol:      "TEST",
		NewPrice:    10000,
		NewQuantity: 80,
	})
	require.Equal(t, Success, replace.Result)
	require.Len(t, replace.Replaces, 1)
	assert.Equal(t, OrderID(1), replace.Replaces[0].NewOrderID, "replacement keeps its id")

	response := eng.HandleNewOrder(newOrder(10, 9, Sell, 10000, 200))
	require.Len(t, response.Trades, 2)
	assert.Equal(t, OrderID(2), response.Trades[0].PassiveOrderID, "B fills first")
	assert.Equal(t, OrderID(1), response.Trades[1].PassiveOrderID, "replaced A lost priority")
}

// --- Validation & rejection --------------------------------------------------

func TestHandleNewOrder_Validation(t *testing.T) {
	eng := newTestEngine(STPNone)

	cases := []struct {
		name    string
		request NewOrderRequest
		want    ResultCode
	}{
		{"unknown symbol", NewOrderRequest{OrderID: 1, Symbol: "NOPE", OrderType: LimitOrder, Price: 100, Quantity: 10}, RejectedInvalidSymbol},
		{"zero price limit", newOrder(2, 1, Buy, 0, 10), RejectedInvalidPrice},
		{"negative price limit", newOrder(3, 1, Buy, -5, 10), RejectedInvalidPrice},
		{"zero quantity", newOrder(4, 1, Buy, 100, 0), RejectedInvalidQuantity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			response := eng.HandleNewOrder(tc.request)
			assert.Equal(t, tc.want, response.Result)
			require.Len(t, response.Rejects, 1)
			assert.Equal(t, tc.want, response.Rejects[0].Reason)
			assert.Empty(t, response.Accepts)
			assert.Empty(t, response.Trades)
		})
	}

	assert.Equal(t, 0, eng.Book("TEST").ActiveOrderCount(), "rejections never touch the book")
}

func TestHandleReplace_Validation(t *testing.T) {
	eng := newTestEngine(STPNone)
	eng.HandleNewOrder(newOrder(1, 1, Buy, 100, 50))

	response := eng.HandleReplace(ReplaceRequest{OrderID: 1, Symbol: "TEST", NewPrice: 0, NewQuantity: 50})
	assert.Equal(t, RejectedInvalidPrice, response.Result)

	response = eng.HandleReplace(ReplaceRequest{OrderID: 1, Symbol: "TEST", NewPrice: 100, NewQuantity: 0})
	assert.Equal(t, RejectedInvalidQuantity, response.Result)

	resting, ok := eng.Book("TEST").FindOrder(1)
	require.True(t, ok)
	assert.Equal(t, Quantity(50), resting.Remaining, "failed replace leaves the order alone")
}

func TestHandleNewOrder_FOKRejection(t *testing.T) {
	eng := newTestEngine(STPNone)

	eng.HandleNewOrder(newOrder(1, 100, Sell, 10000, 50))

	request := newOrder(2, 101, Buy, 10000, 80)
	request.TimeInForce = FOK
	response := eng.HandleNewOrder(request)

	assert.Equal(t, RejectedFOKNotFillable, response.Result)
	require.Len(t, response.Rejects, 1)
	assert.Equal(t, RejectedFOKNotFillable, response.Rejects[0].Reason)
	assert.Empty(t, response.Trades)

	resting, ok := eng.Book("TEST").FindOrder(1)
	require.True(t, ok)
	assert.Equal(t, Quantity(50), resting.Remaining)
}

// --- Event plumbing ----------------------------------------------------------

func TestListener_EventOrdering(t *testing.T) {
	eng := newTestEngine(STPNone)
	listener := &recordingListener{}
	eng.AddListener(listener)

	eng.HandleNewOrder(newOrder(1, 100, Sell, 10000, 100))
	eng.HandleNewOrder(newOrder(2, 101, Buy, 10000, 40))
	eng.HandleCancel(CancelRequest{OrderID: 1, Symbol: "TEST"})

	assert.Equal(t, []string{"accepted", "accepted", "trade", "cancelled"}, listener.events,
		"accepted precedes the trades it caused")
}

func TestSequenceNumbers_StrictlyIncreasing(t *testing.T) {
	eng := newTestEngine(STPNone)
	listener := &recordingListener{}
	eng.AddListener(listener)

	r1 := eng.HandleNewOrder(newOrder(1, 100, Sell, 10000, 100))
	r2 := eng.HandleNewOrder(newOrder(2, 101, Buy, 10000, 100))

	var seqs []uint64
	seqs = append(seqs, r1.Accepts[0].SequenceNumber)
	seqs = append(seqs, r2.Accepts[0].SequenceNumber)
	seqs = append(seqs, r2.Trades[0].SequenceNumber)

	for i := 1; i < len(seqs); i++ {
		assert.Greater(t, seqs[i], seqs[i-1])
	}
	assert.Equal(t, uint64(1), seqs[0], "sequence numbers start at 1")
}

func TestCancel_RemainingQuantityReported(t *testing.T) {
	eng := newTestEngine(STPNone)

	eng.HandleNewOrder(newOrder(1, 100, Sell, 10000, 100))
	eng.HandleNewOrder(newOrder(2, 101, Buy, 10000, 40))

	response := eng.HandleCancel(CancelRequest{OrderID: 1, Symbol: "TEST"})
	require.Equal(t, Success, response.Result)
	require.Len(t, response.Cancels, 1)
	assert.Equal(t, Quantity(60), response.Cancels[0].Remaining)
}

func TestDeterministicRun_LogReadableAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	eng := NewWithClock(false, &CounterClock{})
	eng.EventLog().SetLogPath(path)
	eng.EventLog().SetDeterministic(true)
	eng.AddSymbol(SymbolConfig{Symbol: "TEST", TickSize: 1, LotSize: 1, MinQuantity: 1})

	eng.HandleNewOrder(newOrder(1, 100, Sell, 10000, 100))
	eng.HandleNewOrder(newOrder(2, 101, Buy, 10000, 100))
	require.NoError(t, eng.Close())

	// Everything buffered during the run must be on disk after Close.
	entries, err := eventlog.LoadLog(path)
	require.NoError(t, err)
	require.Len(t, entries, 6)
	assert.Equal(t, eventlog.TypeRun, entries[0].Type)
	assert.Equal(t, eventlog.TypeNewOrder, entries[1].Type)
	assert.Equal(t, eventlog.TypeOrderAccepted, entries[2].Type)
	assert.Equal(t, eventlog.TypeNewOrder, entries[3].Type)
	assert.Equal(t, eventlog.TypeOrderAccepted, entries[4].Type)
	assert.Equal(t, eventlog.TypeTrade, entries[5].Type)
}

// funcListener is deliberately non-comparable (func field, value receiver).
type funcListener struct {
	ListenerBase
	fn func(TradeEvent)
}

func (l funcListener) OnTrade(event TradeEvent) { l.fn(event) }

func TestRemoveListener_NonComparableListener(t *testing.T) {
	eng := newTestEngine(STPNone)
	eng.AddListener(funcListener{fn: func(TradeEvent) {}})

	assert.NotPanics(t, func() {
		eng.RemoveListener(funcListener{fn: func(TradeEvent) {}})
	})
}

func TestRemoveListener(t *testing.T) {
	eng := newTestEngine(STPNone)
	listener := &recordingListener{}
	eng.AddListener(listener)
	eng.RemoveListener(listener)

	eng.HandleNewOrder(newOrder(1, 100, Sell, 10000, 100))
	assert.Empty(t, listener.events)
}

// --- Tape & telemetry integration --------------------------------------------

func TestEngine_TapeRecordsTrades(t *testing.T) {
	eng := newTestEngine(STPNone)

	eng.HandleNewOrder(newOrder(1, 100, Sell, 10000, 100))
	eng.HandleNewOrder(newOrder(2, 101, Buy, 10000, 60))
	eng.HandleNewOrder(newOrder(3, 102, Buy, 10000, 40))

	trades := eng.RecentTrades("TEST", 10)
	require.Len(t, trades, 2)
	assert.Equal(t, TradeID(1), trades[0].TradeID)
	assert.Equal(t, TradeID(2), trades[1].TradeID)

	assert.Nil(t, eng.RecentTrades("NOPE", 10))
}

func TestEngine_TelemetryCounters(t *testing.T) {
	eng := newTestEngine(STPNone)

	eng.HandleNewOrder(newOrder(1, 100, Sell, 10000, 100))
	eng.HandleNewOrder(newOrder(2, 101, Buy, 10000, 100))
	eng.HandleNewOrder(newOrder(3, 101, Buy, 0, 10)) // rejected
	eng.HandleCancel(CancelRequest{OrderID: 999, Symbol: "TEST"})

	telemetry := eng.Telemetry()
	assert.Equal(t, uint64(4), telemetry.OrdersProcessed())
	assert.Equal(t, uint64(2), telemetry.OrdersAccepted())
	assert.Equal(t, uint64(1), telemetry.OrdersRejected())
	assert.Equal(t, uint64(1), telemetry.TotalTrades())

	stats, ok := telemetry.SymbolStats("TEST")
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.TradeCount)
	assert.Equal(t, uint64(100), stats.TradeVolume)
}

func TestEngine_DepthSnapshotQuery(t *testing.T) {
	eng := newTestEngine(STPNone)

	eng.HandleNewOrder(newOrder(1, 1, Buy, 99, 10))
	eng.HandleNewOrder(newOrder(2, 2, Sell, 101, 20))

	snapshot := eng.DepthSnapshot("TEST", 5, 0)
	require.Len(t, snapshot.Bids, 1)
	require.Len(t, snapshot.Asks, 1)
	assert.NotZero(t, snapshot.Timestamp, "zero request timestamp is replaced by the clock")

	assert.Empty(t, eng.DepthSnapshot("NOPE", 5, 0).Bids)
}
