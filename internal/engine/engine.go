package engine

import (
	"errors"
	"reflect"
	"time"

	"github.com/rs/zerolog/log"

	. "mjolnir/internal/common"
	"mjolnir/internal/eventlog"
	"mjolnir/internal/tape"
	"mjolnir/internal/telemetry"
)

// DefaultLogPath is where deterministic runs write their event log.
const DefaultLogPath = "logs/events.log"

// MatchingEngine is the multi-symbol facade. It validates intents, routes
// them to the owning book and fans the resulting events out to listeners,
// the trade tape, telemetry and the event log.
//
// The engine does not synchronise: all intent handling must be serialized by
// the caller.
type MatchingEngine struct {
	configs map[string]SymbolConfig
	books   map[string]*OrderBook
	tapes   map[string]*tape.TradeTape

	listeners []Listener

	eventLog  *eventlog.EventLog
	telemetry *telemetry.Telemetry

	clock Clock
	seq   uint64
}

// New builds an engine on the monotonic clock. In deterministic mode every
// inbound intent and outbound event is journalled to DefaultLogPath.
func New(deterministic bool) *MatchingEngine {
	return NewWithClock(deterministic, NewMonotonicClock())
}

// NewWithClock is New with an injected time source, for replay and tests.
func NewWithClock(deterministic bool, clock Clock) *MatchingEngine {
	path := ""
	if deterministic {
		path = DefaultLogPath
	}
	return &MatchingEngine{
		configs:   make(map[string]SymbolConfig),
		books:     make(map[string]*OrderBook),
		tapes:     make(map[string]*tape.TradeTape),
		eventLog:  eventlog.New(path, deterministic, clock),
		telemetry: telemetry.New(),
		clock:     clock,
	}
}

// AddSymbol registers an instrument. Returns false if the config is invalid
// or the symbol is already registered.
func (e *MatchingEngine) AddSymbol(config SymbolConfig) bool {
	if !config.Valid() {
		log.Warn().Str("symbol", config.Symbol).Msg("rejecting invalid symbol config")
		return false
	}
	if _, exists := e.configs[config.Symbol]; exists {
		return false
	}

	e.configs[config.Symbol] = config
	e.books[config.Symbol] = NewOrderBook(config.Symbol, config.STPPolicy, e.clock)
	e.tapes[config.Symbol] = tape.NewTradeTape(tape.DefaultMaxHistory)

	log.Info().
		Str("symbol", config.Symbol).
		Int64("tick_size", config.TickSize).
		Str("stp", config.STPPolicy.String()).
		Msg("symbol registered")
	return true
}

func (e *MatchingEngine) HasSymbol(symbol string) bool {
	_, ok := e.configs[symbol]
	return ok
}

// HandleNewOrder processes a new-order intent. Exactly one of an accepted or
// rejected event is emitted, followed by trades in match order.
func (e *MatchingEngine) HandleNewOrder(request NewOrderRequest) OrderResponse {
	start := time.Now()
	defer e.recordLatency(start)

	e.telemetry.RecordOrderProcessed()
	e.eventLog.LogNewOrder(request)

	response := OrderResponse{OrderID: request.OrderID}

	if code := e.validateNewOrder(request); code != Success {
		e.reject(&response, request.OrderID, request.Symbol, code)
		return response
	}

	book := e.books[request.Symbol]
	trades, err := book.AddOrder(request.Order())
	if errors.Is(err, ErrFOKNotFillable) {
		e.reject(&response, request.OrderID, request.Symbol, RejectedFOKNotFillable)
		return response
	}

	e.telemetry.RecordOrderAccepted()
	accept := OrderAcceptedEvent{
		OrderID:        request.OrderID,
		Symbol:         request.Symbol,
		Side:           request.Side,
		Price:          request.Price,
		Quantity:       request.Quantity,
		Timestamp:      e.clock.Now(),
		SequenceNumber: e.nextSeq(),
	}
	response.Accepts = append(response.Accepts, accept)
	e.notifyOrderAccepted(accept)
	e.eventLog.LogAccepted(accept)

	e.emitTrades(&response, trades)

	e.telemetry.UpdateSymbolStats(request.Symbol, book.Stats())

	response.Result = Success
	return response
}

// HandleCancel processes a cancel intent. A cancel of an unknown or already
// filled id completes with RejectedOrderNotFound and no cancelled event.
func (e *MatchingEngine) HandleCancel(request CancelRequest) OrderResponse {
	start := time.Now()
	defer e.recordLatency(start)

	e.telemetry.RecordOrderProcessed()
	e.eventLog.LogCancel(request)

	response := OrderResponse{OrderID: request.OrderID}

	if code := e.validateCancel(request); code != Success {
		e.reject(&response, request.OrderID, request.Symbol, code)
		return response
	}

	book := e.books[request.Symbol]
	remaining := Quantity(0)
	if resting, ok := book.FindOrder(request.OrderID); ok {
		remaining = resting.Remaining
	}

	if !book.CancelOrder(request.OrderID) {
		response.Result = RejectedOrderNotFound
		response.Message = "Order not found"
		return response
	}

	e.telemetry.RecordOrderCancelled()
	cancelled := OrderCancelledEvent{
		OrderID:        request.OrderID,
		Symbol:         request.Symbol,
		Remaining:      remaining,
		Timestamp:      e.clock.Now(),
		SequenceNumber: e.nextSeq(),
	}
	response.Cancels = append(response.Cancels, cancelled)
	e.notifyOrderCancelled(cancelled)
	e.eventLog.LogCancelled(cancelled)

	e.telemetry.UpdateSymbolStats(request.Symbol, book.Stats())

	response.Result = Success
	return response
}

// HandleReplace cancels the resting order and replays a fresh one with the
// new price and quantity. The replacement keeps its order id but loses queue
// priority.
func (e *MatchingEngine) HandleReplace(request ReplaceRequest) OrderResponse {
	start := time.Now()
	defer e.recordLatency(start)

	e.telemetry.RecordOrderProcessed()
	e.eventLog.LogReplace(request)

	response := OrderResponse{OrderID: request.OrderID}

	if code := e.validateReplace(request); code != Success {
		e.reject(&response, request.OrderID, request.Symbol, code)
		return response
	}

	book := e.books[request.Symbol]
	trades := book.ReplaceOrder(request.OrderID, request.NewPrice, request.NewQuantity)

	replaced := OrderReplacedEvent{
		OldOrderID:     request.OrderID,
		NewOrderID:     request.OrderID,
		Symbol:         request.Symbol,
		NewPrice:       request.NewPrice,
		NewQuantity:    request.NewQuantity,
		Timestamp:      e.clock.Now(),
		SequenceNumber: e.nextSeq(),
	}
	response.Replaces = append(response.Replaces, replaced)
	e.notifyOrderReplaced(replaced)
	e.eventLog.LogReplaced(replaced)

	e.emitTrades(&response, trades)

	e.telemetry.UpdateSymbolStats(request.Symbol, book.Stats())

	response.Result = Success
	return response
}

// --- Queries ----------------------------------------------------------------

// TopOfBook returns the current best bid/ask for the symbol. A zero
// timestamp means "stamp with the engine clock".
func (e *MatchingEngine) TopOfBook(symbol string, ts Timestamp) TopOfBook {
	book, ok := e.books[symbol]
	if !ok {
		return TopOfBook{BestBid: InvalidPrice, BestAsk: InvalidPrice}
	}
	if ts == 0 {
		ts = e.clock.Now()
	}
	return book.TopOfBook(ts)
}

func (e *MatchingEngine) DepthSnapshot(symbol string, depthLevels int, ts Timestamp) DepthSnapshot {
	book, ok := e.books[symbol]
	if !ok {
		return DepthSnapshot{}
	}
	if ts == 0 {
		ts = e.clock.Now()
	}
	return book.DepthSnapshot(depthLevels, ts)
}

func (e *MatchingEngine) RecentTrades(symbol string, maxCount int) []TradeEvent {
	t, ok := e.tapes[symbol]
	if !ok {
		return nil
	}
	return t.RecentTrades(maxCount)
}

func (e *MatchingEngine) Tape(symbol string) *tape.TradeTape { return e.tapes[symbol] }

func (e *MatchingEngine) Telemetry() *telemetry.Telemetry { return e.telemetry }

func (e *MatchingEngine) EventLog() *eventlog.EventLog { return e.eventLog }

// Close flushes and closes the event log. Deterministic runs must Close (or
// defer it) or buffered log records never reach disk.
func (e *MatchingEngine) Close() error { return e.eventLog.Close() }

func (e *MatchingEngine) Deterministic() bool { return e.eventLog.Deterministic() }

// Book exposes the per-symbol book for tests and validation tooling.
func (e *MatchingEngine) Book(symbol string) *OrderBook { return e.books[symbol] }

// --- Listeners --------------------------------------------------------------

func (e *MatchingEngine) AddListener(listener Listener) {
	e.listeners = append(e.listeners, listener)
}

// RemoveListener drops a previously added listener. Listeners are matched by
// identity, so register a pointer if you intend to remove it later; a
// non-comparable listener is left in place.
func (e *MatchingEngine) RemoveListener(listener Listener) {
	if t := reflect.TypeOf(listener); t == nil || !t.Comparable() {
		return
	}
	for i, l := range e.listeners {
		if l == listener {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

// --- Internals --------------------------------------------------------------

func (e *MatchingEngine) validateNewOrder(request NewOrderRequest) ResultCode {
	if !e.HasSymbol(request.Symbol) {
		return RejectedInvalidSymbol
	}
	if request.OrderType == LimitOrder && request.Price <= 0 {
		return RejectedInvalidPrice
	}
	if request.Quantity == 0 {
		return RejectedInvalidQuantity
	}
	return Success
}

func (e *MatchingEngine) validateCancel(request CancelRequest) ResultCode {
	if !e.HasSymbol(request.Symbol) {
		return RejectedInvalidSymbol
	}
	return Success
}

func (e *MatchingEngine) validateReplace(request ReplaceRequest) ResultCode {
	if !e.HasSymbol(request.Symbol) {
		return RejectedInvalidSymbol
	}
	if request.NewPrice <= 0 {
		return RejectedInvalidPrice
	}
	if request.NewQuantity == 0 {
		return RejectedInvalidQuantity
	}
	return Success
}

// reject fills the rejection path shared by all three intents.
func (e *MatchingEngine) reject(response *OrderResponse, orderID OrderID, symbol string, code ResultCode) {
	e.telemetry.RecordOrderRejected()

	response.Result = code
	response.Message = code.String()

	event := OrderRejectedEvent{
		OrderID:        orderID,
		Symbol:         symbol,
		Reason:         code,
		Message:        response.Message,
		Timestamp:      e.clock.Now(),
		SequenceNumber: e.nextSeq(),
	}
	response.Rejects = append(response.Rejects, event)
	e.notifyOrderRejected(event)
	e.eventLog.LogRejected(event)

	log.Debug().
		Uint64("order_id", orderID).
		Str("symbol", symbol).
		Str("reason", code.String()).
		Msg("intent rejected")
}

// emitTrades stamps engine sequence numbers onto book trades and fans them
// out, in match order.
func (e *MatchingEngine) emitTrades(response *OrderResponse, trades []TradeEvent) {
	for _, trade := range trades {
		trade.SequenceNumber = e.nextSeq()
		response.Trades = append(response.Trades, trade)

		e.telemetry.RecordTrade(trade.Symbol, trade.Quantity)
		e.tapes[trade.Symbol].AddTrade(trade)

		e.notifyTrade(trade)
		e.eventLog.LogTrade(trade)
	}
}

func (e *MatchingEngine) recordLatency(start time.Time) {
	e.telemetry.RecordLatency(uint64(time.Since(start).Nanoseconds()))
}

// nextSeq hands out engine-wide sequence numbers, strictly increasing and
// never reused.
func (e *MatchingEngine) nextSeq() uint64 {
	e.seq++
	return e.seq
}

func (e *MatchingEngine) notifyOrderAccepted(event OrderAcceptedEvent) {
	for _, l := range e.listeners {
		l.OnOrderAccepted(event)
	}
}

func (e *MatchingEngine) notifyOrderRejected(event OrderRejectedEvent) {
	for _, l := range e.listeners {
		l.OnOrderRejected(event)
	}
}

func (e *MatchingEngine) notifyOrderCancelled(event OrderCancelledEvent) {
	for _, l := range e.listeners {
		l.OnOrderCancelled(event)
	}
}

func (e *MatchingEngine) notifyOrderReplaced(event OrderReplacedEvent) {
	for _, l := range e.listeners {
		l.OnOrderReplaced(event)
	}
}

func (e *MatchingEngine) notifyTrade(event TradeEvent) {
	for _, l := range e.listeners {
		l.OnTrade(event)
	}
}
