package engine

import (
	"fmt"
	"strings"

	. "mjolnir/internal/common"
)

// ValidationResult collects mismatches between the optimized and reference
// books for one step.
type ValidationResult struct {
	Passed     bool
	Mismatches []string
}

func (r *ValidationResult) addMismatch(format string, args ...any) {
	r.Passed = false
	r.Mismatches = append(r.Mismatches, fmt.Sprintf(format, args...))
}

func (r ValidationResult) Summary() string {
	if r.Passed {
		return "PASSED"
	}
	var sb strings.Builder
	sb.WriteString("FAILED:\n")
	for _, m := range r.Mismatches {
		sb.WriteString("  - ")
		sb.WriteString(m)
		sb.WriteString("\n")
	}
	return sb.String()
}

// EngineValidator drives the optimized book and the reference book with the
// same intents and compares everything observable after each step. It is the
// oracle that defines matching correctness.
type EngineValidator struct {
	optimized *OrderBook
	reference *ReferenceOrderBook
}

func NewEngineValidator(symbol string, stp STPPolicy, clock Clock) *EngineValidator {
	return &EngineValidator{
		optimized: NewOrderBook(symbol, stp, clock),
		reference: NewReferenceOrderBook(symbol, stp, clock),
	}
}

func (v *EngineValidator) Optimized() *OrderBook          { return v.optimized }
func (v *EngineValidator) Reference() *ReferenceOrderBook { return v.reference }

func (v *EngineValidator) AddOrder(order Order) ValidationResult {
	result := ValidationResult{Passed: true}

	optTrades, optErr := v.optimized.AddOrder(order)
	refTrades, refErr := v.reference.AddOrder(order)

	if (optErr == nil) != (refErr == nil) {
		result.addMismatch("add error mismatch: optimized=%v, reference=%v", optErr, refErr)
		return result
	}

	v.compareTrades(optTrades, refTrades, &result)
	v.compareBooks(&result)
	return result
}

func (v *EngineValidator) CancelOrder(orderID OrderID) ValidationResult {
	result := ValidationResult{Passed: true}

	optCancelled := v.optimized.CancelOrder(orderID)
	refCancelled := v.reference.CancelOrder(orderID)

	if optCancelled != refCancelled {
		result.addMismatch("cancel result mismatch: optimized=%v, reference=%v",
			optCancelled, refCancelled)
	}

	v.compareBooks(&result)
	return result
}

func (v *EngineValidator) ReplaceOrder(orderID OrderID, newPrice Price, newQuantity Quantity) ValidationResult {
	result := ValidationResult{Passed: true}

	optTrades := v.optimized.ReplaceOrder(orderID, newPrice, newQuantity)
	refTrades := v.reference.ReplaceOrder(orderID, newPrice, newQuantity)

	v.compareTrades(optTrades, refTrades, &result)
	v.compareBooks(&result)
	return result
}

// CompareStates does a standalone comparison of the two books.
func (v *EngineValidator) CompareStates() ValidationResult {
	result := ValidationResult{Passed: true}
	v.compareBooks(&result)
	v.compareDepth(&result)
	return result
}

// compareTrades checks the deterministic trade fields; timestamps differ by
// construction (each book reads the clock independently) and are excluded.
func (v *EngineValidator) compareTrades(opt, ref []TradeEvent, result *ValidationResult) {
	if len(opt) != len(ref) {
		result.addMismatch("trade count mismatch: optimized=%d, reference=%d", len(opt), len(ref))
		return
	}
	for i := range opt {
		o, r := opt[i], ref[i]
		if o.TradeID != r.TradeID {
			result.addMismatch("trade %d trade_id mismatch: %d != %d", i, o.TradeID, r.TradeID)
		}
		if o.Price != r.Price {
			result.addMismatch("trade %d price mismatch: %d != %d", i, o.Price, r.Price)
		}
		if o.Quantity != r.Quantity {
			result.addMismatch("trade %d quantity mismatch: %d != %d", i, o.Quantity, r.Quantity)
		}
		if o.AggressorSide != r.AggressorSide {
			result.addMismatch("trade %d aggressor side mismatch: %s != %s", i, o.AggressorSide, r.AggressorSide)
		}
		if o.AggressiveOrderID != r.AggressiveOrderID {
			result.addMismatch("trade %d aggressive order id mismatch: %d != %d", i, o.AggressiveOrderID, r.AggressiveOrderID)
		}
		if o.PassiveOrderID != r.PassiveOrderID {
			result.addMismatch("trade %d passive order id mismatch: %d != %d", i, o.PassiveOrderID, r.PassiveOrderID)
		}
	}
}

func (v *EngineValidator) compareBooks(result *ValidationResult) {
	optBid, optBidOk := v.optimized.BestBid()
	refBid, refBidOk := v.reference.BestBid()
	if optBidOk != refBidOk || (optBidOk && optBid != refBid) {
		result.addMismatch("best bid mismatch: optimized=%s, reference=%s",
			formatPrice(optBid, optBidOk), formatPrice(refBid, refBidOk))
	}

	optAsk, optAskOk := v.optimized.BestAsk()
	refAsk, refAskOk := v.reference.BestAsk()
	if optAskOk != refAskOk || (optAskOk && optAsk != refAsk) {
		result.addMismatch("best ask mismatch: optimized=%s, reference=%s",
			formatPrice(optAsk, optAskOk), formatPrice(refAsk, refAskOk))
	}

	if opt, ref := v.optimized.ActiveOrderCount(), v.reference.ActiveOrderCount(); opt != ref {
		result.addMismatch("active order count mismatch: optimized=%d, reference=%d", opt, ref)
	}

	if err := v.optimized.CheckInvariants(); err != nil {
		result.addMismatch("optimized book invariant violation: %v", err)
	}
}

// compareDepth checks every level both books report, deep enough to cover
// the whole book. Order counts are compared too: the reference aggregates
// them the same way the level queues do.
func (v *EngineValidator) compareDepth(result *ValidationResult) {
	const allLevels = 1 << 20

	opt := v.optimized.DepthSnapshot(allLevels, 0)
	ref := v.reference.DepthSnapshot(allLevels, 0)

	compareSide := func(name string, opt, ref []PriceLevel) {
		if len(opt) != len(ref) {
			result.addMismatch("%s level count mismatch: optimized=%d, reference=%d",
				name, len(opt), len(ref))
			return
		}
		for i := range opt {
			if opt[i].Price != ref[i].Price || opt[i].Quantity != ref[i].Quantity ||
				opt[i].OrderCount != ref[i].OrderCount {
				result.addMismatch("%s level %d mismatch: optimized=%+v, reference=%+v",
					name, i, opt[i], ref[i])
			}
		}
	}
	compareSide("bid", opt.Bids, ref.Bids)
	compareSide("ask", opt.Asks, ref.Asks)
}

func formatPrice(p Price, ok bool) string {
	if !ok {
		return "NONE"
	}
	return fmt.Sprintf("%d", p)
}
