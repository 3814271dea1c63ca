package common

// Fundamental scalar types shared by every layer of the engine. Prices are
// fixed-point tick counts, never floats; timestamps are monotonic nanoseconds
// so ordering comparisons are meaningful across a run.
type (
	OrderID   = uint64
	TraderID  = uint64
	TradeID   = uint64
	Price     = int64
	Quantity  = uint64
	Timestamp = uint64
)

// Sentinel values. A zero order/trader id means "anonymous" and is never
// assigned to a real order.
const (
	InvalidPrice    Price    = -1
	InvalidQuantity Quantity = 0
	InvalidOrderID  OrderID  = 0
	InvalidTraderID TraderID = 0
)

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

type OrderType uint8

const (
	// Limit orders execute at the given price or better and may rest on
	// the book until filled.
	LimitOrder OrderType = iota
	// Market orders execute immediately against whatever resting prices
	// exist. They never rest; any residual is dropped.
	MarketOrder
)

func (t OrderType) String() string {
	if t == LimitOrder {
		return "LIMIT"
	}
	return "MARKET"
}

type TimeInForce uint8

const (
	Day TimeInForce = iota // good for day
	IOC                    // immediate or cancel
	FOK                    // fill or kill
	GTC                    // good till cancelled
	GTD                    // good till date, reserved
)

func (t TimeInForce) String() string {
	switch t {
	case Day:
		return "DAY"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case GTC:
		return "GTC"
	case GTD:
		return "GTD"
	default:
		return "UNKNOWN"
	}
}

// STPPolicy selects what happens when an incoming order would trade against
// a resting order from the same trader.
type STPPolicy uint8

const (
	STPNone           STPPolicy = iota // match proceeds
	STPCancelIncoming                  // incoming stops matching
	STPCancelResting                   // resting order is removed
	STPCancelBoth                      // both are removed
)

func (p STPPolicy) String() string {
	switch p {
	case STPNone:
		return "NONE"
	case STPCancelIncoming:
		return "CANCEL_INCOMING"
	case STPCancelResting:
		return "CANCEL_RESTING"
	case STPCancelBoth:
		return "CANCEL_BOTH"
	default:
		return "UNKNOWN"
	}
}

// ResultCode classifies the outcome of an intent. Anything other than
// Success is carried on the rejection path.
type ResultCode uint8

const (
	Success                 ResultCode = 0
	RejectedInvalidSymbol   ResultCode = 1
	RejectedInvalidPrice    ResultCode = 2
	RejectedInvalidQuantity ResultCode = 3
	RejectedOrderNotFound   ResultCode = 4
	RejectedSelfTrade       ResultCode = 5
	RejectedFOKNotFillable  ResultCode = 6
	RejectedRiskLimit       ResultCode = 7
	RejectedUnknownError    ResultCode = 255
)

func (c ResultCode) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case RejectedInvalidSymbol:
		return "REJECTED_INVALID_SYMBOL"
	case RejectedInvalidPrice:
		return "REJECTED_INVALID_PRICE"
	case RejectedInvalidQuantity:
		return "REJECTED_INVALID_QUANTITY"
	case RejectedOrderNotFound:
		return "REJECTED_ORDER_NOT_FOUND"
	case RejectedSelfTrade:
		return "REJECTED_SELF_TRADE"
	case RejectedFOKNotFillable:
		return "REJECTED_FOK_NOT_FILLABLE"
	case RejectedRiskLimit:
		return "REJECTED_RISK_LIMIT"
	default:
		return "REJECTED_UNKNOWN_ERROR"
	}
}
