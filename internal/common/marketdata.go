package common

// PriceLevel is one aggregated row of a depth snapshot.
type PriceLevel struct {
	Price      Price    `json:"price"`
	Quantity   Quantity `json:"quantity"`
	OrderCount uint32   `json:"order_count"`
}

// TopOfBook is the best bid/ask and their aggregate sizes at one moment.
// Missing sides carry InvalidPrice and zero size.
type TopOfBook struct {
	Symbol    string    `json:"symbol"`
	BestBid   Price     `json:"best_bid"`
	BestAsk   Price     `json:"best_ask"`
	BidSize   Quantity  `json:"bid_size"`
	AskSize   Quantity  `json:"ask_size"`
	Timestamp Timestamp `json:"timestamp"`
}

// MidPrice is the tick-truncated midpoint, or InvalidPrice if either side
// is missing.
func (t TopOfBook) MidPrice() Price {
	if t.BestBid == InvalidPrice || t.BestAsk == InvalidPrice {
		return InvalidPrice
	}
	return (t.BestBid + t.BestAsk) / 2
}

func (t TopOfBook) Spread() Price {
	if t.BestBid == InvalidPrice || t.BestAsk == InvalidPrice {
		return InvalidPrice
	}
	return t.BestAsk - t.BestBid
}

// DepthSnapshot is the top-N levels per side. Bids are ordered best (highest)
// first, asks best (lowest) first.
type DepthSnapshot struct {
	Symbol         string       `json:"symbol"`
	Bids           []PriceLevel `json:"bids"`
	Asks           []PriceLevel `json:"asks"`
	Timestamp      Timestamp    `json:"timestamp"`
	SequenceNumber uint64       `json:"sequence_number"`
}
