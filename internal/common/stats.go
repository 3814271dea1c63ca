package common

// SymbolStats is the per-symbol snapshot a book reports after each mutation.
// Max depth figures describe the current book state, not a historical high.
type SymbolStats struct {
	ActiveOrders uint64 `json:"active_orders"`
	BidLevels    uint64 `json:"bid_levels"`
	AskLevels    uint64 `json:"ask_levels"`
	TradeVolume  uint64 `json:"trade_volume"`
	TradeCount   uint64 `json:"trade_count"`
	MaxBidDepth  uint64 `json:"max_bid_depth"`
	MaxAskDepth  uint64 `json:"max_ask_depth"`
	BestBid      Price  `json:"best_bid"`
	BestAsk      Price  `json:"best_ask"`
}
