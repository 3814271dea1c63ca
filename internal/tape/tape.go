// Package tape keeps the recent trade history for one symbol.
package tape

import (
	"encoding/csv"
	"strconv"
	"strings"

	. "mjolnir/internal/common"
)

// DefaultMaxHistory is how many trades a tape retains unless told otherwise.
const DefaultMaxHistory = 10000

// TradeTape is a bounded ring of the most recent trades. When the cap is
// exceeded the oldest trade is dropped. Not safe for concurrent use; the
// engine owns it.
type TradeTape struct {
	trades     []TradeEvent
	maxHistory int
}

func NewTradeTape(maxHistory int) *TradeTape {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &TradeTape{maxHistory: maxHistory}
}

func (t *TradeTape) AddTrade(trade TradeEvent) {
	t.trades = append(t.trades, trade)
	if len(t.trades) > t.maxHistory {
		overflow := len(t.trades) - t.maxHistory
		t.trades = append(t.trades[:0], t.trades[overflow:]...)
	}
}

// RecentTrades returns up to maxCount of the newest trades, oldest first.
func (t *TradeTape) RecentTrades(maxCount int) []TradeEvent {
	if maxCount <= 0 || len(t.trades) == 0 {
		return nil
	}
	count := min(maxCount, len(t.trades))
	out := make([]TradeEvent, count)
	copy(out, t.trades[len(t.trades)-count:])
	return out
}

// All returns the whole tape, oldest first. The slice is the tape's own
// storage; callers must not mutate it.
func (t *TradeTape) All() []TradeEvent { return t.trades }

func (t *TradeTape) Clear() { t.trades = t.trades[:0] }

func (t *TradeTape) Size() int { return len(t.trades) }

// CSV renders the tape with a header row, one trade per line.
func (t *TradeTape) CSV() string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write([]string{
		"trade_id", "symbol", "timestamp", "price", "quantity", "side",
		"aggressive_order_id", "passive_order_id",
		"aggressive_trader_id", "passive_trader_id",
	})
	for _, trade := range t.trades {
		_ = w.Write([]string{
			strconv.FormatUint(trade.TradeID, 10),
			trade.Symbol,
			strconv.FormatUint(trade.Timestamp, 10),
			strconv.FormatInt(trade.Price, 10),
			strconv.FormatUint(trade.Quantity, 10),
			trade.AggressorSide.String(),
			strconv.FormatUint(trade.AggressiveOrderID, 10),
			strconv.FormatUint(trade.PassiveOrderID, 10),
			strconv.FormatUint(trade.AggressiveTrader, 10),
			strconv.FormatUint(trade.PassiveTrader, 10),
		})
	}
	w.Flush()
	return sb.String()
}
