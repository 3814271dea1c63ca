// Package telemetry collects process-wide counters, latency aggregates and
// per-symbol book snapshots.
package telemetry

import (
	"math"
	"time"

	. "mjolnir/internal/common"
)

// Telemetry is owned by the engine and mutated on the intent-handling
// goroutine only.
type Telemetry struct {
	ordersProcessed uint64
	ordersAccepted  uint64
	ordersRejected  uint64
	ordersCancelled uint64
	totalTrades     uint64

	latency LatencyStats

	symbols map[string]SymbolStats
}

// LatencyStats aggregates per-intent handling times in nanoseconds.
type LatencyStats struct {
	Count uint64
	Sum   uint64
	Min   uint64
	Max   uint64
}

func (s *LatencyStats) observe(ns uint64) {
	s.Count++
	s.Sum += ns
	if ns < s.Min {
		s.Min = ns
	}
	if ns > s.Max {
		s.Max = ns
	}
}

func (s LatencyStats) Avg() uint64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / s.Count
}

// Snapshot is a point-in-time copy of every metric, safe to hand outward.
type Snapshot struct {
	OrdersProcessed uint64
	OrdersAccepted  uint64
	OrdersRejected  uint64
	OrdersCancelled uint64
	TotalTrades     uint64

	LatencyCount uint64
	MinLatency   time.Duration
	MaxLatency   time.Duration
	AvgLatency   time.Duration

	Symbols map[string]SymbolStats
}

func New() *Telemetry {
	return &Telemetry{
		latency: LatencyStats{Min: math.MaxUint64},
		symbols: make(map[string]SymbolStats),
	}
}

func (t *Telemetry) RecordOrderProcessed() { t.ordersProcessed++ }
func (t *Telemetry) RecordOrderAccepted()  { t.ordersAccepted++ }
func (t *Telemetry) RecordOrderRejected()  { t.ordersRejected++ }
func (t *Telemetry) RecordOrderCancelled() { t.ordersCancelled++ }

// RecordTrade counts one match. Per-symbol volume comes from the book via
// UpdateSymbolStats, so only the global counter moves here.
func (t *Telemetry) RecordTrade(symbol string, quantity Quantity) {
	t.totalTrades++
}

func (t *Telemetry) RecordLatency(ns uint64) { t.latency.observe(ns) }

// UpdateSymbolStats replaces the cached snapshot the book reported after its
// latest mutation.
func (t *Telemetry) UpdateSymbolStats(symbol string, stats SymbolStats) {
	t.symbols[symbol] = stats
}

func (t *Telemetry) OrdersProcessed() uint64 { return t.ordersProcessed }
func (t *Telemetry) OrdersAccepted() uint64  { return t.ordersAccepted }
func (t *Telemetry) OrdersRejected() uint64  { return t.ordersRejected }
func (t *Telemetry) OrdersCancelled() uint64 { return t.ordersCancelled }
func (t *Telemetry) TotalTrades() uint64     { return t.totalTrades }

func (t *Telemetry) AvgLatencyNs() uint64 { return t.latency.Avg() }
func (t *Telemetry) MaxLatencyNs() uint64 { return t.latency.Max }

func (t *Telemetry) MinLatencyNs() uint64 {
	if t.latency.Count == 0 {
		return 0
	}
	return t.latency.Min
}

func (t *Telemetry) SymbolStats(symbol string) (SymbolStats, bool) {
	stats, ok := t.symbols[symbol]
	return stats, ok
}

// Export builds a Snapshot of everything, including a copy of the per-symbol
// map.
func (t *Telemetry) Export() Snapshot {
	snapshot := Snapshot{
		OrdersProcessed: t.ordersProcessed,
		OrdersAccepted:  t.ordersAccepted,
		OrdersRejected:  t.ordersRejected,
		OrdersCancelled: t.ordersCancelled,
		TotalTrades:     t.totalTrades,
		LatencyCount:    t.latency.Count,
		MinLatency:      time.Duration(t.MinLatencyNs()),
		MaxLatency:      time.Duration(t.latency.Max),
		AvgLatency:      time.Duration(t.latency.Avg()),
		Symbols:         make(map[string]SymbolStats, len(t.symbols)),
	}
	for symbol, stats := range t.symbols {
		snapshot.Symbols[symbol] = stats
	}
	return snapshot
}

// Reset zeros every counter and forgets all symbol snapshots.
func (t *Telemetry) Reset() {
	*t = Telemetry{
		latency: LatencyStats{Min: math.MaxUint64},
		symbols: make(map[string]SymbolStats),
	}
}

// EstimateMemoryBytes approximates the telemetry footprint, dominated by the
// per-symbol map.
func (t *Telemetry) EstimateMemoryBytes() int {
	const perEntry = 128 // key header + SymbolStats + bucket overhead
	return 64 + len(t.symbols)*perEntry
}
