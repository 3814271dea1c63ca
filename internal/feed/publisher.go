package feed

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	. "mjolnir/internal/common"
)

const (
	// DefaultQueueCapacity matches a few seconds of worst-case trade flow.
	DefaultQueueCapacity = 65536

	// idleSleep is how long the consumer naps when the ring is empty.
	idleSleep = 10 * time.Microsecond
)

// Callback consumes trade events on the publisher goroutine.
type Callback func(event TradeEvent)

// MarketDataPublisher drains trade events from the engine goroutine to a
// consumer callback over the SPSC ring. The engine is the only producer and
// the publisher goroutine the only consumer. Overflow never blocks the
// engine; overflowed events are counted as dropped and detectable downstream
// by sequence-number gaps.
type MarketDataPublisher struct {
	ring *Ring[TradeEvent]
	t    *tomb.Tomb

	running   atomic.Bool
	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewMarketDataPublisher(queueCapacity int) *MarketDataPublisher {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	return &MarketDataPublisher{
		ring: NewRing[TradeEvent](queueCapacity),
	}
}

// Start spawns the publisher goroutine. Repeated starts are no-ops while
// running.
func (p *MarketDataPublisher) Start(callback Callback) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.t = &tomb.Tomb{}
	p.t.Go(func() error {
		p.loop(callback)
		return nil
	})
	log.Info().Int("capacity", p.ring.Cap()).Msg("market data publisher started")
}

// Stop signals the publisher goroutine, waits for it, and guarantees every
// event enqueued before Stop was delivered.
func (p *MarketDataPublisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.t.Kill(nil)
	if err := p.t.Wait(); err != nil {
		log.Error().Err(err).Msg("market data publisher exited with error")
	}
	log.Info().
		Uint64("published", p.published.Load()).
		Uint64("dropped", p.dropped.Load()).
		Msg("market data publisher stopped")
}

// PublishTrade enqueues without blocking. Returns false, counting a drop,
// when the publisher is stopped or the ring is full.
func (p *MarketDataPublisher) PublishTrade(event TradeEvent) bool {
	if !p.running.Load() {
		p.dropped.Add(1)
		return false
	}
	if !p.ring.TryEnqueue(event) {
		p.dropped.Add(1)
		return false
	}
	p.published.Add(1)
	return true
}

func (p *MarketDataPublisher) EventsPublished() uint64 { return p.published.Load() }
func (p *MarketDataPublisher) EventsDropped() uint64   { return p.dropped.Load() }
func (p *MarketDataPublisher) Running() bool           { return p.running.Load() }

func (p *MarketDataPublisher) loop(callback Callback) {
	for {
		select {
		case <-p.t.Dying():
			// Drain whatever the producer managed to enqueue.
			for {
				event, ok := p.ring.TryDequeue()
				if !ok {
					return
				}
				callback(event)
			}
		default:
			if event, ok := p.ring.TryDequeue(); ok {
				callback(event)
			} else {
				time.Sleep(idleSleep)
			}
		}
	}
}

// TradeFeedListener adapts the publisher to the engine's listener contract,
// forwarding trades into the ring and ignoring lifecycle events.
type TradeFeedListener struct {
	publisher *MarketDataPublisher
}

func NewTradeFeedListener(publisher *MarketDataPublisher) *TradeFeedListener {
	return &TradeFeedListener{publisher: publisher}
}

func (l *TradeFeedListener) OnOrderAccepted(OrderAcceptedEvent)   {}
func (l *TradeFeedListener) OnOrderRejected(OrderRejectedEvent)   {}
func (l *TradeFeedListener) OnOrderCancelled(OrderCancelledEvent) {}
func (l *TradeFeedListener) OnOrderReplaced(OrderReplacedEvent)   {}
func (l *TradeFeedListener) OnBookUpdate(BookUpdateEvent)         {}

func (l *TradeFeedListener) OnTrade(event TradeEvent) {
	l.publisher.PublishTrade(event)
}
