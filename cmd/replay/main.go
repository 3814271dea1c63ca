// Command replay drives the matching engine from a CSV intent file and
// prints what the run produced. Intended for deterministic re-runs of
// captured order flow.
//
// CSV columns: action,order_id,trader_id,symbol,side,type,price,quantity,tif
// where action is NEW, CANCEL or REPLACE. CANCEL uses order_id+symbol only;
// REPLACE reads the new price and quantity from the price/quantity columns.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	. "mjolnir/internal/common"
	"mjolnir/internal/engine"
	"mjolnir/internal/feed"
)

type config struct {
	File          string `env:"REPLAY_FILE,required"`
	Deterministic bool   `env:"REPLAY_DETERMINISTIC" envDefault:"true"`
	STPPolicy     string `env:"REPLAY_STP" envDefault:"CANCEL_INCOMING"`
	DepthLevels   int    `env:"REPLAY_DEPTH" envDefault:"5"`
	QueueCapacity int    `env:"REPLAY_QUEUE_CAPACITY" envDefault:"65536"`
}

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	_ = godotenv.Load()
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("unable to parse config")
	}

	stp, err := parseSTP(cfg.STPPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to parse stp policy")
	}

	eng := engine.NewWithClock(cfg.Deterministic, &CounterClock{})
	defer func() {
		if err := eng.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close event log")
		}
	}()

	publisher := feed.NewMarketDataPublisher(cfg.QueueCapacity)
	publisher.Start(func(event TradeEvent) {
		log.Debug().
			Uint64("trade_id", event.TradeID).
			Str("symbol", event.Symbol).
			Int64("price", event.Price).
			Uint64("quantity", event.Quantity).
			Msg("trade published")
	})
	defer publisher.Stop()
	eng.AddListener(feed.NewTradeFeedListener(publisher))

	if err := replay(ctx, eng, cfg, stp); err != nil {
		_ = eng.Close() // Fatal skips the deferred close.
		log.Fatal().Err(err).Msg("replay failed")
	}

	report(eng, cfg)
}

func replay(ctx context.Context, eng *engine.MatchingEngine, cfg config, stp STPPolicy) error {
	f, err := os.Open(cfg.File)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	line := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read replay file: %w", err)
		}
		line++
		if line == 1 && strings.EqualFold(row[0], "action") {
			continue // header row
		}

		if err := apply(eng, row, stp); err != nil {
			log.Warn().Err(err).Int("line", line).Msg("skipping bad row")
		}
	}

	log.Info().Int("intents", line).Str("file", cfg.File).Msg("replay complete")
	return nil
}

func apply(eng *engine.MatchingEngine, row []string, stp STPPolicy) error {
	if len(row) < 4 {
		return fmt.Errorf("row too short: %d fields", len(row))
	}

	orderID, err := strconv.ParseUint(row[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad order id %q: %w", row[1], err)
	}
	symbol := row[3]
	ensureSymbol(eng, symbol, stp)

	switch strings.ToUpper(row[0]) {
	case "NEW":
		if len(row) < 9 {
			return fmt.Errorf("new order row too short: %d fields", len(row))
		}
		traderID, err := strconv.ParseUint(row[2], 10, 64)
		if err != nil {
			return fmt.Errorf("bad trader id %q: %w", row[2], err)
		}
		price, err := strconv.ParseInt(row[6], 10, 64)
		if err != nil {
			return fmt.Errorf("bad price %q: %w", row[6], err)
		}
		quantity, err := strconv.ParseUint(row[7], 10, 64)
		if err != nil {
			return fmt.Errorf("bad quantity %q: %w", row[7], err)
		}
		side, orderType, tif, err := parseOrderKind(row[4], row[5], row[8])
		if err != nil {
			return err
		}
		response := eng.HandleNewOrder(NewOrderRequest{
			OrderID:     orderID,
			TraderID:    traderID,
			Symbol:      symbol,
			Side:        side,
			OrderType:   orderType,
			Price:       price,
			Quantity:    quantity,
			TimeInForce: tif,
		})
		logResponse("new", response)

	case "CANCEL":
		response := eng.HandleCancel(CancelRequest{OrderID: orderID, Symbol: symbol})
		logResponse("cancel", response)

	case "REPLACE":
		if len(row) < 8 {
			return fmt.Errorf("replace row too short: %d fields", len(row))
		}
		price, err := strconv.ParseInt(row[6], 10, 64)
		if err != nil {
			return fmt.Errorf("bad price %q: %w", row[6], err)
		}
		quantity, err := strconv.ParseUint(row[7], 10, 64)
		if err != nil {
			return fmt.Errorf("bad quantity %q: %w", row[7], err)
		}
		response := eng.HandleReplace(ReplaceRequest{
			OrderID:     orderID,
			Symbol:      symbol,
			NewPrice:    price,
			NewQuantity: quantity,
		})
		logResponse("replace", response)

	default:
		return fmt.Errorf("unknown action %q", row[0])
	}
	return nil
}

func ensureSymbol(eng *engine.MatchingEngine, symbol string, stp STPPolicy) {
	if eng.HasSymbol(symbol) {
		return
	}
	eng.AddSymbol(SymbolConfig{
		Symbol:      symbol,
		TickSize:    1,
		LotSize:     1,
		MinQuantity: 1,
		STPPolicy:   stp,
	})
}

func logResponse(action string, response OrderResponse) {
	event := log.Debug().
		Str("action", action).
		Uint64("order_id", response.OrderID).
		Str("result", response.Result.String())
	if len(response.Trades) > 0 {
		event = event.Int("trades", len(response.Trades))
	}
	event.Msg("intent handled")
}

func report(eng *engine.MatchingEngine, cfg config) {
	snapshot := eng.Telemetry().Export()
	log.Info().
		Uint64("processed", snapshot.OrdersProcessed).
		Uint64("accepted", snapshot.OrdersAccepted).
		Uint64("rejected", snapshot.OrdersRejected).
		Uint64("cancelled", snapshot.OrdersCancelled).
		Uint64("trades", snapshot.TotalTrades).
		Dur("avg_latency", snapshot.AvgLatency).
		Msg("run summary")

	for symbol := range snapshot.Symbols {
		tob := eng.TopOfBook(symbol, 0)
		depth := eng.DepthSnapshot(symbol, cfg.DepthLevels, 0)
		log.Info().
			Str("symbol", symbol).
			Int64("best_bid", tob.BestBid).
			Int64("best_ask", tob.BestAsk).
			Uint64("bid_size", tob.BidSize).
			Uint64("ask_size", tob.AskSize).
			Int("bid_levels", len(depth.Bids)).
			Int("ask_levels", len(depth.Asks)).
			Msg("final book")
	}
}

func parseSTP(s string) (STPPolicy, error) {
	switch strings.ToUpper(s) {
	case "NONE":
		return STPNone, nil
	case "CANCEL_INCOMING":
		return STPCancelIncoming, nil
	case "CANCEL_RESTING":
		return STPCancelResting, nil
	case "CANCEL_BOTH":
		return STPCancelBoth, nil
	default:
		return STPNone, fmt.Errorf("unknown stp policy %q", s)
	}
}

func parseOrderKind(side, orderType, tif string) (Side, OrderType, TimeInForce, error) {
	var s Side
	switch strings.ToUpper(side) {
	case "BUY":
		s = Buy
	case "SELL":
		s = Sell
	default:
		return s, 0, 0, fmt.Errorf("unknown side %q", side)
	}

	var t OrderType
	switch strings.ToUpper(orderType) {
	case "LIMIT":
		t = LimitOrder
	case "MARKET":
		t = MarketOrder
	default:
		return s, t, 0, fmt.Errorf("unknown order type %q", orderType)
	}

	var f TimeInForce
	switch strings.ToUpper(tif) {
	case "DAY", "":
		f = Day
	case "IOC":
		f = IOC
	case "FOK":
		f = FOK
	case "GTC":
		f = GTC
	default:
		return s, t, f, fmt.Errorf("unknown time in force %q", tif)
	}

	return s, t, f, nil
}
