package mexc

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/valyala/fastjson"

	"github.com/arbtrader/mexc-bingx-arb/internal/exchange"
	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

const (
	readTimeout     = 90 * time.Second
	writeTimeout    = 10 * time.Second
	snapshotBufSize = 64
)

// SubscribeOrderBook starts a restartable depth stream for symbol. MEXC's
// WebSocket gateway requires a manual PING/PONG heartbeat (§4.2) in
// addition to the transport-level ping frames gorilla/websocket handles.
func (a *Adapter) SubscribeOrderBook(ctx context.Context, symbol string, depth int) (<-chan types.OrderBookSnapshot, error) {
	out := make(chan types.OrderBookSnapshot, snapshotBufSize)

	go func() {
		defer close(out)
		_ = exchange.RunWithReconnect(ctx, a.logger, "mexc-depth", func(ctx context.Context, attempt int) error {
			endpoint := a.ws[attempt%len(a.ws)]
			return a.connectAndStream(ctx, endpoint, symbol, depth, out)
		})
	}()

	return out, nil
}

func (a *Adapter) connectAndStream(ctx context.Context, endpoint, symbol string, depth int, out chan<- types.OrderBookSnapshot) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	channel := fmt.Sprintf("spot@public.limit.depth.v3.api@%s@%d", toVenueSymbol(symbol), depth)
	sub := fmt.Sprintf(`{"method":"SUBSCRIPTION","params":["%s"]}`, channel)
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(sub)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	a.logger.Info("mexc depth stream connected", "symbol", symbol, "depth", depth)

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go a.pingLoop(pingCtx, conn)

	var lastUpdateID uint64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		if len(msg) > 0 && msg[0] == '{' {
			snap, updateID, ok, err := decodeDepthFrame(symbol, msg)
			if err != nil {
				a.logger.Warn("discarding undecodable depth frame", "error", err)
				continue
			}
			if !ok {
				continue // control/ack frame, nothing to publish
			}
			if updateID < lastUpdateID {
				a.logger.Warn("discarding out-of-order depth frame",
					"last_update_id", lastUpdateID, "frame_update_id", updateID)
				continue
			}
			if snap.IsCrossed() {
				a.logger.Warn("discarding crossed book", "symbol", symbol, "update_id", updateID)
				continue
			}
			lastUpdateID = updateID
			select {
			case out <- snap:
			default:
				a.logger.Warn("depth channel full, dropping snapshot")
			}
			continue
		}

		// Non-JSON frames are MEXC's length-prefixed binary aggregate-deals
		// records; decoded for informational trade-tape logging only — the
		// arbitrage engine never consumes trade prints, only depth.
		if deal, err := decodeAggregateDealsFrame(msg); err == nil {
			a.logger.Debug("aggregate deal", "price", deal.Price, "qty", deal.Quantity, "side", deal.Side)
		}
	}
}

func (a *Adapter) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(a.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"method":"PING"}`)); err != nil {
				a.logger.Warn("mexc ping failed", "error", err)
				return
			}
		}
	}
}

// decodeDepthFrame parses a MEXC depth push message with fastjson — a
// zero-allocation hot-path decoder, since this runs on every tick of a
// high-frequency book stream.
func decodeDepthFrame(symbol string, msg []byte) (snap types.OrderBookSnapshot, updateID uint64, ok bool, err error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(msg)
	if err != nil {
		return types.OrderBookSnapshot{}, 0, false, err
	}

	data := v.Get("d")
	if data == nil {
		return types.OrderBookSnapshot{}, 0, false, nil // subscription ack or ping response
	}

	updateID = uint64(data.GetInt64("r"))

	bids, err := parseFastjsonLevels(data.GetArray("bids"))
	if err != nil {
		return types.OrderBookSnapshot{}, 0, false, err
	}
	asks, err := parseFastjsonLevels(data.GetArray("asks"))
	if err != nil {
		return types.OrderBookSnapshot{}, 0, false, err
	}

	return types.OrderBookSnapshot{
		Symbol:     symbol,
		Venue:      types.MEXC,
		Bids:       bids,
		Asks:       asks,
		UpdateID:   updateID,
		CapturedAt: time.Now(),
	}, updateID, true, nil
}

func parseFastjsonLevels(raw []*fastjson.Value) ([]types.PriceLevel, error) {
	levels := make([]types.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		priceStr := string(lvl.GetStringBytes("p"))
		qtyStr := string(lvl.GetStringBytes("v"))

		price, err := decimalFromString(priceStr)
		if err != nil {
			return nil, err
		}
		qty, err := decimalFromString(qtyStr)
		if err != nil {
			return nil, err
		}
		if qty.IsZero() {
			continue
		}
		levels = append(levels, types.PriceLevel{Price: price, Size: qty})
	}
	return levels, nil
}
