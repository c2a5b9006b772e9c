package bingx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/valyala/fastjson"

	"github.com/arbtrader/mexc-bingx-arb/internal/exchange"
	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

const (
	readTimeout     = 90 * time.Second
	writeTimeout    = 10 * time.Second
	snapshotBufSize = 64
)

// SubscribeOrderBook starts a restartable depth stream for symbol. BingX
// frames arrive gzip-compressed; unlike MEXC, BingX relies on the
// transport's native keepalive rather than a manual application-level
// ping (§4.2).
func (a *Adapter) SubscribeOrderBook(ctx context.Context, symbol string, depth int) (<-chan types.OrderBookSnapshot, error) {
	out := make(chan types.OrderBookSnapshot, snapshotBufSize)

	go func() {
		defer close(out)
		_ = exchange.RunWithReconnect(ctx, a.logger, "bingx-depth", func(ctx context.Context, attempt int) error {
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

	channel := fmt.Sprintf("%s@depth%d", toVenueSymbol(symbol), depth)
	sub := fmt.Sprintf(`{"id":"%s","reqType":"sub","dataType":"%s"}`, newClientOrderID(), channel)
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(sub)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	a.logger.Info("bingx depth stream connected", "symbol", symbol, "depth", depth)

	var lastUpdateID uint64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		msg, err := decompressFrame(msgType, raw)
		if err != nil {
			a.logger.Warn("discarding undecompressable frame", "error", err)
			continue
		}

		// BingX expects the literal text "Ping" echoed back as "Pong".
		if string(msg) == "Ping" {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteMessage(websocket.TextMessage, []byte("Pong"))
			continue
		}

		snap, updateID, ok, err := decodeDepthFrame(symbol, msg)
		if err != nil {
			a.logger.Warn("discarding undecodable depth frame", "error", err)
			continue
		}
		if !ok {
			continue // subscription ack, nothing to publish
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
	}
}

// decompressFrame gunzips a binary WS frame. BingX sends every market-data
// push gzip-compressed regardless of frame type; text frames pass through
// unchanged.
func decompressFrame(msgType int, raw []byte) ([]byte, error) {
	if msgType != websocket.BinaryMessage {
		return raw, nil
	}

	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("new gzip reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	return data, nil
}

// decodeDepthFrame parses a BingX depth push message with fastjson — a
// zero-allocation hot-path decoder for a high-frequency book stream.
func decodeDepthFrame(symbol string, msg []byte) (snap types.OrderBookSnapshot, updateID uint64, ok bool, err error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(msg)
	if err != nil {
		return types.OrderBookSnapshot{}, 0, false, err
	}

	data := v.Get("data")
	if data == nil {
		return types.OrderBookSnapshot{}, 0, false, nil
	}

	updateID = uint64(v.GetInt64("ts"))

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
		Venue:      types.BingX,
		Bids:       bids,
		Asks:       asks,
		UpdateID:   updateID,
		CapturedAt: time.Now(),
	}, updateID, true, nil
}

func parseFastjsonLevels(raw []*fastjson.Value) ([]types.PriceLevel, error) {
	levels := make([]types.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		arr, err := lvl.Array()
		if err != nil || len(arr) != 2 {
			continue
		}
		price, err := decimalFromFastjson(arr[0])
		if err != nil {
			return nil, err
		}
		qty, err := decimalFromFastjson(arr[1])
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
