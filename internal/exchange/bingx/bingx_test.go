package bingx

import (
	"bytes"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
)

func TestToVenueSymbolPassThrough(t *testing.T) {
	t.Parallel()
	if got := toVenueSymbol("BTC-USDC"); got != "BTC-USDC" {
		t.Errorf("toVenueSymbol = %q, want BTC-USDC (pass-through)", got)
	}
}

func TestDecompressFrameTextPassThrough(t *testing.T) {
	t.Parallel()
	out, err := decompressFrame(websocket.TextMessage, []byte("Ping"))
	if err != nil {
		t.Fatalf("decompressFrame: %v", err)
	}
	if string(out) != "Ping" {
		t.Errorf("decompressFrame = %q, want Ping", out)
	}
}

func TestDecompressFrameGzip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(`{"data":{"bids":[]}}`)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	out, err := decompressFrame(websocket.BinaryMessage, buf.Bytes())
	if err != nil {
		t.Fatalf("decompressFrame: %v", err)
	}
	if string(out) != `{"data":{"bids":[]}}` {
		t.Errorf("decompressFrame = %q, want decompressed json", out)
	}
}

func TestDecodeDepthFrame(t *testing.T) {
	t.Parallel()

	msg := []byte(`{"data":{"bids":[["50000.0","1.5"]],"asks":[["50010.0","2.0"]]},"ts":12345}`)
	snap, updateID, ok, err := decodeDepthFrame("BTC-USDC", msg)
	if err != nil {
		t.Fatalf("decodeDepthFrame: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for a data frame")
	}
	if updateID != 12345 {
		t.Errorf("updateID = %d, want 12345", updateID)
	}
	if len(snap.Bids) != 1 || len(snap.Asks) != 1 {
		t.Fatalf("snap = %+v, want 1 bid and 1 ask", snap)
	}
}

func TestDecodeDepthFrameSubscriptionAck(t *testing.T) {
	t.Parallel()

	msg := []byte(`{"id":"abc","code":0,"msg":"success"}`)
	_, _, ok, err := decodeDepthFrame("BTC-USDC", msg)
	if err != nil {
		t.Fatalf("decodeDepthFrame: %v", err)
	}
	if ok {
		t.Error("expected ok=false for a subscription ack frame")
	}
}
