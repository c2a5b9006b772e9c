package mexc

import (
	"encoding/binary"
	"fmt"

	"github.com/shopspring/decimal"
)

// AggregateDeal is one decoded entry from MEXC's length-prefixed binary
// aggregate-deals trade tape. There is no example-pack library for a
// venue-private binary schema, so this path is decoded with stdlib
// encoding/binary (documented in DESIGN.md).
type AggregateDeal struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Side     string
	TimeMs   int64
}

// dealRecordLen is the fixed on-wire size of one aggregate-deal record:
// price (int64 fixed-point, 1e-8 scale) + qty (int64, same scale) +
// side (1 byte) + timestamp (int64 ms).
const dealRecordLen = 8 + 8 + 1 + 8

const priceQtyScale = 1e8

// decodeAggregateDealsFrame decodes the first aggregate-deal record of a
// binary frame. Frame layout: [uint32 recordCount][records...]; records
// after the first are not decoded.
func decodeAggregateDealsFrame(msg []byte) (AggregateDeal, error) {
	if len(msg) < 4+dealRecordLen {
		return AggregateDeal{}, fmt.Errorf("binary deal frame too short: %d bytes", len(msg))
	}

	count := binary.BigEndian.Uint32(msg[0:4])
	if count == 0 {
		return AggregateDeal{}, fmt.Errorf("binary deal frame has zero records")
	}

	rec := msg[4 : 4+dealRecordLen]
	priceFixed := int64(binary.BigEndian.Uint64(rec[0:8]))
	qtyFixed := int64(binary.BigEndian.Uint64(rec[8:16]))
	sideByte := rec[16]
	timeMs := int64(binary.BigEndian.Uint64(rec[17:25]))

	side := "BUY"
	if sideByte == 1 {
		side = "SELL"
	}

	return AggregateDeal{
		Price:    decimal.NewFromFloat(float64(priceFixed) / priceQtyScale),
		Quantity: decimal.NewFromFloat(float64(qtyFixed) / priceQtyScale),
		Side:     side,
		TimeMs:   timeMs,
	}, nil
}

// encodeAggregateDealsFrame is the inverse of decodeAggregateDealsFrame,
// used by tests to synthesize wire frames without a live connection.
func encodeAggregateDealsFrame(d AggregateDeal) []byte {
	buf := make([]byte, 4+dealRecordLen)
	binary.BigEndian.PutUint32(buf[0:4], 1)

	priceFixed := int64(d.Price.InexactFloat64() * priceQtyScale)
	qtyFixed := int64(d.Quantity.InexactFloat64() * priceQtyScale)

	binary.BigEndian.PutUint64(buf[4:12], uint64(priceFixed))
	binary.BigEndian.PutUint64(buf[12:20], uint64(qtyFixed))
	if d.Side == "SELL" {
		buf[20] = 1
	} else {
		buf[20] = 0
	}
	binary.BigEndian.PutUint64(buf[21:29], uint64(d.TimeMs))

	return buf
}

func decimalFromString(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
