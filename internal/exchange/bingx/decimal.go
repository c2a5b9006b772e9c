package bingx

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson"
)

// decimalFromFastjson converts a fastjson string scalar into a Decimal.
// BingX always encodes price/size ladder entries as JSON strings; a bare
// JSON number would require a float64 round-trip to extract, which is not
// acceptable for order-book levels feeding the evaluator, so it is rejected
// rather than silently coerced.
func decimalFromFastjson(v *fastjson.Value) (decimal.Decimal, error) {
	if v.Type() != fastjson.TypeString {
		return decimal.Decimal{}, fmt.Errorf("unsupported json type %v for decimal field, want string", v.Type())
	}
	b, err := v.StringBytes()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(string(b))
}
