package bingx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbtrader/mexc-bingx-arb/internal/exchange"
	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

type depthResponse struct {
	Code int `json:"code"`
	Data struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
		T    int64      `json:"ts"`
	} `json:"data"`
}

// FetchOrderBook issues a one-shot REST depth request — the staleness
// fallback path (§4.2), unused on the sell venue under normal operation
// since BingX relies on native transport keepalive, but available if the
// coordinator needs a point-in-time read.
func (a *Adapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (types.OrderBookSnapshot, error) {
	if err := a.rl.Book.Wait(ctx); err != nil {
		return types.OrderBookSnapshot{}, err
	}

	var result depthResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": toVenueSymbol(symbol),
			"limit":  strconv.Itoa(depth),
		}).
		SetResult(&result).
		Get("/openApi/spot/v1/market/depth")
	if err != nil {
		return types.OrderBookSnapshot{}, wrapTransport("fetch_orderbook", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderBookSnapshot{}, wrapTransport("fetch_orderbook",
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	if result.Code != errCodeSuccess {
		return types.OrderBookSnapshot{}, wrapTransport("fetch_orderbook",
			fmt.Errorf("api error code %d", result.Code))
	}

	bids, err := levelsFromStrings(result.Data.Bids)
	if err != nil {
		return types.OrderBookSnapshot{}, wrapTransport("fetch_orderbook", err)
	}
	asks, err := levelsFromStrings(result.Data.Asks)
	if err != nil {
		return types.OrderBookSnapshot{}, wrapTransport("fetch_orderbook", err)
	}

	return types.OrderBookSnapshot{
		Symbol:     symbol,
		Venue:      types.BingX,
		Bids:       bids,
		Asks:       asks,
		UpdateID:   uint64(result.Data.T),
		CapturedAt: time.Now(),
	}, nil
}

func levelsFromStrings(raw [][]string) ([]types.PriceLevel, error) {
	levels := make([]types.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) != 2 {
			continue
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", pair[0], err)
		}
		size, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("parse size %q: %w", pair[1], err)
		}
		if size.IsZero() {
			continue
		}
		levels = append(levels, types.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}

// signedParams builds a query string signed per BingX's REST auth scheme:
// HMAC-SHA256 over the canonical query string, appended as `signature`.
func (a *Adapter) signedParams(params url.Values) url.Values {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	sig := exchange.SignHMAC(a.apiSecret, params.Encode())
	params.Set("signature", sig)
	return params
}

type orderResponse struct {
	Code int `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		OrderID int64 `json:"orderId"`
	} `json:"data"`
}

// PlaceLimit submits a limit order.
func (a *Adapter) PlaceLimit(ctx context.Context, symbol string, side types.Side, baseAmount, limitPrice decimal.Decimal) (string, error) {
	if a.dryRun {
		return newClientOrderID(), nil
	}
	if err := a.rl.Order.Wait(ctx); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("symbol", toVenueSymbol(symbol))
	params.Set("side", string(side))
	params.Set("type", "LIMIT")
	params.Set("quantity", baseAmount.String())
	params.Set("price", limitPrice.String())
	params.Set("newClientOrderId", newClientOrderID())

	return a.submitOrder(ctx, params)
}

// PlaceMarket submits a market order.
func (a *Adapter) PlaceMarket(ctx context.Context, symbol string, side types.Side, baseAmount decimal.Decimal) (string, error) {
	if a.dryRun {
		return newClientOrderID(), nil
	}
	if err := a.rl.Order.Wait(ctx); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("symbol", toVenueSymbol(symbol))
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", baseAmount.String())
	params.Set("newClientOrderId", newClientOrderID())

	return a.submitOrder(ctx, params)
}

func (a *Adapter) submitOrder(ctx context.Context, params url.Values) (string, error) {
	signed := a.signedParams(params)

	var result orderResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("X-BX-APIKEY", a.apiKey).
		SetQueryParamsFromValues(signed).
		SetResult(&result).
		Post("/openApi/spot/v1/trade/order")
	if err != nil {
		return "", wrapTransport("place_order", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", wrapTransport("place_order", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	switch result.Code {
	case errCodeSuccess:
		return strconv.FormatInt(result.Data.OrderID, 10), nil
	case errCodeInvalidParameter, errCodeInsufficientBalance:
		return "", &exchange.Rejected{Reason: result.Msg}
	default:
		return "", wrapTransport("place_order", fmt.Errorf("api error code %d: %s", result.Code, result.Msg))
	}
}

// Cancel requests cancellation of orderID.
func (a *Adapter) Cancel(ctx context.Context, symbol, orderID string) error {
	if a.dryRun {
		return nil
	}
	if err := a.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	params := url.Values{}
	params.Set("symbol", toVenueSymbol(symbol))
	params.Set("orderId", orderID)
	signed := a.signedParams(params)

	var result orderResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("X-BX-APIKEY", a.apiKey).
		SetQueryParamsFromValues(signed).
		SetResult(&result).
		Delete("/openApi/spot/v1/trade/order")
	if err != nil {
		return wrapTransport("cancel", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return wrapTransport("cancel", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	switch result.Code {
	case errCodeSuccess:
		return nil
	case errCodeOrderNotExist:
		return exchange.NotFound
	case errCodeInvalidParameter:
		return exchange.AlreadyTerminal
	default:
		return wrapTransport("cancel", fmt.Errorf("api error code %d: %s", result.Code, result.Msg))
	}
}

type queryResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Status              string `json:"status"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	} `json:"data"`
}

// Query returns the current state of orderID.
func (a *Adapter) Query(ctx context.Context, symbol, orderID string) (exchange.OrderStatus, error) {
	if err := a.rl.Query.Wait(ctx); err != nil {
		return exchange.OrderStatus{}, err
	}

	params := url.Values{}
	params.Set("symbol", toVenueSymbol(symbol))
	params.Set("orderId", orderID)
	signed := a.signedParams(params)

	var result queryResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("X-BX-APIKEY", a.apiKey).
		SetQueryParamsFromValues(signed).
		SetResult(&result).
		Get("/openApi/spot/v1/trade/query")
	if err != nil {
		return exchange.OrderStatus{}, wrapTransport("query", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return exchange.OrderStatus{}, wrapTransport("query", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	if result.Code == errCodeOrderNotExist {
		return exchange.OrderStatus{}, exchange.NotFound
	}
	if result.Code != errCodeSuccess {
		return exchange.OrderStatus{}, wrapTransport("query", fmt.Errorf("api error code %d: %s", result.Code, result.Msg))
	}

	filledBase, err := decimal.NewFromString(zeroIfEmpty(result.Data.ExecutedQty))
	if err != nil {
		return exchange.OrderStatus{}, wrapTransport("query", err)
	}
	filledQuote, err := decimal.NewFromString(zeroIfEmpty(result.Data.CummulativeQuoteQty))
	if err != nil {
		return exchange.OrderStatus{}, wrapTransport("query", err)
	}

	avgPrice := decimal.Zero
	if !filledBase.IsZero() {
		avgPrice = filledQuote.Div(filledBase)
	}

	return exchange.OrderStatus{
		State:       legStateFromBingXStatus(result.Data.Status),
		FilledBase:  filledBase,
		FilledQuote: filledQuote,
		AvgPrice:    avgPrice,
	}, nil
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

type balanceResponse struct {
	Code int `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	} `json:"data"`
}

// QuoteBalance returns the free balance of asset in BingX's spot account.
func (a *Adapter) QuoteBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	if a.dryRun {
		return decimal.NewFromInt(1000000), nil
	}
	if err := a.rl.Query.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	params := a.signedParams(url.Values{})

	var result balanceResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("X-BX-APIKEY", a.apiKey).
		SetQueryParamsFromValues(params).
		SetResult(&result).
		Get("/openApi/spot/v1/account/balance")
	if err != nil {
		return decimal.Zero, wrapTransport("account", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, wrapTransport("account", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	if result.Code != errCodeSuccess {
		return decimal.Zero, wrapTransport("account", fmt.Errorf("api error code %d: %s", result.Code, result.Msg))
	}

	for _, bal := range result.Data.Balances {
		if bal.Asset == asset {
			return decimal.NewFromString(zeroIfEmpty(bal.Free))
		}
	}
	return decimal.Zero, nil
}
