package mexc

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
	LastUpdateID uint64     `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// FetchOrderBook issues a one-shot REST depth request — the staleness
// fallback path (§4.2).
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
		Get("/api/v3/depth")
	if err != nil {
		return types.OrderBookSnapshot{}, wrapTransport("fetch_orderbook", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderBookSnapshot{}, wrapTransport("fetch_orderbook",
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	return decodeDepthREST(symbol, &result)
}

func decodeDepthREST(symbol string, r *depthResponse) (types.OrderBookSnapshot, error) {
	bids, err := levelsFromStrings(r.Bids)
	if err != nil {
		return types.OrderBookSnapshot{}, wrapTransport("fetch_orderbook", err)
	}
	asks, err := levelsFromStrings(r.Asks)
	if err != nil {
		return types.OrderBookSnapshot{}, wrapTransport("fetch_orderbook", err)
	}
	return types.OrderBookSnapshot{
		Symbol:     symbol,
		Venue:      types.MEXC,
		Bids:       bids,
		Asks:       asks,
		UpdateID:   r.LastUpdateID,
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

// signedParams builds a query string signed per MEXC's REST auth scheme:
// HMAC-SHA256 over the canonical query string, appended as `signature`.
func (a *Adapter) signedParams(params url.Values) url.Values {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	sig := exchange.SignHMAC(a.apiSecret, params.Encode())
	params.Set("signature", sig)
	return params
}

type orderResponse struct {
	OrderID string `json:"orderId"`
	Symbol  string `json:"symbol"`
	Status  string `json:"status"`
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
	var apiErr mexcAPIError
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("X-MEXC-APIKEY", a.apiKey).
		SetQueryParamsFromValues(signed).
		SetResult(&result).
		SetError(&apiErr).
		Post("/api/v3/order")
	if err != nil {
		return "", wrapTransport("place_order", err)
	}
	if resp.StatusCode() == http.StatusBadRequest {
		return "", &exchange.Rejected{Reason: apiErr.Msg}
	}
	if resp.StatusCode() != http.StatusOK {
		return "", wrapTransport("place_order", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	return result.OrderID, nil
}

type mexcAPIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
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

	var apiErr mexcAPIError
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("X-MEXC-APIKEY", a.apiKey).
		SetQueryParamsFromValues(signed).
		SetError(&apiErr).
		Delete("/api/v3/order")
	if err != nil {
		return wrapTransport("cancel", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return exchange.NotFound
	case http.StatusBadRequest:
		if apiErr.Code == -2011 { // MEXC: order already filled/cancelled
			return exchange.AlreadyTerminal
		}
		return &exchange.Rejected{Reason: apiErr.Msg}
	default:
		return wrapTransport("cancel", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
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

	var result struct {
		Status              string `json:"status"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	}
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("X-MEXC-APIKEY", a.apiKey).
		SetQueryParamsFromValues(signed).
		SetResult(&result).
		Get("/api/v3/order")
	if err != nil {
		return exchange.OrderStatus{}, wrapTransport("query", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return exchange.OrderStatus{}, exchange.NotFound
	}
	if resp.StatusCode() != http.StatusOK {
		return exchange.OrderStatus{}, wrapTransport("query", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	filledBase, err := decimal.NewFromString(zeroIfEmpty(result.ExecutedQty))
	if err != nil {
		return exchange.OrderStatus{}, wrapTransport("query", err)
	}
	filledQuote, err := decimal.NewFromString(zeroIfEmpty(result.CummulativeQuoteQty))
	if err != nil {
		return exchange.OrderStatus{}, wrapTransport("query", err)
	}

	avgPrice := decimal.Zero
	if !filledBase.IsZero() {
		avgPrice = filledQuote.Div(filledBase)
	}

	return exchange.OrderStatus{
		State:       legStateFromMEXCStatus(result.Status),
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

type accountResponse struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

// QuoteBalance returns the free balance of asset in MEXC's spot account.
func (a *Adapter) QuoteBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	if a.dryRun {
		return decimal.NewFromInt(1000000), nil
	}
	if err := a.rl.Query.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	params := a.signedParams(url.Values{})

	var result accountResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("X-MEXC-APIKEY", a.apiKey).
		SetQueryParamsFromValues(params).
		SetResult(&result).
		Get("/api/v3/account")
	if err != nil {
		return decimal.Zero, wrapTransport("account", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, wrapTransport("account", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	for _, bal := range result.Balances {
		if bal.Asset == asset {
			return decimal.NewFromString(zeroIfEmpty(bal.Free))
		}
	}
	return decimal.Zero, nil
}
