// Package bingx implements the C1 exchange adapter for BingX spot trading —
// the sell venue in the arbitrage pair. REST calls use resty with retry and
// rate limiting; the order-book stream uses gorilla/websocket over BingX's
// gzip-compressed JSON frames, relying on the transport's native keepalive
// rather than a manual ping (§4.2).
package bingx

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arbtrader/mexc-bingx-arb/internal/exchange"
	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

const (
	defaultRESTBaseURL = "https://open-api.bingx.com"
	defaultWSURL        = "wss://open-api-ws.bingx.com/market"
	baseSizeIncrement   = "0.00001" // BTC increment BingX enforces on BTC-USDC
)

// BingX API error codes, grounded on the published spot/swap error taxonomy.
const (
	errCodeSuccess             = 0
	errCodeInvalidParameter    = 100400
	errCodeInsufficientBalance = 100202
	errCodeOrderNotExist       = 80016
)

// Adapter implements exchange.Adapter for BingX.
type Adapter struct {
	http      *resty.Client
	ws        []string
	apiKey    string
	apiSecret string
	rl        *exchange.RateLimiter
	dryRun    bool
	logger    *slog.Logger
}

// Config carries everything the adapter needs to construct its transports.
// WSURLs, when set, is tried round-robin on every reconnect so repeated
// failures against one endpoint migrate traffic to the next.
type Config struct {
	RESTBaseURL string
	WSURL       string
	WSURLs      []string
	APIKey      string
	APISecret   string
	DryRun      bool
}

// New creates a BingX adapter.
func New(cfg Config, logger *slog.Logger) *Adapter {
	restBase := cfg.RESTBaseURL
	if restBase == "" {
		restBase = defaultRESTBaseURL
	}
	wsURLs := cfg.WSURLs
	if len(wsURLs) == 0 && cfg.WSURL != "" {
		wsURLs = []string{cfg.WSURL}
	}
	if len(wsURLs) == 0 {
		wsURLs = []string{defaultWSURL}
	}

	httpClient := resty.New().
		SetBaseURL(restBase).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &Adapter{
		http:      httpClient,
		ws:        wsURLs,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		rl:        exchange.NewBingXRateLimiter(),
		dryRun:    cfg.DryRun,
		logger:    logger.With("venue", "bingx"),
	}
}

// Name identifies this adapter for logging/metrics.
func (a *Adapter) Name() types.Venue { return types.BingX }

// BaseSizeIncrement returns BingX's minimum base-asset size increment.
func (a *Adapter) BaseSizeIncrement(symbol string) decimal.Decimal {
	d, _ := decimal.NewFromString(baseSizeIncrement)
	return d
}

// toVenueSymbol maps the canonical "BTC-USDC" form to BingX's own
// "BTC-USDC" form — a pass-through, unlike MEXC's concatenated form.
func toVenueSymbol(symbol string) string {
	return symbol
}

func newClientOrderID() string {
	return "arb-" + uuid.NewString()
}

func legStateFromBingXStatus(status string) types.LegState {
	switch status {
	case "NEW", "PENDING":
		return types.Submitted
	case "PARTIALLY_FILLED":
		return types.PartiallyFilled
	case "FILLED":
		return types.Filled
	case "CANCELED":
		return types.Cancelled
	case "FAILED", "REJECTED":
		return types.Rejected
	default:
		return types.Unknown
	}
}

func wrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &exchange.TransportError{Op: fmt.Sprintf("bingx.%s", op), Err: err}
}
