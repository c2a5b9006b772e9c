// Package mexc implements the C1 exchange adapter for MEXC spot trading —
// the buy venue in the arbitrage pair. REST calls use resty with retry and
// rate limiting; the order-book stream uses gorilla/websocket with a
// manual PING/PONG heartbeat and fastjson for hot-path JSON decoding.
package mexc

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arbtrader/mexc-bingx-arb/internal/exchange"
	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

const (
	defaultRESTBaseURL = "https://api.mexc.com"
	defaultWSURL       = "wss://wbs-api.mexc.com/ws"
	baseSizeIncrement  = "0.000001" // BTC increment MEXC enforces on BTCUSDC
)

// Adapter implements exchange.Adapter for MEXC.
type Adapter struct {
	http         *resty.Client
	ws           []string
	apiKey       string
	apiSecret    string
	rl           *exchange.RateLimiter
	pingInterval time.Duration
	dryRun       bool
	logger       *slog.Logger
}

// Config carries everything the adapter needs to construct its transports.
// WSURLs, when set, is tried round-robin on every reconnect so repeated
// failures against one endpoint migrate traffic to the next.
type Config struct {
	RESTBaseURL  string
	WSURL        string
	WSURLs       []string
	APIKey       string
	APISecret    string
	PingInterval time.Duration
	DryRun       bool
}

// New creates a MEXC adapter.
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
	pingInterval := cfg.PingInterval
	if pingInterval == 0 {
		pingInterval = 20 * time.Second
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
		http:         httpClient,
		ws:           wsURLs,
		apiKey:       cfg.APIKey,
		apiSecret:    cfg.APISecret,
		rl:           exchange.NewMEXCRateLimiter(),
		pingInterval: pingInterval,
		dryRun:       cfg.DryRun,
		logger:       logger.With("venue", "mexc"),
	}
}

// Name identifies this adapter for logging/metrics.
func (a *Adapter) Name() types.Venue { return types.MEXC }

// BaseSizeIncrement returns MEXC's minimum base-asset size increment.
func (a *Adapter) BaseSizeIncrement(symbol string) decimal.Decimal {
	d, _ := decimal.NewFromString(baseSizeIncrement)
	return d
}

// toVenueSymbol maps the canonical "BTC-USDC" form to MEXC's "BTCUSDC".
func toVenueSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "-", "")
}

// newClientOrderID generates a unique client order ID for a new request.
func newClientOrderID() string {
	return "arb-" + uuid.NewString()
}

func legStateFromMEXCStatus(status string) types.LegState {
	switch status {
	case "NEW":
		return types.Submitted
	case "PARTIALLY_FILLED":
		return types.PartiallyFilled
	case "FILLED":
		return types.Filled
	case "CANCELED", "PARTIALLY_CANCELED":
		return types.Cancelled
	case "REJECTED", "EXPIRED":
		return types.Rejected
	default:
		return types.Unknown
	}
}

func wrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &exchange.TransportError{Op: fmt.Sprintf("mexc.%s", op), Err: err}
}
