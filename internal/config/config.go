// Package config defines all configuration for the arbitrage engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via ARB_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun   bool           `mapstructure:"dry_run"`
	Pair     PairConfig     `mapstructure:"pair"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Trading  TradingConfig  `mapstructure:"trading"`
	MEXC     MEXCConfig     `mapstructure:"mexc"`
	BingX    BingXConfig    `mapstructure:"bingx"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// PairConfig identifies the canonical symbol traded.
type PairConfig struct {
	Symbol string `mapstructure:"symbol"` // canonical BASE-QUOTE form, e.g. "BTC-USDC"
}

// ExchangeConfig holds API credentials for both venues. Neither field is
// ever logged; Validate only checks presence.
type ExchangeConfig struct {
	MEXCAPIKey     string `mapstructure:"mexc_api_key"`
	MEXCAPISecret  string `mapstructure:"mexc_api_secret"`
	BingXAPIKey    string `mapstructure:"bingx_api_key"`
	BingXAPISecret string `mapstructure:"bingx_api_secret"`
}

// TradingConfig tunes the opportunity evaluator (C4), order state machine
// (C5), and paired-execution coordinator (C6). Field names and defaults
// follow the recognized configuration keys.
//
// The monetary and threshold fields are decimal strings, not float64: §9
// forbids binary floating-point anywhere near profit/slippage math, and
// that requirement starts at the config boundary, not just inside the
// evaluator. Load parses each into a decimal.Decimal.
type TradingConfig struct {
	MinProfitQuote           string        `mapstructure:"min_profit_quote"`
	MinProfitPct             string        `mapstructure:"min_profit_pct"`
	MaxBasePerTrade          string        `mapstructure:"max_base_per_trade"`
	MaxSlippageBps           string        `mapstructure:"max_slippage_bps"`
	RecheckInterval          time.Duration `mapstructure:"recheck_interval_ms"`
	OrderTimeout             time.Duration `mapstructure:"order_timeout_ms"`
	OrderPollInterval        time.Duration `mapstructure:"order_poll_ms"`
	PreExecPriceTolerancePct string        `mapstructure:"pre_exec_price_tolerance_pct"`
	OrderBookDepth           int           `mapstructure:"order_book_depth"`
	EmergencyDiscountPct     string        `mapstructure:"emergency_discount_pct"`

	// Decimal holds the parsed form of the string fields above, populated by
	// Load. Callers should read from here, not from the string fields.
	Decimal TradingDecimals `mapstructure:"-"`
}

// TradingDecimals is the decimal-exact counterpart of TradingConfig's
// string-typed threshold fields, populated by Load.
type TradingDecimals struct {
	MinProfitQuote           decimal.Decimal
	MinProfitPct             decimal.Decimal
	MaxBasePerTrade          decimal.Decimal
	MaxSlippageBps           decimal.Decimal
	PreExecPriceTolerancePct decimal.Decimal
	EmergencyDiscountPct     decimal.Decimal
}

// MEXCConfig controls the MEXC market-data stream (C2 buy-venue parameters).
type MEXCConfig struct {
	PingInterval          time.Duration `mapstructure:"ping_interval_s"`
	RESTFallback          bool          `mapstructure:"rest_fallback"`
	StaleTimeout          time.Duration `mapstructure:"stale_ms"`
	RESTMaxDeviationQuote string        `mapstructure:"rest_max_deviation_quote"`

	// WSEndpoints, when non-empty, is tried round-robin on every stream
	// reconnect so repeated failures against one endpoint migrate traffic
	// to an alternate. A single default endpoint is used when empty.
	WSEndpoints []string `mapstructure:"ws_endpoints"`

	// DecimalRESTMaxDeviationQuote is the parsed form of RESTMaxDeviationQuote,
	// populated by Load.
	DecimalRESTMaxDeviationQuote decimal.Decimal `mapstructure:"-"`
}

// BingXConfig controls the BingX market-data stream (C2 sell-venue parameters).
type BingXConfig struct {
	// Depth is checked by Validate but not used when subscribing: both
	// venues' streams subscribe at trading.order_book_depth.
	Depth int `mapstructure:"depth"`

	// WSEndpoints, when non-empty, is tried round-robin on every stream
	// reconnect so repeated failures against one endpoint migrate traffic
	// to an alternate. A single default endpoint is used when empty.
	WSEndpoints []string `mapstructure:"ws_endpoints"`
}

// StoreConfig sets where the execution-record log and stuck markers are persisted.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads config from a YAML file with env var overrides.
// Credentials use env vars: ARB_MEXC_API_KEY, ARB_MEXC_API_SECRET,
// ARB_BINGX_API_KEY, ARB_BINGX_API_SECRET, ARB_DRY_RUN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("ARB_MEXC_API_KEY"); key != "" {
		cfg.Exchange.MEXCAPIKey = key
	}
	if secret := os.Getenv("ARB_MEXC_API_SECRET"); secret != "" {
		cfg.Exchange.MEXCAPISecret = secret
	}
	if key := os.Getenv("ARB_BINGX_API_KEY"); key != "" {
		cfg.Exchange.BingXAPIKey = key
	}
	if secret := os.Getenv("ARB_BINGX_API_SECRET"); secret != "" {
		cfg.Exchange.BingXAPISecret = secret
	}
	if os.Getenv("ARB_DRY_RUN") == "true" || os.Getenv("ARB_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	var perr error
	parse := func(field, s string) decimal.Decimal {
		if perr != nil {
			return decimal.Decimal{}
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			perr = fmt.Errorf("%s: %w", field, err)
		}
		return d
	}

	cfg.Trading.Decimal = TradingDecimals{
		MinProfitQuote:           parse("trading.min_profit_quote", cfg.Trading.MinProfitQuote),
		MinProfitPct:             parse("trading.min_profit_pct", cfg.Trading.MinProfitPct),
		MaxBasePerTrade:          parse("trading.max_base_per_trade", cfg.Trading.MaxBasePerTrade),
		MaxSlippageBps:           parse("trading.max_slippage_bps", cfg.Trading.MaxSlippageBps),
		PreExecPriceTolerancePct: parse("trading.pre_exec_price_tolerance_pct", cfg.Trading.PreExecPriceTolerancePct),
		EmergencyDiscountPct:     parse("trading.emergency_discount_pct", cfg.Trading.EmergencyDiscountPct),
	}
	cfg.MEXC.DecimalRESTMaxDeviationQuote = parse("mexc.rest_max_deviation_quote", cfg.MEXC.RESTMaxDeviationQuote)
	if perr != nil {
		return nil, fmt.Errorf("parse decimal config fields: %w", perr)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.recheck_interval_ms", 1000*time.Millisecond)
	v.SetDefault("trading.order_timeout_ms", 30*time.Second)
	v.SetDefault("trading.order_poll_ms", 500*time.Millisecond)
	v.SetDefault("trading.order_book_depth", 20)
	v.SetDefault("trading.min_profit_quote", "0")
	v.SetDefault("trading.min_profit_pct", "0")
	v.SetDefault("trading.max_base_per_trade", "0")
	v.SetDefault("trading.max_slippage_bps", "50")
	v.SetDefault("trading.pre_exec_price_tolerance_pct", "0.5")
	v.SetDefault("trading.emergency_discount_pct", "1.0")
	v.SetDefault("mexc.ping_interval_s", 20*time.Second)
	v.SetDefault("mexc.stale_ms", 2000*time.Millisecond)
	v.SetDefault("mexc.rest_fallback", true)
	v.SetDefault("mexc.rest_max_deviation_quote", "50")
	v.SetDefault("bingx.depth", 20)
	v.SetDefault("store.data_dir", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("metrics.addr", ":9090")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Pair.Symbol == "" {
		return fmt.Errorf("pair.symbol is required")
	}
	if !c.DryRun {
		if c.Exchange.MEXCAPIKey == "" || c.Exchange.MEXCAPISecret == "" {
			return fmt.Errorf("mexc api credentials are required (set ARB_MEXC_API_KEY / ARB_MEXC_API_SECRET)")
		}
		if c.Exchange.BingXAPIKey == "" || c.Exchange.BingXAPISecret == "" {
			return fmt.Errorf("bingx api credentials are required (set ARB_BINGX_API_KEY / ARB_BINGX_API_SECRET)")
		}
	}
	if c.Trading.Decimal.MinProfitQuote.IsNegative() {
		return fmt.Errorf("trading.min_profit_quote must be >= 0")
	}
	if !c.Trading.Decimal.MaxBasePerTrade.IsPositive() {
		return fmt.Errorf("trading.max_base_per_trade must be > 0")
	}
	if !c.Trading.Decimal.MaxSlippageBps.IsPositive() {
		return fmt.Errorf("trading.max_slippage_bps must be > 0")
	}
	if c.Trading.RecheckInterval <= 0 {
		return fmt.Errorf("trading.recheck_interval_ms must be > 0")
	}
	if c.Trading.OrderTimeout <= 0 {
		return fmt.Errorf("trading.order_timeout_ms must be > 0")
	}
	if c.Trading.OrderPollInterval <= 0 {
		return fmt.Errorf("trading.order_poll_ms must be > 0")
	}
	if c.Trading.OrderBookDepth <= 0 {
		return fmt.Errorf("trading.order_book_depth must be > 0")
	}
	if c.MEXC.StaleTimeout <= 0 {
		return fmt.Errorf("mexc.stale_ms must be > 0")
	}
	if c.BingX.Depth <= 0 {
		return fmt.Errorf("bingx.depth must be > 0")
	}
	return nil
}
