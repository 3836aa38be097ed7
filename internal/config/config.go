// Package config loads the engine's configuration surface via
// spf13/viper: environment variables with typed defaults, and an
// optional config file layered underneath them. This replaces the
// teacher's raw os.Getenv helpers with the same validation semantics
// (ENCRYPTION_KEY required, exactly 32 bytes) plus the full surface
// spec.md §6 enumerates.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"arbitrage/pkg/crypto"
)

// Config is the fully loaded and validated engine configuration.
type Config struct {
	Trading  TradingConfig
	Position PositionConfig
	Feed     FeedConfig
	Venues   map[string]VenueConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// TradingConfig holds the spread thresholds and market-selection
// knobs (spec.md §6).
type TradingConfig struct {
	OpenNetSpreadThresholdPct  float64
	CloseRawSpreadThresholdPct float64
	ClosePositionAfter         time.Duration

	BaseCurrency    string
	TopNMarkets     int
	OrderType       string // "market" | "limit"
	ConsiderFunding bool
	MaxSlippagePct  float64
	StopLossPct     float64

	AnalyzeArbitrageMaxDataAge time.Duration
	OpenPositionMaxDataAge     time.Duration
	ClosePositionMaxDataAge    time.Duration

	StatusReportInterval time.Duration

	// AdaptiveThresholds/VolatilityWindow are carried for
	// forward-compatibility only (spec.md §9 Open Question): no code
	// path in this repository reads them.
	AdaptiveThresholds bool
	VolatilityWindow   time.Duration
}

// PositionConfig mirrors spec.md §6's position.* block.
type PositionConfig struct {
	UsdAmount        float64
	Leverage         int
	SizeBufferFactor float64
	TrailingStopMode bool
}

// FeedConfig holds per-venue subscription tuning.
type FeedConfig struct {
	OrderbookDepths          map[string]int
	DataFeedRetry            time.Duration
	WSLatencyThreshold       time.Duration
	BalanceFetchInterval     time.Duration
	FundingRateFetchInterval time.Duration
}

// VenueConfig is the credential bundle for one venue, loaded from
// <VENUE>_API_KEY / <VENUE>_SECRET / <VENUE>_PASSPHRASE and encrypted
// at rest immediately after load. Decrypt needs the same derived key
// Load used (Config.DerivedEncryptionKey).
type VenueConfig struct {
	APIKeyEncrypted     string
	SecretEncrypted     string
	PassphraseEncrypted string
}

// Decrypt recovers the plaintext API key, secret, and passphrase (the
// latter empty if the venue doesn't use one). key comes from
// Config.DerivedEncryptionKey.
func (vc VenueConfig) Decrypt(key []byte) (apiKey, secret, passphrase string, err error) {
	apiKey, err = crypto.Decrypt(vc.APIKeyEncrypted, key)
	if err != nil {
		return "", "", "", fmt.Errorf("config: decrypting api key: %w", err)
	}
	secret, err = crypto.Decrypt(vc.SecretEncrypted, key)
	if err != nil {
		return "", "", "", fmt.Errorf("config: decrypting secret: %w", err)
	}
	if vc.PassphraseEncrypted == "" {
		return apiKey, secret, "", nil
	}
	passphrase, err = crypto.Decrypt(vc.PassphraseEncrypted, key)
	if err != nil {
		return "", "", "", fmt.Errorf("config: decrypting passphrase: %w", err)
	}
	return apiKey, secret, passphrase, nil
}

// SecurityConfig holds the credential-encryption key material. The
// raw operator-supplied EncryptionKey is stretched through scrypt
// (pkg/crypto.DeriveKey), salted with EncryptionKeySalt, before it is
// ever used as an AES-256 key — see Config.DerivedEncryptionKey.
type SecurityConfig struct {
	EncryptionKey     string
	EncryptionKeySalt string
}

// LoggingConfig controls the zap logger's verbosity and encoding.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables (and an
// optional file, if CONFIG_FILE is set), applies defaults, and
// validates the invariants spec.md §7 classifies as ConfigInvariant
// (fatal at startup).
func Load(venueNames []string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	setDefaults(v)

	cfg := &Config{
		Trading: TradingConfig{
			OpenNetSpreadThresholdPct:  v.GetFloat64("open_position_net_spread_threshold"),
			CloseRawSpreadThresholdPct: v.GetFloat64("close_position_raw_spread_threshold"),
			ClosePositionAfter:         v.GetDuration("close_position_after_seconds") * time.Second,
			BaseCurrency:               v.GetString("base_currency"),
			TopNMarkets:                v.GetInt("top_n_markets"),
			OrderType:                  v.GetString("order_type"),
			ConsiderFunding:            v.GetBool("consider_funding"),
			MaxSlippagePct:             v.GetFloat64("max_slippage_pct"),
			StopLossPct:                v.GetFloat64("stop_loss_pct"),
			AnalyzeArbitrageMaxDataAge: time.Duration(v.GetInt64("analyze_arbitrage_max_data_age_ms")) * time.Millisecond,
			OpenPositionMaxDataAge:     time.Duration(v.GetInt64("open_position_max_data_age_ms")) * time.Millisecond,
			ClosePositionMaxDataAge:    time.Duration(v.GetInt64("close_position_max_data_age_ms")) * time.Millisecond,
			StatusReportInterval:       v.GetDuration("status_report_interval_seconds") * time.Second,
			AdaptiveThresholds:         v.GetBool("adaptive_thresholds"),
			VolatilityWindow:           v.GetDuration("volatility_window_seconds") * time.Second,
		},
		Position: PositionConfig{
			UsdAmount:        v.GetFloat64("position.usd_amount"),
			Leverage:         v.GetInt("position.leverage"),
			SizeBufferFactor: v.GetFloat64("position.size_buffer_factor"),
			TrailingStopMode: v.GetBool("position.trailing_stop_mode"),
		},
		Feed: FeedConfig{
			OrderbookDepths:          map[string]int{},
			DataFeedRetry:            v.GetDuration("data_feed_retry_seconds") * time.Second,
			WSLatencyThreshold:       v.GetDuration("ws_latency_threshold_seconds") * time.Second,
			BalanceFetchInterval:     v.GetDuration("balance_fetch_interval_seconds") * time.Second,
			FundingRateFetchInterval: v.GetDuration("funding_rate_fetch_interval_seconds") * time.Second,
		},
		Venues: map[string]VenueConfig{},
		Security: SecurityConfig{
			EncryptionKey:     v.GetString("encryption_key"),
			EncryptionKeySalt: v.GetString("encryption_key_salt"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}

	if cfg.Security.EncryptionKey == "" {
		return nil, fmt.Errorf("config: ENCRYPTION_KEY is required for encrypting venue credentials")
	}
	if len(cfg.Security.EncryptionKey) != 32 {
		return nil, fmt.Errorf("config: ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	if len(venueNames) < 2 {
		return nil, fmt.Errorf("config: at least 2 venues are required for cross-venue arbitrage, got %d", len(venueNames))
	}

	derivedKey, err := cfg.DerivedEncryptionKey()
	if err != nil {
		return nil, fmt.Errorf("config: deriving encryption key: %w", err)
	}

	defaultDepth := v.GetInt("orderbook_depth")
	for _, name := range venueNames {
		key := strings.ToUpper(name)

		rawAPIKey := v.GetString(key + "_API_KEY")
		rawSecret := v.GetString(key + "_SECRET")
		if rawAPIKey == "" || rawSecret == "" {
			return nil, fmt.Errorf("config: missing credentials for venue %q (%s_API_KEY / %s_SECRET)", name, key, key)
		}

		apiKeyEnc, err := crypto.Encrypt(rawAPIKey, derivedKey)
		if err != nil {
			return nil, fmt.Errorf("config: encrypting %s_API_KEY: %w", key, err)
		}
		secretEnc, err := crypto.Encrypt(rawSecret, derivedKey)
		if err != nil {
			return nil, fmt.Errorf("config: encrypting %s_SECRET: %w", key, err)
		}
		var passphraseEnc string
		if raw := v.GetString(key + "_PASSPHRASE"); raw != "" {
			passphraseEnc, err = crypto.Encrypt(raw, derivedKey)
			if err != nil {
				return nil, fmt.Errorf("config: encrypting %s_PASSPHRASE: %w", key, err)
			}
		}

		cfg.Venues[name] = VenueConfig{
			APIKeyEncrypted:     apiKeyEnc,
			SecretEncrypted:     secretEnc,
			PassphraseEncrypted: passphraseEnc,
		}
		depth := v.GetInt(key + "_ORDERBOOK_DEPTH")
		if depth <= 0 {
			depth = defaultDepth
		}
		cfg.Feed.OrderbookDepths[name] = depth
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DerivedEncryptionKey stretches Security.EncryptionKey through scrypt
// into the 32-byte AES-256 key actually used to encrypt/decrypt venue
// credentials.
func (c *Config) DerivedEncryptionKey() ([]byte, error) {
	return crypto.DeriveKey([]byte(c.Security.EncryptionKey), []byte(c.Security.EncryptionKeySalt))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("open_position_net_spread_threshold", 0.5)
	v.SetDefault("close_position_raw_spread_threshold", 0.05)
	v.SetDefault("close_position_after_seconds", 3600)
	v.SetDefault("base_currency", "USDT")
	v.SetDefault("top_n_markets", 20)
	v.SetDefault("order_type", "market")
	v.SetDefault("consider_funding", true)
	v.SetDefault("max_slippage_pct", 0.1)
	v.SetDefault("stop_loss_pct", 5.0)
	v.SetDefault("analyze_arbitrage_max_data_age_ms", 2000)
	v.SetDefault("open_position_max_data_age_ms", 1000)
	v.SetDefault("close_position_max_data_age_ms", 2000)
	v.SetDefault("status_report_interval_seconds", 30)
	v.SetDefault("adaptive_thresholds", false)
	v.SetDefault("volatility_window_seconds", 0)

	v.SetDefault("position.usd_amount", 100.0)
	v.SetDefault("position.leverage", 1)
	v.SetDefault("position.size_buffer_factor", 1.1)
	v.SetDefault("position.trailing_stop_mode", false)

	v.SetDefault("orderbook_depth", 50)
	v.SetDefault("data_feed_retry_seconds", 2)
	v.SetDefault("ws_latency_threshold_seconds", 5)
	v.SetDefault("balance_fetch_interval_seconds", 60)
	v.SetDefault("funding_rate_fetch_interval_seconds", 300)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// validate enforces the remaining spec.md §7 ConfigInvariant checks
// not already covered by Load's early encryption-key/venue-count gate.
func (c *Config) validate() error {
	if c.Trading.OrderType != "market" && c.Trading.OrderType != "limit" {
		return fmt.Errorf("config: order_type must be \"market\" or \"limit\", got %q", c.Trading.OrderType)
	}
	return nil
}
