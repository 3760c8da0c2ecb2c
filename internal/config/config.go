package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the copy-trade bot.
type Config struct {
	// Endpoints and credentials
	WebsocketURL string
	APIBase      string
	APIKey       string
	APISecret    string
	UserAgent    string
	WSInsecure   bool

	// Business logic
	Multiplier        float64 // e.g. 2.0 means "match + 1x top-up"
	DryRun            bool
	MaxTopupPerTrade  int64 // contracts
	MaxTopupPerSymbol int64 // running session cap
	SymbolCaps        map[string]int64
	AllowSymbols      map[string]bool // upper-cased; "ALL" means wildcard
	OrderType         string          // market_order or limit_order
	TimeInForce       string          // ioc, fok or gtc where supported
	SelfTagPrefix     string
	LimitSlippageBps  float64
	LimitIOCFallback  bool
	VerboseDecisions  bool

	// Reliability
	PingInterval  time.Duration
	PingTimeout   time.Duration
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	BackoffJitter float64 // 0..jitter fraction added on top of the wait

	// Dedup store limits
	FillIDTTL  time.Duration
	FillIDMax  int
	TradeIDTTL time.Duration
	TradeIDMax int

	// HTTP hardening
	HTTPTimeout     time.Duration // read timeout
	HTTPConnTimeout time.Duration
	HTTPRetries     int
	OrderRatePerSec float64
	OrderRateBurst  int

	// Queue and shutdown
	QueueSize   int
	DrainWait   time.Duration
	LogDir      string
	JournalPath string // sqlite audit store; empty disables

	// Status API
	Port string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the bot still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		WebsocketURL:      getEnv("DELTA_WS_URL", "wss://socket.india.delta.exchange"),
		APIBase:           getEnv("DELTA_API_BASE", "https://api.india.delta.exchange"),
		APIKey:            os.Getenv("DELTA_API_KEY"),
		APISecret:         os.Getenv("DELTA_API_SECRET"),
		UserAgent:         getEnv("USER_AGENT", "go-rest-client"),
		WSInsecure:        getEnv("WS_INSECURE", "false") == "true",
		Multiplier:        getEnvFloat("USER_MULTIPLIER", 2.0),
		DryRun:            getEnv("DRY_RUN", "false") == "true",
		MaxTopupPerTrade:  getEnvInt64("MAX_TOPUP_PER_TRADE", 1_000_000),
		MaxTopupPerSymbol: getEnvInt64("MAX_TOPUP_PER_SYMBOL", 10_000_000),
		AllowSymbols:      parseAllowList(getEnv("ALLOW_SYMBOLS", "ALL")),
		OrderType:         getEnv("ORDER_TYPE", "market_order"),
		TimeInForce:       strings.ToLower(getEnv("TIME_IN_FORCE", "ioc")),
		SelfTagPrefix:     getEnv("SELF_TAG_PREFIX", "BOTMULT_"),
		LimitSlippageBps:  getEnvFloat("LIMIT_SLIPPAGE_BPS", 0),
		LimitIOCFallback:  getEnv("LIMIT_IOC_FALLBACK_MARKET", "true") == "true",
		VerboseDecisions:  getEnv("VERBOSE_DECISIONS", "true") == "true",
		PingInterval:      getEnvSeconds("PING_INTERVAL", 30),
		PingTimeout:       getEnvSeconds("PING_TIMEOUT", 5),
		BackoffBase:       getEnvDurationSecF("BACKOFF_BASE", 1.0),
		BackoffMax:        getEnvDurationSecF("BACKOFF_MAX", 60.0),
		BackoffJitter:     getEnvFloat("BACKOFF_JITTER", 0.4),
		FillIDTTL:         getEnvSeconds("FILL_ID_TTL_SEC", 86400),
		FillIDMax:         getEnvInt("FILL_ID_MAX", 200_000),
		TradeIDTTL:        getEnvSeconds("TRADE_ID_TTL_SEC", 86400),
		TradeIDMax:        getEnvInt("TRADE_ID_MAX", 200_000),
		HTTPTimeout:       getEnvDurationSecF("HTTP_TIMEOUT", 10),
		HTTPConnTimeout:   getEnvDurationSecF("HTTP_CONN_TIMEOUT", 3.05),
		HTTPRetries:       getEnvInt("HTTP_RETRIES", 3),
		OrderRatePerSec:   getEnvFloat("ORDER_RATE_PER_SEC", 5),
		OrderRateBurst:    getEnvInt("ORDER_RATE_BURST", 10),
		QueueSize:         getEnvInt("ORDER_QUEUE_SIZE", 1000),
		DrainWait:         getEnvSeconds("DRAIN_WAIT_SEC", 5),
		LogDir:            getEnv("LOG_DIR", "logs"),
		JournalPath:       getEnv("JOURNAL_DB_PATH", "./data/journal.db"),
		Port:              getEnv("PORT", "8081"),
	}

	if capsFile := os.Getenv("CAPS_FILE"); capsFile != "" {
		caps, err := loadCapsFile(capsFile)
		if err != nil {
			return nil, err
		}
		cfg.SymbolCaps = caps
	}

	return cfg, nil
}

// Validate checks settings that must be present before the event loop starts.
func (c *Config) Validate() error {
	if c.APIKey == "" || c.APISecret == "" {
		return errors.New("missing DELTA_API_KEY / DELTA_API_SECRET in environment")
	}
	if c.Multiplier < 0 {
		return fmt.Errorf("USER_MULTIPLIER must be >= 0, got %v", c.Multiplier)
	}
	if c.OrderType != "market_order" && c.OrderType != "limit_order" {
		return fmt.Errorf("ORDER_TYPE must be market_order or limit_order, got %q", c.OrderType)
	}
	return nil
}

// loadCapsFile reads a YAML map of SYMBOL -> max contracts.
func loadCapsFile(path string) (map[string]int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read caps file: %w", err)
	}
	var caps map[string]int64
	if err := yaml.Unmarshal(raw, &caps); err != nil {
		return nil, fmt.Errorf("parse caps file %s: %w", path, err)
	}
	out := make(map[string]int64, len(caps))
	for sym, limit := range caps {
		out[strings.ToUpper(strings.TrimSpace(sym))] = limit
	}
	return out, nil
}

func parseAllowList(val string) map[string]bool {
	out := make(map[string]bool)
	for _, p := range strings.Split(val, ",") {
		if t := strings.ToUpper(strings.TrimSpace(p)); t != "" {
			out[t] = true
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(strings.ReplaceAll(v, "_", ""), 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getEnvSeconds(key string, defSec int) time.Duration {
	return time.Duration(getEnvInt(key, defSec)) * time.Second
}

func getEnvDurationSecF(key string, defSec float64) time.Duration {
	return time.Duration(getEnvFloat(key, defSec) * float64(time.Second))
}
