package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"ema-bracket-bot/internal/constants"
)

// Config holds application configuration
type Config struct {
	APIKey          string
	APISecret       string
	RESTHost        string
	WSPublicURL     string
	WSPrivateURL    string
	PongWait        int64
	PingPeriod      int64
	RecvWindow      string
	AccountCurrency string

	Symbol   string
	Interval string

	// Indicator parameters
	FastEMAPeriod int
	SlowEMAPeriod int
	ATRPeriod     int
	SpreadWindow  int

	// Risk parameters (immutable for the strategy's lifetime)
	RiskBps           float64 // risk per trade in basis points of free equity
	StopATRMultiple   float64 // stop-loss buffer = ATR * this
	EntryBufferTicks  int     // entry buffer = tick size * this
	CommissionRateBps float64 // commission estimate folded into sizing
	HardPositionLimit int64   // absolute unit ceiling per trade
	LotUnitSize       int64   // quantities are floored to a multiple of this
	EntryExpirySec    int64   // GTD lifetime of the entry leg

	// Backtest
	BacktestEquity float64
	BacktestSpread float64 // synthetic bid/ask half-width around bar close

	// Logging configuration
	LogFile       string
	LogMaxSize    int // megabytes
	LogMaxBackups int // number of files
	LogMaxAge     int // days
	LogCompress   bool
	LogLevel      int // 0=DEBUG, 1=INFO, 2=WARNING, 3=ERROR
	Debug         bool

	// Status server configuration
	StatusAddr string

	// Daemon configuration
	DaemonMode bool
}

// LoadConfig loads configuration from a .env file (if present) and
// environment variables, falling back to defaults
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		APIKey:          getEnv("BROKER_API_KEY", ""),
		APISecret:       getEnv("BROKER_API_SECRET", ""),
		RESTHost:        getEnv("BROKER_REST_HOST", "https://api-demo.bybit.com"),
		WSPublicURL:     getEnv("BROKER_WS_PUBLIC", "wss://stream-demo.bybit.com/v5/public/linear"),
		WSPrivateURL:    getEnv("BROKER_WS_PRIVATE", "wss://stream-demo.bybit.com/v5/private"),
		PongWait:        70,
		PingPeriod:      30,
		RecvWindow:      "5000",
		AccountCurrency: getEnv("ACCOUNT_CURRENCY", "USDT"),

		Symbol:   getEnv("SYMBOL", "BTCUSDT"),
		Interval: getEnv("INTERVAL", "1"),

		FastEMAPeriod: getEnvAsInt("FAST_EMA_PERIOD", constants.DefaultFastEMAPeriod),
		SlowEMAPeriod: getEnvAsInt("SLOW_EMA_PERIOD", constants.DefaultSlowEMAPeriod),
		ATRPeriod:     getEnvAsInt("ATR_PERIOD", constants.DefaultATRPeriod),
		SpreadWindow:  getEnvAsInt("SPREAD_WINDOW", constants.DefaultSpreadWindow),

		RiskBps:           getEnvAsFloat("RISK_BPS", constants.DefaultRiskBps),
		StopATRMultiple:   getEnvAsFloat("STOP_ATR_MULTIPLE", constants.DefaultStopATRMultiple),
		EntryBufferTicks:  getEnvAsInt("ENTRY_BUFFER_TICKS", constants.DefaultEntryBufferTicks),
		CommissionRateBps: getEnvAsFloat("COMMISSION_RATE_BPS", constants.DefaultCommissionRateBps),
		HardPositionLimit: getEnvAsInt64("HARD_POSITION_LIMIT", constants.DefaultHardPositionLimit),
		LotUnitSize:       getEnvAsInt64("LOT_UNIT_SIZE", constants.DefaultLotUnitSize),
		EntryExpirySec:    getEnvAsInt64("ENTRY_EXPIRY_SEC", 60),

		BacktestEquity: getEnvAsFloat("BACKTEST_EQUITY", 100_000),
		BacktestSpread: getEnvAsFloat("BACKTEST_SPREAD", 0.0002),

		// Logging defaults
		LogFile:       getEnv("LOG_FILE", "logs/ema_bracket.log"),
		LogMaxSize:    10,
		LogMaxBackups: 5,
		LogMaxAge:     30,
		LogCompress:   true,
		LogLevel:      1, // INFO

		// Status server defaults
		StatusAddr: getEnv("STATUS_ADDR", "127.0.0.1:6061"),

		// Daemon defaults
		DaemonMode: getEnvAsBool("DAEMON_MODE", false),
	}
}

// Validate rejects configurations that would make sizing or pricing
// meaningless. Called once at startup; a strategy never runs with a
// non-positive limit, lot unit or risk budget.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol must not be empty")
	}
	if c.RiskBps <= 0 {
		return fmt.Errorf("risk bps must be positive, got %v", c.RiskBps)
	}
	if c.StopATRMultiple <= 0 {
		return fmt.Errorf("stop ATR multiple must be positive, got %v", c.StopATRMultiple)
	}
	if c.HardPositionLimit <= 0 {
		return fmt.Errorf("hard position limit must be positive, got %d", c.HardPositionLimit)
	}
	if c.LotUnitSize <= 0 {
		return fmt.Errorf("lot unit size must be positive, got %d", c.LotUnitSize)
	}
	if c.CommissionRateBps < 0 {
		return fmt.Errorf("commission rate bps must not be negative, got %v", c.CommissionRateBps)
	}
	if c.EntryBufferTicks < 0 {
		return fmt.Errorf("entry buffer ticks must not be negative, got %d", c.EntryBufferTicks)
	}
	if c.FastEMAPeriod <= 0 || c.SlowEMAPeriod <= 0 || c.ATRPeriod <= 0 {
		return fmt.Errorf("indicator periods must be positive")
	}
	if c.FastEMAPeriod >= c.SlowEMAPeriod {
		return fmt.Errorf("fast EMA period %d must be shorter than slow EMA period %d",
			c.FastEMAPeriod, c.SlowEMAPeriod)
	}
	if c.SpreadWindow <= 0 {
		return fmt.Errorf("spread window must be positive, got %d", c.SpreadWindow)
	}
	return nil
}

// getEnvAsBool gets an environment variable as a boolean value
func getEnvAsBool(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	switch value {
	case "true", "1", "yes", "on", "True", "TRUE":
		return true
	default:
		return false
	}
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvAsInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
