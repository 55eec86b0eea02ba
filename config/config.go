package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort string

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Market data provider configuration
	MarketData MarketDataConfig

	// Broker paper-trading configuration
	Broker BrokerConfig

	// Trading configuration
	Trading TradingConfig
}

// MarketDataConfig holds the market data provider credentials and endpoints.
type MarketDataConfig struct {
	BaseURL      string
	WSURL        string
	APIKey       string
	APISecret    string
	RedirectURI  string
	PollInterval int // seconds between live reconcile passes
}

// BrokerConfig holds the optional paper-trading broker credentials. The
// broker path is disabled unless both keys are set.
type BrokerConfig struct {
	Enabled   bool
	APIKey    string
	APISecret string
	BaseURL   string
}

// TradingConfig holds simulation capital and exit policy parameters.
type TradingConfig struct {
	// Capital deployed per simulated position, in rupees.
	CapitalPerTrade float64

	// Booked fraction of total quantity at target 1, and of remaining
	// quantity at target 2 when a third target exists.
	T1BookFraction float64
	T2BookFraction float64

	// Level calculation
	MinRiskReward   float64
	EntryBufferPct  float64
	PullbackZonePct float64

	// Maximum stocks on a weekly watchlist
	MaxWatchlistSize int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		ServerPort: getEnvOrDefault("SERVER_PORT", "8080"),

		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "swingdesk"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "swingdesk"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "swingdesk123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		// Market data provider configuration
		MarketData: MarketDataConfig{
			BaseURL:      getEnvOrDefault("MARKET_DATA_BASE_URL", "https://api.upstox.com/v2"),
			WSURL:        getEnvOrDefault("MARKET_DATA_WS_URL", "wss://api.upstox.com/v2/feed/market-data-feed"),
			APIKey:       os.Getenv("MARKET_DATA_API_KEY"),
			APISecret:    os.Getenv("MARKET_DATA_API_SECRET"),
			RedirectURI:  getEnvOrDefault("MARKET_DATA_REDIRECT_URI", "http://localhost:8080/auth/callback"),
			PollInterval: getEnvInt("MARKET_DATA_POLL_INTERVAL", 60),
		},

		// Broker paper-trading configuration
		Broker: BrokerConfig{
			Enabled:   os.Getenv("BROKER_API_KEY") != "" && os.Getenv("BROKER_API_SECRET") != "",
			APIKey:    os.Getenv("BROKER_API_KEY"),
			APISecret: os.Getenv("BROKER_API_SECRET"),
			BaseURL:   getEnvOrDefault("BROKER_BASE_URL", "https://paper-api.alpaca.markets"),
		},

		// Trading configuration
		Trading: TradingConfig{
			CapitalPerTrade: getEnvFloat("TRADING_CAPITAL_PER_TRADE", 100000),

			T1BookFraction: getEnvFloat("TRADING_T1_BOOK_FRACTION", 0.5),
			T2BookFraction: getEnvFloat("TRADING_T2_BOOK_FRACTION", 0.7),

			MinRiskReward:   getEnvFloat("TRADING_MIN_RISK_REWARD", 1.5),
			EntryBufferPct:  getEnvFloat("TRADING_ENTRY_BUFFER_PCT", 0.25),
			PullbackZonePct: getEnvFloat("TRADING_PULLBACK_ZONE_PCT", 2.0),

			MaxWatchlistSize: getEnvInt("TRADING_MAX_WATCHLIST_SIZE", 10),
		},
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
