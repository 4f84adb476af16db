package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"strings" // For parsing list values
	"time"    // For durations

	"github.com/joho/godotenv"      // For loading .env files
	"github.com/shopspring/decimal" // Decimal amounts for fraud ceilings
	"github.com/sirupsen/logrus"    // Warn on malformed values
)

// Config holds the application configuration
type Config struct {
	AppPort    string // Application port
	DBDriver   string // Database driver: mysql, postgres or sqlite
	DBDSN      string // Full DSN, overrides the individual DB fields
	DBUser     string // Database user
	DBPassword string // Database password
	DBHost     string // Database host
	DBPort     string // Database port
	DBName     string // Database name
	JWTSecret  string // JWT secret key
	RedisAddr  string // Redis server address
	RedisPass  string // Redis password
	RedisDB    int    // Redis database number
	IsProd     bool   // Is production environment

	AdminEmail    string // Admin seeded by cmd/migrate
	AdminPassword string // Admin seeded by cmd/migrate

	Fraud FraudConfig // Fraud scorer and scan options
}

// FraudConfig holds the fraud rule table and scan schedule
type FraudConfig struct {
	SuspiciousAmounts        map[string]decimal.Decimal // Per-currency suspicious amount ceiling
	VelocityWindow           time.Duration              // Rolling window for the velocity rule
	VelocityThreshold        int                        // Transfers allowed inside the velocity window
	RepeatRecipientThreshold int                        // Transfers to one receiver allowed inside the velocity window
	VolumeWindow             time.Duration              // Window for the volume rule
	VolumeCeiling            decimal.Decimal            // Volume allowed inside the volume window
	VolumeCeilings           map[string]decimal.Decimal // Per-currency volume ceiling, falls back to VolumeCeiling
	HistoryWindow            time.Duration              // History loaded for synchronous scoring
	ScanInterval             time.Duration              // Period of the background scan
	ScanLookback             time.Duration              // How far back the scan looks
}

// DefaultSuspiciousAmounts is the per-currency ceiling table used when none is configured
func DefaultSuspiciousAmounts() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"USD":   decimal.NewFromInt(10000),
		"EUR":   decimal.NewFromInt(8500),
		"GBP":   decimal.NewFromInt(7500),
		"BONUS": decimal.NewFromInt(1000),
	}
}

// DefaultVolumeCeilings overrides the volume ceiling for currencies whose
// everyday amounts are far larger than USD
func DefaultVolumeCeilings() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"JPY": decimal.NewFromInt(7500000),
		"INR": decimal.NewFromInt(4000000),
	}
}

// DefaultFraudConfig returns the fraud options used when the environment is silent
func DefaultFraudConfig() FraudConfig {
	return FraudConfig{
		SuspiciousAmounts:        DefaultSuspiciousAmounts(),
		VelocityWindow:           5 * time.Minute,
		VelocityThreshold:        3,
		RepeatRecipientThreshold: 3,
		VolumeWindow:             time.Hour,
		VolumeCeiling:            decimal.NewFromInt(50000),
		VolumeCeilings:           DefaultVolumeCeilings(),
		HistoryWindow:            24 * time.Hour,
		ScanInterval:             24 * time.Hour,
		ScanLookback:             24 * time.Hour,
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:       getEnv("APP_PORT", "8080"),     // Application port
		DBDriver:      getEnv("DB_DRIVER", "mysql"),   // Database driver
		DBDSN:         os.Getenv("DB_DSN"),            // Full DSN
		DBUser:        os.Getenv("DB_USER"),           // Database user
		DBPassword:    os.Getenv("DB_PASSWORD"),       // Database password
		DBHost:        os.Getenv("DB_HOST"),           // Database host
		DBPort:        os.Getenv("DB_PORT"),           // Database port
		DBName:        os.Getenv("DB_NAME"),           // Database name
		JWTSecret:     os.Getenv("JWT_SECRET"),        // JWT secret key
		RedisAddr:     os.Getenv("REDIS_ADDR"),        // Redis server address
		RedisPass:     os.Getenv("REDIS_PASS"),        // Redis password
		RedisDB:       redisDB,                        // Redis database number
		IsProd:        os.Getenv("IS_PROD") == "true", // Is production environment
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),       // Seeded admin email
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),    // Seeded admin password
		Fraud:         loadFraudConfig(),              // Fraud options
	}
}

// loadFraudConfig reads the FRAUD_* variables on top of the defaults
func loadFraudConfig() FraudConfig {
	f := DefaultFraudConfig()
	if v := os.Getenv("FRAUD_SUSPICIOUS_AMOUNTS"); v != "" {
		if amounts, err := ParseAmounts(v); err == nil {
			f.SuspiciousAmounts = amounts
		} else {
			logrus.WithError(err).Warn("ignoring FRAUD_SUSPICIOUS_AMOUNTS")
		}
	}
	if v := os.Getenv("FRAUD_VOLUME_CEILINGS"); v != "" {
		if amounts, err := ParseAmounts(v); err == nil {
			f.VolumeCeilings = amounts
		} else {
			logrus.WithError(err).Warn("ignoring FRAUD_VOLUME_CEILINGS")
		}
	}
	f.VelocityWindow = getMinutes("FRAUD_VELOCITY_WINDOW_MINUTES", f.VelocityWindow)
	f.VelocityThreshold = getInt("FRAUD_VELOCITY_THRESHOLD", f.VelocityThreshold)
	f.RepeatRecipientThreshold = getInt("FRAUD_REPEAT_RECIPIENT_THRESHOLD", f.RepeatRecipientThreshold)
	f.VolumeWindow = getHours("FRAUD_VOLUME_WINDOW_HOURS", f.VolumeWindow)
	f.VolumeCeiling = getDecimal("FRAUD_VOLUME_CEILING", f.VolumeCeiling)
	f.HistoryWindow = getHours("FRAUD_HISTORY_WINDOW_HOURS", f.HistoryWindow)
	f.ScanInterval = getDuration("FRAUD_SCAN_INTERVAL", f.ScanInterval)
	f.ScanLookback = getHours("FRAUD_SCAN_LOOKBACK_HOURS", f.ScanLookback)
	return f
}

// ParseAmounts parses "USD=10000,EUR=8500" into a currency ceiling table
func ParseAmounts(s string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		currency, raw, ok := strings.Cut(part, "=")
		if !ok {
			return nil, &ParseError{Key: part, Value: s}
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !amount.IsPositive() {
			return nil, &ParseError{Key: currency, Value: raw}
		}
		out[strings.ToUpper(strings.TrimSpace(currency))] = amount
	}
	return out, nil
}

// ParseError reports a malformed configuration entry
type ParseError struct {
	Key   string
	Value string
}

func (e *ParseError) Error() string {
	return "invalid config entry " + strconv.Quote(e.Key) + " in " + strconv.Quote(e.Value)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("invalid integer, using default")
		return def
	}
	return n
}

func getMinutes(key string, def time.Duration) time.Duration {
	return time.Duration(getInt(key, int(def/time.Minute))) * time.Minute
}

func getHours(key string, def time.Duration) time.Duration {
	return time.Duration(getInt(key, int(def/time.Hour))) * time.Hour
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("invalid duration, using default")
		return def
	}
	return d
}

func getDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil || !d.IsPositive() {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("invalid decimal, using default")
		return def
	}
	return d
}
