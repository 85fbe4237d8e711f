package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Broker   BrokerConfig
	Engine   EngineConfig
	Risk     RiskLimits
	Signal   SignalThresholds
	Gate     GateThresholds
	Paper    PaperConfig
	Feedback FeedbackConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds the quote-cache Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// BrokerConfig holds the live order-routing endpoint configuration
type BrokerConfig struct {
	BaseURL     string
	APIKey      string
	AccessToken string
}

// EngineConfig holds the execution scheduler configuration
type EngineConfig struct {
	IntervalSeconds int
	Workers         int
}

// Loss ratio denominator policy values. The upstream behavior measures
// cumulative realized loss against the profit target amount rather than
// invested capital; both are supported and the choice is explicit.
const (
	LossRatioDenomProfitTarget = "profit_target"
	LossRatioDenomCapital      = "capital"
)

// RiskLimits are the risk governor thresholds. Version 1.
type RiskLimits struct {
	MaxDailyLoss         float64
	MaxDailyTrades       int
	LossRatioDenominator string
}

// SignalThresholds are the momentum strategy defaults. Version 1.
type SignalThresholds struct {
	BuyAboveChangePercent  float64
	SellBelowChangePercent float64
	RiskFractions          map[string]float64
}

// GateThresholds are the confidence gatekeeper thresholds. Version 1.
type GateThresholds struct {
	MinConfidence        float64
	MinDataAgreement     float64
	MinRecentWinRate     float64
	MinTradesForWinRate  int
	WinRateFloor         float64
	AvgReturnFloorPct    float64
	MinTradesForUserHist int
	RecentWindowDays     int
	UserWindowDays       int
}

// PaperConfig are the paper simulator fill-model constants. Version 1.
type PaperConfig struct {
	BaseSlippagePct      float64
	MaxSlippagePct       float64
	LowVolumeThreshold   int64
	LowVolumePenalty     float64
	LimitFillProbability float64
}

// FeedbackConfig are the outcome feedback-loop constants. Version 1.
type FeedbackConfig struct {
	ProfitWeightFactor  float64
	LossWeightFactor    float64
	MinDelta            float64
	MaxDelta            float64
	Dampening           float64
	MinConfidence       float64
	MaxConfidence       float64
	AutoUpdateMaxCap    float64
	AutoUpdateMaxChange float64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "quantumleap"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Topic:   getEnv("KAFKA_TOPIC", "trading-events"),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
		},
		Broker: BrokerConfig{
			BaseURL:     getEnv("BROKER_BASE_URL", "https://api.kite.trade"),
			APIKey:      getEnv("BROKER_API_KEY", ""),
			AccessToken: getEnv("BROKER_ACCESS_TOKEN", ""),
		},
		Engine: EngineConfig{
			IntervalSeconds: getEnvInt("ENGINE_INTERVAL_SECONDS", 30),
			Workers:         getEnvInt("ENGINE_WORKERS", 4),
		},
		Risk:     DefaultRiskLimits(),
		Signal:   DefaultSignalThresholds(),
		Gate:     DefaultGateThresholds(),
		Paper:    DefaultPaperConfig(),
		Feedback: DefaultFeedbackConfig(),
	}
}

// DefaultRiskLimits returns the documented risk governor defaults.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxDailyLoss:         getEnvFloat("RISK_MAX_DAILY_LOSS", 5000),
		MaxDailyTrades:       getEnvInt("RISK_MAX_DAILY_TRADES", 10),
		LossRatioDenominator: getEnv("RISK_LOSS_RATIO_DENOMINATOR", LossRatioDenomProfitTarget),
	}
}

// DefaultSignalThresholds returns the documented momentum defaults.
func DefaultSignalThresholds() SignalThresholds {
	return SignalThresholds{
		BuyAboveChangePercent:  2.0,
		SellBelowChangePercent: -2.0,
		RiskFractions: map[string]float64{
			"low":      0.01,
			"moderate": 0.02,
			"high":     0.03,
		},
	}
}

// DefaultGateThresholds returns the documented gatekeeper defaults.
func DefaultGateThresholds() GateThresholds {
	return GateThresholds{
		MinConfidence:        0.70,
		MinDataAgreement:     0.60,
		MinRecentWinRate:     0.50,
		MinTradesForWinRate:  5,
		WinRateFloor:         0.30,
		AvgReturnFloorPct:    -5.0,
		MinTradesForUserHist: 10,
		RecentWindowDays:     30,
		UserWindowDays:       90,
	}
}

// DefaultPaperConfig returns the documented fill-model defaults.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		BaseSlippagePct:      0.10,
		MaxSlippagePct:       0.50,
		LowVolumeThreshold:   100000,
		LowVolumePenalty:     1.5,
		LimitFillProbability: 0.70,
	}
}

// DefaultFeedbackConfig returns the documented feedback-loop defaults.
func DefaultFeedbackConfig() FeedbackConfig {
	return FeedbackConfig{
		ProfitWeightFactor:  1.10,
		LossWeightFactor:    0.90,
		MinDelta:            0.05,
		MaxDelta:            0.15,
		Dampening:           0.7,
		MinConfidence:       0.10,
		MaxConfidence:       0.95,
		AutoUpdateMaxCap:    10000,
		AutoUpdateMaxChange: 0.10,
	}
}

// Validate checks threshold sanity before the engine starts.
func (c *Config) Validate() error {
	if c.Engine.IntervalSeconds < 1 {
		return fmt.Errorf("engine.interval_seconds must be positive")
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be positive")
	}
	switch c.Risk.LossRatioDenominator {
	case LossRatioDenomProfitTarget, LossRatioDenomCapital:
	default:
		return fmt.Errorf("invalid risk.loss_ratio_denominator: %s", c.Risk.LossRatioDenominator)
	}
	if c.Paper.LimitFillProbability < 0 || c.Paper.LimitFillProbability > 1 {
		return fmt.Errorf("paper.limit_fill_probability must be within [0,1]")
	}
	if c.Feedback.MinConfidence >= c.Feedback.MaxConfidence {
		return fmt.Errorf("feedback confidence bounds are inverted")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
