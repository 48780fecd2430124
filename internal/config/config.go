package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Gateway  GatewayConfig
	Fees     FeeConfig
	Email    EmailConfig
	App      AppConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN           string
	RunMigrations bool
	MigrationsDir string
}

type RedisConfig struct {
	Addr    string
	Enabled bool
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	OrderPaid     string
	OrderRefunded string
	TicketsIssued string
}

type GatewayConfig struct {
	SecretKey     string
	PublicKey     string
	BaseURL       string
	WebhookSecret string
	EnableSplits  bool
	Timeout       time.Duration
}

// MockMode reports whether the gateway client should bypass the
// network entirely. Absence of the secret key is the switch.
func (g GatewayConfig) MockMode() bool {
	return g.SecretKey == ""
}

type FeeConfig struct {
	PlatformPercent float64
	GatewayPercent  float64
}

func (f FeeConfig) PlatformRate() float64 { return f.PlatformPercent / 100 }
func (f FeeConfig) GatewayRate() float64  { return f.GatewayPercent / 100 }

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromAddress  string
}

type AppConfig struct {
	BaseURL          string
	TicketCodePrefix string
	AssetDir         string
	MaxTicketsPerBuy int
}

func Load() *Config {
	webhookSecret := getEnv("GATEWAY_WEBHOOK_SECRET", "")
	secretKey := getEnv("GATEWAY_SECRET_KEY", "")
	if webhookSecret == "" {
		// Paystack-style gateways sign webhooks with the API secret.
		webhookSecret = secretKey
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:           getEnv("POSTGRES_DSN", ""),
			RunMigrations: getEnvBool("RUN_MIGRATIONS", false),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "internal/database/migrations/sql"),
		},
		Redis: RedisConfig{
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled: getEnvBool("REDIS_ENABLED", true),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				OrderPaid:     getEnv("KAFKA_TOPIC_ORDER_PAID", "accezzpay.orders.paid"),
				OrderRefunded: getEnv("KAFKA_TOPIC_ORDER_REFUNDED", "accezzpay.orders.refunded"),
				TicketsIssued: getEnv("KAFKA_TOPIC_TICKETS_ISSUED", "accezzpay.tickets.issued"),
			},
		},
		Gateway: GatewayConfig{
			SecretKey:     secretKey,
			PublicKey:     getEnv("GATEWAY_PUBLIC_KEY", ""),
			BaseURL:       getEnv("GATEWAY_BASE_URL", "https://api.paystack.co"),
			WebhookSecret: webhookSecret,
			EnableSplits:  getEnvBool("GATEWAY_ENABLE_SPLITS", false),
			Timeout:       time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Fees: FeeConfig{
			PlatformPercent: getEnvFloat("PLATFORM_FEE_PERCENT", 3),
			GatewayPercent:  getEnvFloat("GATEWAY_FEE_PERCENT", 1.5),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromAddress:  getEnv("SMTP_FROM", "no-reply@accezzpay.local"),
		},
		App: AppConfig{
			BaseURL:          getEnv("APP_BASE_URL", "http://localhost:8080"),
			TicketCodePrefix: getEnv("TICKET_QR_PREFIX", "ACCEZZ"),
			AssetDir:         getEnv("ASSET_DIR", "assets"),
			MaxTicketsPerBuy: getEnvInt("MAX_TICKETS_PER_CUSTOMER", 10),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
