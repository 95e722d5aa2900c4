// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	// Server
	Port        string
	MetricsPort string
	Environment string

	// Cart / sales rules
	CartTTL           time.Duration
	MaxTicketsPerSale int

	// Pricing
	TaxRate      decimal.Decimal
	FeeRate      decimal.Decimal
	FeeFlatCents int64

	// Payment provider
	PaymentSuccessURL string
	PaymentCancelURL  string

	// Notifications
	RabbitMQURL string
	MailQueue   string
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		CartTTL:           getEnvAsDuration("CART_TTL", "30m"),
		MaxTicketsPerSale: getEnvAsInt("MAX_TICKETS_PER_SALE", 4),

		TaxRate:      getEnvAsDecimal("TAX_RATE", "0.07"),
		FeeRate:      getEnvAsDecimal("FEE_RATE", "0.029"),
		FeeFlatCents: int64(getEnvAsInt("FEE_FLAT_CENTS", 30)),

		PaymentSuccessURL: getEnv("PAYMENT_SUCCESS_URL", "http://localhost:8080/checkout/success"),
		PaymentCancelURL:  getEnv("PAYMENT_CANCEL_URL", "http://localhost:8080/checkout/cancel"),

		RabbitMQURL: getEnv("RABBITMQ_URL", ""),
		MailQueue:   getEnv("MAIL_QUEUE", "boxoffice.mail"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, defaultValue)); err == nil {
		return d
	}
	d, _ := time.ParseDuration(defaultValue)
	return d
}

func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	if d, err := decimal.NewFromString(getEnv(key, defaultValue)); err == nil {
		return d
	}
	d, _ := decimal.NewFromString(defaultValue)
	return d
}
