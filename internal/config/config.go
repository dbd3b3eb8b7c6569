package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the env-backed application configuration. RabbitMQ keeps its own
// config in the messaging package.
type Config struct {
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	GatewayEndpoint        string
	GatewayAppID           string
	GatewayPublicKeyPath   string
	MerchantPrivateKeyPath string
	GatewayQueryTimeout    time.Duration

	PayResultURL string

	PaymentStaleAfter  time.Duration
	PaymentExpireAfter time.Duration
	PollInterval       time.Duration
}

func Load() *Config {
	return &Config{
		Port: getEnvOrDefault("PORT", "8004"),

		DBHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DBPort:     getEnvOrDefault("DB_PORT", "5432"),
		DBUser:     getEnvOrDefault("DB_USER", "postgres"),
		DBPassword: getEnvOrDefault("DB_PASSWORD", "postgres"),
		DBName:     getEnvOrDefault("DB_NAME", "payment_db"),

		GatewayEndpoint:        getEnvOrDefault("GATEWAY_ENDPOINT", "https://openapi.gateway.example/gateway.do"),
		GatewayAppID:           getEnvOrDefault("GATEWAY_APP_ID", ""),
		GatewayPublicKeyPath:   getEnvOrDefault("GATEWAY_PUBLIC_KEY_PATH", "keys/gateway_public.pem"),
		MerchantPrivateKeyPath: getEnvOrDefault("MERCHANT_PRIVATE_KEY_PATH", "keys/merchant_private.pem"),
		GatewayQueryTimeout:    getEnvDuration("GATEWAY_QUERY_TIMEOUT", 5*time.Second),

		PayResultURL: getEnvOrDefault("PAY_RESULT_URL", "https://shop.example/pay/result"),

		PaymentStaleAfter:  getEnvDuration("PAYMENT_STALE_AFTER", 5*time.Minute),
		PaymentExpireAfter: getEnvDuration("PAYMENT_EXPIRE_AFTER", 30*time.Minute),
		PollInterval:       getEnvDuration("POLL_INTERVAL", time.Minute),
	}
}

func (c *Config) DBConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
