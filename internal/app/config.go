package app

import (
	"os"
	"strconv"
	"time"
)

// Config описывает настройки запуска приложения.
// Все значения читаются из окружения с префиксом SHOP_.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// PostgresDSN пустой — работаем на in-memory хранилище.
	PostgresDSN string

	// KafkaBrokers пустой — события не публикуются наружу.
	KafkaBrokers string
	OrderTopic   string
	PaymentTopic string
	DLQTopic     string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
}

// DefaultConfig возвращает базовые адреса и параметры.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		MetricsAddr:        ":9090",
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
	}
}

// LoadConfig собирает конфигурацию из переменных окружения.
func LoadConfig() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("SHOP_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("SHOP_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	cfg.PostgresDSN = os.Getenv("SHOP_POSTGRES_DSN")
	cfg.KafkaBrokers = os.Getenv("SHOP_KAFKA_BROKERS")
	cfg.OrderTopic = os.Getenv("SHOP_ORDER_TOPIC")
	cfg.PaymentTopic = os.Getenv("SHOP_PAYMENT_TOPIC")
	cfg.DLQTopic = os.Getenv("SHOP_DLQ_TOPIC")

	if v := os.Getenv("SHOP_OUTBOX_POLL_INTERVAL"); v != "" {
		if interval, err := time.ParseDuration(v); err == nil && interval > 0 {
			cfg.OutboxPollInterval = interval
		}
	}
	if v := os.Getenv("SHOP_OUTBOX_BATCH_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			cfg.OutboxBatchSize = size
		}
	}

	return cfg
}
