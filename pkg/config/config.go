package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Throttler ThrottlerConfig `mapstructure:"throttler"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Generator GeneratorConfig `mapstructure:"generator"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`    // debug, info, warn, error
	Encoding string `mapstructure:"encoding"` // json, console
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type ThrottlerConfig struct {
	// GracePeriod bounds how long Unsubscribe waits for an in-flight callback.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	SinkTimeout time.Duration `mapstructure:"sink_timeout"`
	LogSink     bool          `mapstructure:"log_sink"`
}

type GatewayConfig struct {
	ValidTickers []string `mapstructure:"valid_tickers"`
	SendBuffer   int      `mapstructure:"send_buffer"`
}

type GeneratorConfig struct {
	Pairs    []string      `mapstructure:"pairs"`
	Interval time.Duration `mapstructure:"interval"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	// "throttler.grace_period" -> "THROTTLER_GRACE_PERIOD"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv alone does not populate nested structs on Unmarshal
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.encoding")
	bindEnv(v, "metrics.addr")
	bindEnv(v, "redis.addr", "redis.password", "redis.db", "redis.ttl")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "throttler.grace_period", "throttler.sink_timeout", "throttler.log_sink")
	bindEnv(v, "gateway.valid_tickers", "gateway.send_buffer")
	bindEnv(v, "generator.pairs", "generator.interval")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the invariants the binaries rely on at startup.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if c.Throttler.GracePeriod <= 0 {
		return fmt.Errorf("throttler grace period must be positive, got %s", c.Throttler.GracePeriod)
	}
	if c.Gateway.SendBuffer <= 0 {
		return fmt.Errorf("gateway send buffer must be positive, got %d", c.Gateway.SendBuffer)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("metrics.addr", ":9100")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "price_ticks")
	v.SetDefault("kafka.group_id", "price-throttler-group")

	v.SetDefault("throttler.grace_period", time.Second)
	v.SetDefault("throttler.sink_timeout", 2*time.Second)
	v.SetDefault("throttler.log_sink", false)

	v.SetDefault("gateway.valid_tickers", []string{"USD/TRY", "USD/BTC", "USD/ETH", "EUR/USD", "USD/JPY"})
	v.SetDefault("gateway.send_buffer", 256)

	v.SetDefault("generator.pairs", []string{"USD/TRY", "USD/BTC", "USD/ETH", "EUR/USD", "USD/JPY"})
	v.SetDefault("generator.interval", 100*time.Millisecond)
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
