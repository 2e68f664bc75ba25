// Package config loads the engine configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cefalpha/almengine/internal/messaging"
)

// QueuesConfig names the broker queues the engine consumes and publishes.
type QueuesConfig struct {
	Prices       string `mapstructure:"prices" yaml:"prices"`
	FXRates      string `mapstructure:"fx_rates" yaml:"fx_rates"`
	OrderStatus  string `mapstructure:"order_status" yaml:"order_status"`
	RouteStatus  string `mapstructure:"route_status" yaml:"route_status"`
	Fills        string `mapstructure:"fills" yaml:"fills"`
	Instructions string `mapstructure:"instructions" yaml:"instructions"`
}

// EngineConfig holds the decision-engine cadences and pricing switches.
type EngineConfig struct {
	RefIndexInterval  time.Duration `mapstructure:"ref_index_interval" yaml:"ref_index_interval"`
	DiscountInterval  time.Duration `mapstructure:"discount_interval" yaml:"discount_interval"`
	PairInterval      time.Duration `mapstructure:"pair_interval" yaml:"pair_interval"`
	UseLastWhenClosed bool          `mapstructure:"use_last_when_closed" yaml:"use_last_when_closed"`
}

// RedisConfig points at the forecast cache.
type RedisConfig struct {
	Address        string        `mapstructure:"address" yaml:"address"`
	Password       string        `mapstructure:"password" yaml:"password"`
	DB             int           `mapstructure:"db" yaml:"db"`
	ForecastPrefix string        `mapstructure:"forecast_prefix" yaml:"forecast_prefix"`
	ForecastTTL    time.Duration `mapstructure:"forecast_ttl" yaml:"forecast_ttl"`
}

// DatabaseConfig points at the reporting store.
type DatabaseConfig struct {
	DSN           string        `mapstructure:"dsn" yaml:"dsn"`
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
}

// OpsConfig configures the health/metrics endpoint.
type OpsConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Config is the application configuration. Environment selects the venue
// routing: "production" publishes live instructions, anything else routes to
// the simulation publisher.
type Config struct {
	Environment string           `mapstructure:"environment" yaml:"environment"`
	LogLevel    string           `mapstructure:"log_level" yaml:"log_level"`
	Broker      messaging.Config `mapstructure:"broker" yaml:"broker"`
	Queues      QueuesConfig     `mapstructure:"queues" yaml:"queues"`
	Engine      EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Redis       RedisConfig      `mapstructure:"redis" yaml:"redis"`
	Database    DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Ops         OpsConfig        `mapstructure:"ops" yaml:"ops"`
}

// Production reports whether instructions route to the live venue.
func (c *Config) Production() bool { return c.Environment == "production" }

// Load reads configuration from the given file (optional) with ALM_-prefixed
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("environment", "simulation")
	v.SetDefault("log_level", "info")

	def := messaging.DefaultConfig()
	v.SetDefault("broker.brokers", def.Brokers)
	v.SetDefault("broker.dial_timeout", def.DialTimeout)
	v.SetDefault("broker.connect_backoff", def.ConnectBackoff)
	v.SetDefault("broker.reconnect_backoff", def.ReconnectBackoff)
	v.SetDefault("broker.group_prefix", def.GroupPrefix)
	v.SetDefault("broker.write_timeout", def.WriteTimeout)

	v.SetDefault("queues.prices", "md.security-prices")
	v.SetDefault("queues.fx_rates", "md.fx-rates")
	v.SetDefault("queues.order_status", "oms.order-status")
	v.SetDefault("queues.route_status", "oms.route-status")
	v.SetDefault("queues.fills", "oms.fills")
	v.SetDefault("queues.instructions", "oms.instructions")

	v.SetDefault("engine.ref_index_interval", 15*time.Second)
	v.SetDefault("engine.discount_interval", 30*time.Second)
	v.SetDefault("engine.pair_interval", 15*time.Second)
	v.SetDefault("engine.use_last_when_closed", false)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.forecast_prefix", "forecast:")
	v.SetDefault("redis.forecast_ttl", 5*time.Minute)

	v.SetDefault("database.flush_interval", time.Minute)

	v.SetDefault("ops.host", "0.0.0.0")
	v.SetDefault("ops.port", 9090)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("ALM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
