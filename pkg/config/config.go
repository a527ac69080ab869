package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"CoinCast/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Coin maps a lowercase symbol to its model and scaler artifacts.
// Relative paths are resolved against Artifacts.Dir.
type Coin struct {
	Symbol        string `yaml:"symbol" validate:"required,lowercase"`
	Model         string `yaml:"model" validate:"required"`
	Scaler        string `yaml:"scaler" validate:"required"`
	HistorySymbol string `yaml:"history_symbol"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8000" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Metrics struct {
		Path string `yaml:"path" default:"/metrics" validate:"startswith=/"`
	} `yaml:"metrics"`
	Predict struct {
		LookBack int `yaml:"look_back" default:"60" validate:"gte=1"`
	} `yaml:"predict"`
	Artifacts struct {
		Dir   string `yaml:"dir" default:"."`
		Cache struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"cache"`
	} `yaml:"artifacts"`
	Coins           []Coin `yaml:"coins" validate:"dive"`
	PredictionCache struct {
		Backend    string        `yaml:"backend" default:"none" validate:"oneof=none memory redis layered"`
		TTL        time.Duration `yaml:"ttl" default:"30s"`
		// 0 means unbounded; a pointer keeps an explicit 0 from being defaulted
		MaxEntries *int          `yaml:"max_entries" default:"10000" validate:"required,gte=0"`
		LocalTTL   time.Duration `yaml:"local_ttl" default:"5s"`
	} `yaml:"prediction_cache"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"coincast"`
	} `yaml:"redis"`
	History struct {
		Enabled          bool              `yaml:"enabled"`
		DefaultTimeframe string            `yaml:"default_timeframe" default:"1m"`
		Tables           map[string]string `yaml:"tables"`
		MaxCandles       int               `yaml:"max_candles" default:"5000" validate:"gte=1"`
	} `yaml:"history"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"coincast"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled        bool     `yaml:"enabled"`
		Brokers        []string `yaml:"brokers"`
		ArtifactsTopic string   `yaml:"artifacts_topic" default:"coincast.artifacts"`
		RequiredAcks   *int     `yaml:"required_acks" default:"-1" validate:"required,oneof=-1 0 1"`
		Compression    string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			BatchSize    int           `yaml:"batch_size" default:"100" validate:"gte=1"`
			BatchTimeout time.Duration `yaml:"batch_timeout" default:"10ms"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"coincast"`
			Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"16"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
}

// DefaultCoins is the registry used when the config file lists none.
func DefaultCoins() []Coin {
	return []Coin{
		{Symbol: "eth", Model: "eth_model_and_scaler/eth_model.json", Scaler: "eth_model_and_scaler/eth_scaler.json", HistorySymbol: "ETHUSDT"},
		{Symbol: "bnb", Model: "bnb_model_and_scaler/bnb_model.json", Scaler: "bnb_model_and_scaler/bnb_scaler.json", HistorySymbol: "BNBUSDT"},
	}
}

var validate = validator.New()

// Default returns a validated configuration built only from defaults.
func Default() *Config {
	var c Config
	if err := c.applyDefaults(); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.applyDefaults(); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return err
	}
	if len(c.Coins) == 0 {
		c.Coins = DefaultCoins()
	}
	if len(c.History.Tables) == 0 {
		c.History.Tables = map[string]string{
			"1m": c.ClickHouse.Database + ".candles_1m",
			"1h": c.ClickHouse.Database + ".candles_1h",
			"1d": c.ClickHouse.Database + ".candles_1d",
		}
	}
	return nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("COINCAST_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := getenv("COINCAST_ARTIFACT_DIR"); v != "" {
		c.Artifacts.Dir = v
	}
	if v := getenv("COINCAST_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_GROUP_ID"); v != "" {
		c.Kafka.Consumer.GroupID = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Coins))
	for _, coin := range c.Coins {
		if _, dup := seen[coin.Symbol]; dup {
			return fmt.Errorf("coins: duplicate symbol %q", coin.Symbol)
		}
		seen[coin.Symbol] = struct{}{}
	}

	if c.History.Enabled {
		if _, ok := c.History.Tables[c.History.DefaultTimeframe]; !ok {
			return fmt.Errorf("history.default_timeframe %q has no table", c.History.DefaultTimeframe)
		}
		if c.History.MaxCandles < c.Predict.LookBack {
			return fmt.Errorf("history.max_candles must be >= predict.look_back (%d)", c.Predict.LookBack)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.PredictionCache.Backend != "none" && c.PredictionCache.TTL <= 0 {
		return fmt.Errorf("prediction_cache.ttl must be positive")
	}
	return nil
}
