package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Log         struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CacheTTL        time.Duration `yaml:"cache_ttl" default:"15s"`
		RateLimit       struct {
			Capacity int     `yaml:"capacity" default:"30"`
			Refill   float64 `yaml:"refill_per_sec" default:"5"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Ingest struct {
		// binance reads the kline websocket, kafka consumes the candles topic
		Source       string   `yaml:"source" default:"binance"`
		Symbols      []string `yaml:"symbols"`
		Interval     string   `yaml:"interval" default:"1m"`
		HistoryLimit int      `yaml:"history_limit" default:"200"`
		WindowSize   int      `yaml:"window_size" default:"500"`
		BufferSize   int      `yaml:"buffer_size" default:"1000"`
		Persist      bool     `yaml:"persist"`
	} `yaml:"ingest"`
	Binance struct {
		APIKey         string        `yaml:"api_key"`
		APISecret      string        `yaml:"api_secret"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://stream.binance.com:9443/stream"`
		Testnet        bool          `yaml:"testnet"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"binance"`
	Analysis struct {
		FastPeriod       int     `yaml:"fast_period" default:"7"`
		SlowPeriod       int     `yaml:"slow_period" default:"25"`
		MAType           string  `yaml:"ma_type" default:"sma"`
		FastThreshold    float64 `yaml:"fast_threshold" default:"0.0375"`
		SlowThreshold    float64 `yaml:"slow_threshold" default:"0.052"`
		SlopeRadius      int     `yaml:"slope_radius" default:"1"`
		OscillatorPeriod int     `yaml:"oscillator_period" default:"14"`
	} `yaml:"analysis"`
	Tracker struct {
		MinGap    time.Duration `yaml:"min_gap" default:"5s"`
		Retention time.Duration `yaml:"retention" default:"30m"`
	} `yaml:"tracker"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		CandlesTopic string   `yaml:"candles_topic" default:"candles"`
		SignalsTopic string   `yaml:"signals_topic" default:"convergence-signals"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"convergewatch"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"convergewatch"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert"`
		WaitForAsync bool          `yaml:"wait_for_async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"convergewatch"`
	} `yaml:"redis"`
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (when present), then the YAML file, then applies
// environment overrides. Credentials are only read from the environment.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from environment variables resolved by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("BINANCE_API_KEY"); v != "" {
		c.Binance.APIKey = v
	}
	if v := getenv("BINANCE_API_SECRET"); v != "" {
		c.Binance.APISecret = v
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Ingest.Symbols = splitList(v)
	}
	if v := getenv("INGEST_SOURCE"); v != "" {
		c.Ingest.Source = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Ingest.Source != "binance" && c.Ingest.Source != "kafka" {
		return fmt.Errorf("ingest.source must be 'binance' or 'kafka', got '%s'", c.Ingest.Source)
	}
	switch c.Ingest.Interval {
	case "1m", "3m", "5m", "15m", "1h":
	default:
		return fmt.Errorf("ingest.interval %q is not supported", c.Ingest.Interval)
	}
	if len(c.Ingest.Symbols) == 0 {
		return fmt.Errorf("ingest.symbols cannot be empty")
	}
	if c.Ingest.Source == "kafka" && (!c.Kafka.Enabled || len(c.Kafka.Brokers) == 0) {
		return fmt.Errorf("ingest.source 'kafka' requires kafka.enabled and kafka.brokers")
	}
	if c.Ingest.Persist && !c.ClickHouse.Enabled {
		return fmt.Errorf("ingest.persist requires clickhouse.enabled")
	}
	a := c.Analysis
	if a.FastPeriod < 2 || a.SlowPeriod < 2 {
		return fmt.Errorf("analysis periods must be at least 2")
	}
	if a.FastPeriod >= a.SlowPeriod {
		return fmt.Errorf("analysis.fast_period (%d) must be below analysis.slow_period (%d)", a.FastPeriod, a.SlowPeriod)
	}
	if a.FastThreshold < 0 || a.SlowThreshold < 0 {
		return fmt.Errorf("analysis thresholds must be non-negative")
	}
	if c.Ingest.WindowSize < a.SlowPeriod+10 {
		return fmt.Errorf("ingest.window_size must leave at least 10 samples of the slow average")
	}
	if c.Tracker.MinGap <= 0 || c.Tracker.Retention <= c.Tracker.MinGap {
		return fmt.Errorf("tracker.retention must exceed tracker.min_gap")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
