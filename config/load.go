package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env        string           `yaml:"env"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	BaseAsset  string           `yaml:"baseAsset"`
	Markets    []string         `yaml:"markets"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Tradebot   TradebotConfig   `yaml:"tradebot"`
	Store      StoreConfig      `yaml:"store"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitor    MonitorConfig    `yaml:"monitor"`
}

type ExchangeConfig struct {
	BaseURL           string  `yaml:"baseURL"`
	APIKey            string  `yaml:"apiKey"`
	APISecret         string  `yaml:"apiSecret"`
	CredentialsFile   string  `yaml:"credentialsFile"` // AES-GCM 加密凭证文件，apiKey 为空时使用
	RequestTimeoutSec int     `yaml:"requestTimeoutSec"`
	RateLimit         float64 `yaml:"rateLimit"` // 每秒请求令牌数
	RateBurst         int     `yaml:"rateBurst"`
}

// AggregatorConfig 控制行情归集：区间长度、轮询节奏、空转阈值。
type AggregatorConfig struct {
	IntervalSec       int `yaml:"intervalSec"`
	PollShortSec      int `yaml:"pollShortSec"`
	PollLongSec       int `yaml:"pollLongSec"`
	StaleThreshold    int `yaml:"staleThreshold"`
	NewEntryThreshold int `yaml:"newEntryThreshold"` // 新成交条数低于该值时放慢轮询
}

// ExecutorConfig 控制下单：重试预算、退避节奏、加价比例、金额精度。
type ExecutorConfig struct {
	RetryBudget     int     `yaml:"retryBudget"`
	BackoffSec      int     `yaml:"backoffSec"`
	ConfirmDelaySec int     `yaml:"confirmDelaySec"`
	BufferPercent   float64 `yaml:"bufferPercent"`
	Scale           int32   `yaml:"scale"`
}

type TradebotConfig struct {
	Enabled       bool    `yaml:"enabled"`
	BaseQuantity  float64 `yaml:"baseQuantity"` // 每次买入动用的计价币数量
	VolumeSpike   float64 `yaml:"volumeSpike"`  // 成交量相对滚动均值的触发倍数
	Lookback      int     `yaml:"lookback"`
	TakeProfitPct float64 `yaml:"takeProfitPct"`
	StopLossPct   float64 `yaml:"stopLossPct"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level      string   `yaml:"level"`      // debug, info, warn, error
	Format     string   `yaml:"format"`     // json 或 console
	Outputs    []string `yaml:"outputs"`    // stdout, file
	OutputFile string   `yaml:"outputFile"` // 日志文件路径
	MaxSize    int      `yaml:"maxSize"`    // 单个日志文件最大MB
	MaxBackups int      `yaml:"maxBackups"` // 保留的旧日志文件数
	MaxAge     int      `yaml:"maxAge"`     // 保留天数
}

type MonitorConfig struct {
	MetricsAddr string `yaml:"metricsAddr"` // Prometheus 监听地址，留空则关闭
	FeedAddr    string `yaml:"feedAddr"`    // WebSocket 行情推送地址，留空则关闭
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("CROCKET_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("CROCKET_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("CROCKET_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	return cfg, Validate(cfg)
}

// Defaults 返回与原始部署一致的默认节奏参数。
func Defaults() AppConfig {
	return AppConfig{
		BaseAsset: "BTC",
		Aggregator: AggregatorConfig{
			IntervalSec:       60,
			PollShortSec:      30,
			PollLongSec:       60,
			StaleThreshold:    2,
			NewEntryThreshold: 30,
		},
		Executor: ExecutorConfig{
			RetryBudget:     3,
			BackoffSec:      1,
			ConfirmDelaySec: 3,
			BufferPercent:   5,
			Scale:           8,
		},
		Exchange: ExchangeConfig{
			RequestTimeoutSec: 15,
			RateLimit:         5,
			RateBurst:         10,
		},
		Tradebot: TradebotConfig{
			VolumeSpike:   3,
			Lookback:      20,
			TakeProfitPct: 5,
			StopLossPct:   3,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"stdout"},
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Interval helpers: yaml 中以秒配置，运行期统一用 time.Duration。

func (c AggregatorConfig) Interval() time.Duration { return time.Duration(c.IntervalSec) * time.Second }

func (c AggregatorConfig) PollShort() time.Duration {
	return time.Duration(c.PollShortSec) * time.Second
}

func (c AggregatorConfig) PollLong() time.Duration {
	return time.Duration(c.PollLongSec) * time.Second
}

func (c ExecutorConfig) Backoff() time.Duration { return time.Duration(c.BackoffSec) * time.Second }

func (c ExecutorConfig) ConfirmDelay() time.Duration {
	return time.Duration(c.ConfirmDelaySec) * time.Second
}
