// Package config 提供了基于 viper 的 TOML 配置加载、环境变量覆盖、结构体校验与热更新能力。
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/wyfcoding/pricer/logging"
	"github.com/wyfcoding/pricer/validator"
)

// EnvPrefix 环境变量前缀，例如 PRICER_PRICING_MAX_STEPS 覆盖 pricing.max_steps。
const EnvPrefix = "PRICER"

// Config 全局顶级配置结构.
type Config struct {
	Version    string           `mapstructure:"version"    toml:"version"    json:"version"`
	Server     ServerConfig     `mapstructure:"server"     toml:"server"     json:"server"`
	Log        LogConfig        `mapstructure:"log"        toml:"log"        json:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    toml:"metrics"    json:"metrics"`
	Pricing    PricingConfig    `mapstructure:"pricing"    toml:"pricing"    json:"pricing"`
	MonteCarlo MonteCarloConfig `mapstructure:"montecarlo" toml:"montecarlo" json:"montecarlo"`
	Scenario   ScenarioConfig   `mapstructure:"scenario"   toml:"scenario"   json:"scenario"`
	Tracing    TracingConfig    `mapstructure:"tracing"    toml:"tracing"    json:"tracing"`
	Cache      CacheConfig      `mapstructure:"cache"      toml:"cache"      json:"cache"`
	Audit      AuditConfig      `mapstructure:"audit"      toml:"audit"      json:"audit"`
}

// ServerConfig 定义服务器运行时的基础网络与环境参数.
type ServerConfig struct {
	Name        string     `mapstructure:"name"        toml:"name"        json:"name"        validate:"required"`
	Environment string     `mapstructure:"environment" toml:"environment" json:"environment" validate:"oneof=dev test prod"`
	HTTP        HTTPConfig `mapstructure:"http"        toml:"http"        json:"http"`
}

// HTTPConfig HTTP 服务参数。
type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"                toml:"addr"                json:"addr"`
	Port              int           `mapstructure:"port"                toml:"port"                json:"port"                validate:"min=1,max=65535"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        toml:"read_timeout"        json:"read_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" toml:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       toml:"write_timeout"       json:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        toml:"idle_timeout"        json:"idle_timeout"`
	SlowThreshold     time.Duration `mapstructure:"slow_threshold"      toml:"slow_threshold"      json:"slow_threshold"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"      toml:"max_body_bytes"      json:"max_body_bytes"      validate:"gte=0"`
	RateLimit         float64       `mapstructure:"rate_limit"          toml:"rate_limit"          json:"rate_limit"          validate:"gte=0"` // 每个客户端 IP 每秒请求数，0 表示不限流
	RateBurst         int           `mapstructure:"rate_burst"          toml:"rate_burst"          json:"rate_burst"          validate:"gte=0"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       json:"level"       validate:"oneof=debug info warn error"`
	File       string `mapstructure:"file"        toml:"file"        json:"file"`        // 日志文件路径。
	Stdout     bool   `mapstructure:"stdout"      toml:"stdout"      json:"stdout"`      // 写文件时是否同时输出到 stdout。
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"    json:"max_size"`    // 单个文件最大大小 (MB)。
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" json:"max_backups"` // 最大备份数。
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"     json:"max_age"`     // 最大保留天数。
	Compress   bool   `mapstructure:"compress"    toml:"compress"    json:"compress"`    // 是否启用压缩。
}

// MetricsConfig 普罗米修斯监控指标暴露配置. Addr 为空时挂载在主 HTTP 服务上。
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr"    toml:"addr"    json:"addr"`
	Path    string `mapstructure:"path"    toml:"path"    json:"path" validate:"required,startswith=/"`
}

// PricingConfig 二叉树定价参数。
type PricingConfig struct {
	DefaultSteps       int     `mapstructure:"default_steps"        toml:"default_steps"        json:"default_steps"        validate:"gte=0,ltefield=MaxSteps"`
	MaxSteps           int     `mapstructure:"max_steps"            toml:"max_steps"            json:"max_steps"            validate:"gte=1"`
	MaxAggregatedSteps int     `mapstructure:"max_aggregated_steps" toml:"max_aggregated_steps" json:"max_aggregated_steps" validate:"gte=1"`
	Precision          int32   `mapstructure:"precision"            toml:"precision"            json:"precision"            validate:"gte=0,lte=16"`
	Tolerance          float64 `mapstructure:"tolerance"            toml:"tolerance"            json:"tolerance"            validate:"gt=0"`
	BatchConcurrency   int     `mapstructure:"batch_concurrency"    toml:"batch_concurrency"    json:"batch_concurrency"    validate:"gte=1"`
	MaxBatchSize       int     `mapstructure:"max_batch_size"       toml:"max_batch_size"       json:"max_batch_size"       validate:"gte=1"`
	RecordExercise     bool    `mapstructure:"record_exercise"      toml:"record_exercise"      json:"record_exercise"`
}

// MonteCarloConfig 蒙特卡洛与 LSM 参数。
type MonteCarloConfig struct {
	Paths      int     `mapstructure:"paths"       toml:"paths"       json:"paths"       validate:"gt=1"`
	Workers    int     `mapstructure:"workers"     toml:"workers"     json:"workers"     validate:"gte=1"`
	Seed       uint64  `mapstructure:"seed"        toml:"seed"        json:"seed"`
	TimeSteps  int     `mapstructure:"time_steps"  toml:"time_steps"  json:"time_steps"  validate:"gte=1"` // 路径依赖定价与路径采样的默认时间步数
	LSMDegree  int     `mapstructure:"lsm_degree"  toml:"lsm_degree"  json:"lsm_degree"  validate:"gte=1,lte=6"`
	LSMPaths   int     `mapstructure:"lsm_paths"   toml:"lsm_paths"   json:"lsm_paths"   validate:"gt=1"`
	LSMSteps   int     `mapstructure:"lsm_steps"   toml:"lsm_steps"   json:"lsm_steps"   validate:"gte=1"`
	MaxStdErrs float64 `mapstructure:"max_stderrs" toml:"max_stderrs" json:"max_stderrs" validate:"gt=0"`  // 交叉校验允许的最大标准误差倍数
	MaxRunning int     `mapstructure:"max_running" toml:"max_running" json:"max_running" validate:"gte=0"` // 同时进行的交叉校验数，0 表示不限制
}

// ScenarioConfig 命令行批量定价场景：同一标的与模型参数下的一组期权。
type ScenarioConfig struct {
	Spot         float64            `mapstructure:"spot"          toml:"spot"          json:"spot"          validate:"gt=0"`
	Maturity     float64            `mapstructure:"maturity"      toml:"maturity"      json:"maturity"      validate:"gt=0"`
	Steps        int                `mapstructure:"steps"         toml:"steps"         json:"steps"         validate:"gte=1"`
	Method       string             `mapstructure:"method"        toml:"method"        json:"method"`
	Binomial     BinomialConfig     `mapstructure:"binomial"      toml:"binomial"      json:"binomial"`
	BlackScholes BlackScholesConfig `mapstructure:"black_scholes" toml:"black_scholes" json:"black_scholes"`
	Options      []OptionConfig     `mapstructure:"options"       toml:"options"       json:"options"       validate:"dive"`
}

// BinomialConfig 直接给定的二叉树离散参数。
type BinomialConfig struct {
	Up   float64 `mapstructure:"up"   toml:"up"   json:"up"`
	Down float64 `mapstructure:"down" toml:"down" json:"down"`
	Rate float64 `mapstructure:"rate" toml:"rate" json:"rate"`
}

// BlackScholesConfig 连续时间模型参数。
type BlackScholesConfig struct {
	Sigma float64 `mapstructure:"sigma" toml:"sigma" json:"sigma" validate:"gte=0"`
	Rate  float64 `mapstructure:"rate"  toml:"rate"  json:"rate"`
}

// OptionConfig 场景中的单个期权。
type OptionConfig struct {
	Kind    string    `mapstructure:"kind"    toml:"kind"    json:"kind"    validate:"oneof=call put double_digit"`
	Strikes []float64 `mapstructure:"strikes" toml:"strikes" json:"strikes" validate:"min=1,max=2"`
}

// TracingConfig OpenTelemetry 追踪配置。Endpoint 为空时只在进程内生成 Span，用于日志关联。
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"      json:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"     json:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio" toml:"sample_ratio" json:"sample_ratio" validate:"gte=0,lte=1"`
}

// CacheConfig 报价结果本地缓存。
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" toml:"enabled" json:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"     toml:"ttl"     json:"ttl"     validate:"required_if=Enabled true"`
	MaxMB   int           `mapstructure:"max_mb"  toml:"max_mb"  json:"max_mb"  validate:"gte=0"`
}

// AuditConfig 定时交叉校验。使用 scenario 中的标的与 Black-Scholes 参数。
type AuditConfig struct {
	Enabled  bool          `mapstructure:"enabled"  toml:"enabled"  json:"enabled"`
	Schedule string        `mapstructure:"schedule" toml:"schedule" json:"schedule" validate:"required_if=Enabled true"` // cron 表达式，例如 "@every 10m"
	Timeout  time.Duration `mapstructure:"timeout"  toml:"timeout"  json:"timeout"`
	Option   string        `mapstructure:"option"   toml:"option"   json:"option"   validate:"oneof=call put"`
	Strike   float64       `mapstructure:"strike"   toml:"strike"   json:"strike"   validate:"gte=0"`
	Steps    int           `mapstructure:"steps"    toml:"steps"    json:"steps"    validate:"gte=1"`
	Paths    int           `mapstructure:"paths"    toml:"paths"    json:"paths"    validate:"gte=0"`
}

var (
	mu        sync.Mutex
	vInstance = viper.New()
	onReload  []func(*Config)
)

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	onReload = append(onReload, hook)
}

// setDefaults 与 configs/pricer.toml 保持一致，缺省项也能被环境变量覆盖。
func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "dev")
	v.SetDefault("server.name", "pricer")
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.http.addr", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", 10*time.Second)
	v.SetDefault("server.http.read_header_timeout", 5*time.Second)
	v.SetDefault("server.http.write_timeout", 60*time.Second)
	v.SetDefault("server.http.idle_timeout", 120*time.Second)
	v.SetDefault("server.http.slow_threshold", 2*time.Second)
	v.SetDefault("server.http.max_body_bytes", 1<<20)
	v.SetDefault("server.http.rate_limit", 0)
	v.SetDefault("server.http.rate_burst", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("pricing.default_steps", 100)
	v.SetDefault("pricing.max_steps", 5000)
	v.SetDefault("pricing.max_aggregated_steps", 1000)
	v.SetDefault("pricing.precision", 6)
	v.SetDefault("pricing.tolerance", 0.01)
	v.SetDefault("pricing.batch_concurrency", 4)
	v.SetDefault("pricing.max_batch_size", 256)
	v.SetDefault("pricing.record_exercise", false)

	v.SetDefault("montecarlo.paths", 100000)
	v.SetDefault("montecarlo.workers", 4)
	v.SetDefault("montecarlo.seed", 20240601)
	v.SetDefault("montecarlo.time_steps", 50)
	v.SetDefault("montecarlo.lsm_degree", 2)
	v.SetDefault("montecarlo.lsm_paths", 20000)
	v.SetDefault("montecarlo.lsm_steps", 50)
	v.SetDefault("montecarlo.max_stderrs", 3)
	v.SetDefault("montecarlo.max_running", 2)

	v.SetDefault("scenario.spot", 100)
	v.SetDefault("scenario.maturity", 1)
	v.SetDefault("scenario.steps", 100)
	v.SetDefault("scenario.method", "iterative")
	v.SetDefault("scenario.black_scholes.sigma", 0.2)
	v.SetDefault("scenario.black_scholes.rate", 0.05)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.max_mb", 64)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.schedule", "@every 10m")
	v.SetDefault("audit.timeout", time.Minute)
	v.SetDefault("audit.option", "put")
	v.SetDefault("audit.strike", 100)
	v.SetDefault("audit.steps", 500)
	v.SetDefault("audit.paths", 0)
}

// Load 读取 TOML 配置文件，叠加环境变量后反序列化并校验。
// path 为空时只使用默认值与环境变量。
func Load(path string, conf *Config) error {
	mu.Lock()
	defer mu.Unlock()

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config error: %w", err)
		}
	}

	if err := decode(v, conf); err != nil {
		return err
	}
	vInstance = v
	return nil
}

func decode(v *viper.Viper, conf *Config) error {
	var next Config
	if err := v.Unmarshal(&next); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}
	if err := validator.Struct(next); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	*conf = next
	return nil
}

// Watch 监听配置文件变化：重新加载、校验、更新日志级别并触发已注册的回调。
// 校验失败时保留旧配置。
func Watch(conf *Config) {
	mu.Lock()
	v := vInstance
	mu.Unlock()

	v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name, "op", event.Op.String())
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		mu.Lock()
		err := decode(v, conf)
		hooks := append([]func(*Config){}, onReload...)
		mu.Unlock()
		if err != nil {
			slog.Error("config reload rejected", "error", err)
			return
		}

		logging.SetLevel(conf.Log.Level)
		slog.Info("config hot-reloaded and validated successfully")
		for _, hook := range hooks {
			hook(conf)
		}
	})
	v.WatchConfig()
}

// PrintWithMask 打印当前生效配置。
func PrintWithMask(conf *Config) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)
		return
	}

	var configMap map[string]any
	if unmarshalErr := json.Unmarshal(data, &configMap); unmarshalErr != nil {
		slog.Error("failed to unmarshal config for masking", "error", unmarshalErr)
		return
	}
	mask(configMap)

	slog.Info("current effective configuration", "config", configMap)
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)
			continue
		}
		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"
				break
			}
		}
	}
}

// GetViper 返回最近一次 Load 使用的 Viper 实例.
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	return vInstance
}
