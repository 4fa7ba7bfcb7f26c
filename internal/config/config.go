package config

import (
	"os"
)

import (
	"gopkg.in/yaml.v3"
)

// ServerCfg —— HTTP サーバ設定
type ServerCfg struct {
	HTTPAddr          string `yaml:"httpAddr"`          // 監視アドレス 例 ":8080"
	RequestTimeoutSec int    `yaml:"requestTimeoutSec"` // 1リクエストの全体タイムアウト（秒）
}

// RedisCfg —— Redis 接続設定
type RedisCfg struct {
	Addr           string `yaml:"addr"`           // Redis address, e.g. "127.0.0.1:6379"
	Password       string `yaml:"password"`       // Redis password
	DB             int    `yaml:"db"`             // Redis DB index
	Prefix         string `yaml:"prefix"`         // Key prefix
	PoolSize       int    `yaml:"poolSize"`       // Connection pool size
	MinIdleConns   int    `yaml:"minIdleConns"`   // Minimum idle connections
	MaxRetries     int    `yaml:"maxRetries"`     // Command retry count
	ReadTimeoutMs  int    `yaml:"readTimeoutMs"`  // Read timeout (ms)
	WriteTimeoutMs int    `yaml:"writeTimeoutMs"` // Write timeout (ms)
	DialTimeoutMs  int    `yaml:"dialTimeoutMs"`  // Dial timeout (ms)
}

// AICfg —— Gemini API 設定
type AICfg struct {
	APIKey     string `yaml:"apiKey"`     // 例 "${GEMINI_API_KEY}"
	Model      string `yaml:"model"`      // default "gemini-2.0-flash-exp"
	BaseURL    string `yaml:"baseURL"`    // override for tests / proxies
	TimeoutSec int    `yaml:"timeoutSec"` // per-call HTTP timeout (sec)
}

// GenerationCfg —— 生成リトライ設定
type GenerationCfg struct {
	TargetCount int   `yaml:"targetCount"` // 必ず返す枚数 (default 4)
	MaxAttempts int   `yaml:"maxAttempts"` // default 3
	BaseDelayMs int64 `yaml:"baseDelayMs"` // バックオフ基準 (default 1000)
}

// BreakerCfg —— サーキットブレーカー設定
type BreakerCfg struct {
	Threshold int   `yaml:"threshold"` // 連続失敗回数 (default 5)
	OpenMs    int64 `yaml:"openMs"`    // 開放保持時間 (default 60000)
}

// QuotaCfg —— 月次クォータ設定
type QuotaCfg struct {
	DefaultMonthlyLimit int64 `yaml:"defaultMonthlyLimit"` // free tier (default 5)
}

// AuthCfg —— トークン検証設定
type AuthCfg struct {
	Secret string `yaml:"secret"` // HMAC secret, e.g. "${AUTH_SECRET}"
}

// Features —— 特性開関
type Features struct {
	UsageLog      string `yaml:"usageLog"`      // "redis_stream" | "none"
	LocalFallback bool   `yaml:"localFallback"` // Redis なしでインメモリ動作（開発用）
}

// Config —— 全量設定
type Config struct {
	Server     ServerCfg     `yaml:"server"`
	Redis      RedisCfg      `yaml:"redis"`
	AI         AICfg         `yaml:"ai"`
	Generation GenerationCfg `yaml:"generation"`
	Breaker    BreakerCfg    `yaml:"breaker"`
	Quota      QuotaCfg      `yaml:"quota"`
	Auth       AuthCfg       `yaml:"auth"`
	Features   Features      `yaml:"features"`
}

// Load —— YAML ファイルから設定を読み込む（環境変数を展開）
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(b))
	var c Config
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.RequestTimeoutSec <= 0 {
		c.Server.RequestTimeoutSec = 120
	}
	if c.AI.Model == "" {
		c.AI.Model = "gemini-2.0-flash-exp"
	}
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if c.AI.TimeoutSec <= 0 {
		c.AI.TimeoutSec = 60
	}
	if c.Generation.TargetCount <= 0 {
		c.Generation.TargetCount = 4
	}
	if c.Generation.MaxAttempts <= 0 {
		c.Generation.MaxAttempts = 3
	}
	if c.Generation.BaseDelayMs <= 0 {
		c.Generation.BaseDelayMs = 1000
	}
	if c.Breaker.Threshold <= 0 {
		c.Breaker.Threshold = 5
	}
	if c.Breaker.OpenMs <= 0 {
		c.Breaker.OpenMs = 60000
	}
	if c.Quota.DefaultMonthlyLimit <= 0 {
		c.Quota.DefaultMonthlyLimit = 5
	}
	if c.Features.UsageLog == "" {
		c.Features.UsageLog = "redis_stream"
	}
}
