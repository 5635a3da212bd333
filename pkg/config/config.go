package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// UpstreamConfig 行情后端配置
type UpstreamConfig struct {
	BaseURL        string        // 后端地址，例如 http://127.0.0.1:8000
	Token          string        // access_token（可选）
	MarketDataPath string        // 默认 /api/market-data
	EventsPath     string        // 默认 /api/events
	Timeout        time.Duration // 行情请求超时
	RetryCount     int           // 行情请求重试次数（默认 0：失败等下一次定时刷新）
	ReconnectDelay time.Duration // SSE 断线重连延迟（固定，默认 3s）
}

// RefreshConfig 刷新调度配置
type RefreshConfig struct {
	Interval  time.Duration // 定时刷新间隔（默认 5s）
	TopN      int           // 排行榜条数（默认 10）
	MaxTopN   int           // 条数上限（默认 50）
	Serialize bool          // 同一时间只允许一个刷新在进行
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Listen          string
	RefreshBurst    int // 手动刷新令牌桶容量
	RefreshPerSec   int // 手动刷新每秒补充令牌数
	LeaderboardTTL  time.Duration
	KeepAlive       time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig 历史存储配置
type StoreConfig struct {
	Driver      string        // sqlite / badger / none
	Path        string
	MinInterval time.Duration // 两条刷新记录的最小间隔（0 表示每次刷新都记录）
	QueueSize   int           // 异步写入队列长度
}

// RedisConfig Redis 发布配置（Addr 为空则不启用）
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// MockGroup 模拟行情的一个分组
type MockGroup struct {
	Name    string   `yaml:"name" json:"name"`
	Order   int      `yaml:"order" json:"order"`
	Symbols []string `yaml:"symbols" json:"symbols"`
	Halted  []string `yaml:"halted" json:"halted"` // 无实时行情的标的（价格为 null）
}

// MockFeedConfig 模拟行情后端配置
type MockFeedConfig struct {
	Listen        string
	Seed          int64
	TradeInterval time.Duration
	Heartbeat     time.Duration
	Groups        []MockGroup
}

// Config 应用配置
type Config struct {
	Upstream    UpstreamConfig
	Refresh     RefreshConfig
	Server      ServerConfig
	Store       StoreConfig
	Redis       RedisConfig
	Log         LogConfig
	MockFeed    MockFeedConfig
	MetricsAddr string // 为空则不启动 /debug/vars
	StateDir    string // 偏好设置与预热数据目录
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
// 毫秒字段为 0 表示使用默认值
type ConfigFile struct {
	Upstream struct {
		BaseURL          string `yaml:"base_url" json:"base_url"`
		Token            string `yaml:"token" json:"token"`
		MarketDataPath   string `yaml:"market_data_path" json:"market_data_path"`
		EventsPath       string `yaml:"events_path" json:"events_path"`
		TimeoutMs        int    `yaml:"timeout_ms" json:"timeout_ms"`
		RetryCount       int    `yaml:"retry_count" json:"retry_count"`
		ReconnectDelayMs int    `yaml:"reconnect_delay_ms" json:"reconnect_delay_ms"`
	} `yaml:"upstream" json:"upstream"`
	Refresh struct {
		IntervalMs int   `yaml:"interval_ms" json:"interval_ms"`
		TopN       int   `yaml:"top_n" json:"top_n"`
		MaxTopN    int   `yaml:"max_top_n" json:"max_top_n"`
		Serialize  *bool `yaml:"serialize" json:"serialize"`
	} `yaml:"refresh" json:"refresh"`
	Server struct {
		Listen           string `yaml:"listen" json:"listen"`
		RefreshBurst     int    `yaml:"refresh_burst" json:"refresh_burst"`
		RefreshPerSec    int    `yaml:"refresh_per_sec" json:"refresh_per_sec"`
		LeaderboardTTLMs int    `yaml:"leaderboard_ttl_ms" json:"leaderboard_ttl_ms"`
		KeepAliveMs      int    `yaml:"keepalive_ms" json:"keepalive_ms"`
	} `yaml:"server" json:"server"`
	Store struct {
		Driver        string `yaml:"driver" json:"driver"`
		Path          string `yaml:"path" json:"path"`
		MinIntervalMs int    `yaml:"min_interval_ms" json:"min_interval_ms"`
		QueueSize     int    `yaml:"queue_size" json:"queue_size"`
	} `yaml:"store" json:"store"`
	Redis struct {
		Addr      string `yaml:"addr" json:"addr"`
		Password  string `yaml:"password" json:"password"`
		DB        int    `yaml:"db" json:"db"`
		KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
	} `yaml:"redis" json:"redis"`
	Log struct {
		Level      string `yaml:"level" json:"level"`
		File       string `yaml:"file" json:"file"`
		MaxSize    int    `yaml:"max_size" json:"max_size"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAge     int    `yaml:"max_age" json:"max_age"`
		Compress   bool   `yaml:"compress" json:"compress"`
	} `yaml:"log" json:"log"`
	MockFeed struct {
		Listen          string      `yaml:"listen" json:"listen"`
		Seed            int64       `yaml:"seed" json:"seed"`
		TradeIntervalMs int         `yaml:"trade_interval_ms" json:"trade_interval_ms"`
		HeartbeatMs     int         `yaml:"heartbeat_ms" json:"heartbeat_ms"`
		Groups          []MockGroup `yaml:"groups" json:"groups"`
	} `yaml:"mockfeed" json:"mockfeed"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	StateDir    string `yaml:"state_dir" json:"state_dir"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:        "http://127.0.0.1:8000",
			MarketDataPath: "/api/market-data",
			EventsPath:     "/api/events",
			Timeout:        10 * time.Second,
			RetryCount:     0,
			ReconnectDelay: 3 * time.Second,
		},
		Refresh: RefreshConfig{
			Interval:  5 * time.Second,
			TopN:      10,
			MaxTopN:   50,
			Serialize: true,
		},
		Server: ServerConfig{
			Listen:          ":8090",
			RefreshBurst:    5,
			RefreshPerSec:   1,
			LeaderboardTTL:  2 * time.Second,
			KeepAlive:       15 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Driver:    "sqlite",
			Path:      "data/accelboard.db",
			QueueSize: 256,
		},
		Redis: RedisConfig{
			KeyPrefix: "accelboard",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/accelboard.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		MockFeed: MockFeedConfig{
			Listen:        ":8000",
			Seed:          1,
			TradeInterval: 20 * time.Second,
			Heartbeat:     30 * time.Second,
			Groups: []MockGroup{
				{Name: "科技七巨头", Order: 0, Symbols: []string{"AAPL.US", "MSFT.US", "NVDA.US", "GOOGL.US", "AMZN.US", "META.US", "TSLA.US"}},
				{Name: "中概股", Order: 1, Symbols: []string{"BABA.US", "PDD.US", "NIO.US"}, Halted: []string{"NIO.US"}},
			},
		},
		StateDir: "data/state",
	}
}

// LoadFromFile 加载配置：默认值 <- 配置文件 <- 环境变量
// filePath 为空时只使用默认值和环境变量
func LoadFromFile(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		cf, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
		cfg.applyFile(cf)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &configFile, nil
}

func (c *Config) applyFile(cf *ConfigFile) {
	setString(&c.Upstream.BaseURL, cf.Upstream.BaseURL)
	setString(&c.Upstream.Token, cf.Upstream.Token)
	setString(&c.Upstream.MarketDataPath, cf.Upstream.MarketDataPath)
	setString(&c.Upstream.EventsPath, cf.Upstream.EventsPath)
	setMillis(&c.Upstream.Timeout, cf.Upstream.TimeoutMs)
	setInt(&c.Upstream.RetryCount, cf.Upstream.RetryCount)
	setMillis(&c.Upstream.ReconnectDelay, cf.Upstream.ReconnectDelayMs)

	setMillis(&c.Refresh.Interval, cf.Refresh.IntervalMs)
	setInt(&c.Refresh.TopN, cf.Refresh.TopN)
	setInt(&c.Refresh.MaxTopN, cf.Refresh.MaxTopN)
	if cf.Refresh.Serialize != nil {
		c.Refresh.Serialize = *cf.Refresh.Serialize
	}

	setString(&c.Server.Listen, cf.Server.Listen)
	setInt(&c.Server.RefreshBurst, cf.Server.RefreshBurst)
	setInt(&c.Server.RefreshPerSec, cf.Server.RefreshPerSec)
	setMillis(&c.Server.LeaderboardTTL, cf.Server.LeaderboardTTLMs)
	setMillis(&c.Server.KeepAlive, cf.Server.KeepAliveMs)

	setString(&c.Store.Driver, cf.Store.Driver)
	setString(&c.Store.Path, cf.Store.Path)
	setMillis(&c.Store.MinInterval, cf.Store.MinIntervalMs)
	setInt(&c.Store.QueueSize, cf.Store.QueueSize)

	setString(&c.Redis.Addr, cf.Redis.Addr)
	setString(&c.Redis.Password, cf.Redis.Password)
	setInt(&c.Redis.DB, cf.Redis.DB)
	setString(&c.Redis.KeyPrefix, cf.Redis.KeyPrefix)

	setString(&c.Log.Level, cf.Log.Level)
	setString(&c.Log.File, cf.Log.File)
	setInt(&c.Log.MaxSize, cf.Log.MaxSize)
	setInt(&c.Log.MaxBackups, cf.Log.MaxBackups)
	setInt(&c.Log.MaxAge, cf.Log.MaxAge)
	if cf.Log.Compress {
		c.Log.Compress = true
	}

	setString(&c.MockFeed.Listen, cf.MockFeed.Listen)
	if cf.MockFeed.Seed != 0 {
		c.MockFeed.Seed = cf.MockFeed.Seed
	}
	setMillis(&c.MockFeed.TradeInterval, cf.MockFeed.TradeIntervalMs)
	setMillis(&c.MockFeed.Heartbeat, cf.MockFeed.HeartbeatMs)
	if len(cf.MockFeed.Groups) > 0 {
		c.MockFeed.Groups = cf.MockFeed.Groups
	}

	setString(&c.MetricsAddr, cf.MetricsAddr)
	setString(&c.StateDir, cf.StateDir)
}

// applyEnv 环境变量覆盖（优先级最高）
func (c *Config) applyEnv() {
	c.Upstream.BaseURL = getEnv("ACCELBOARD_UPSTREAM_URL", c.Upstream.BaseURL)
	c.Upstream.Token = getEnv("ACCELBOARD_UPSTREAM_TOKEN", c.Upstream.Token)
	c.Upstream.Timeout = parseMillisEnv("ACCELBOARD_UPSTREAM_TIMEOUT_MS", c.Upstream.Timeout)
	c.Upstream.ReconnectDelay = parseMillisEnv("ACCELBOARD_RECONNECT_DELAY_MS", c.Upstream.ReconnectDelay)

	c.Refresh.Interval = parseMillisEnv("ACCELBOARD_REFRESH_INTERVAL_MS", c.Refresh.Interval)
	c.Refresh.TopN = parseIntEnv("ACCELBOARD_TOP_N", c.Refresh.TopN)
	c.Refresh.Serialize = parseBoolEnv("ACCELBOARD_REFRESH_SERIALIZE", c.Refresh.Serialize)

	c.Server.Listen = getEnv("ACCELBOARD_LISTEN", c.Server.Listen)

	c.Store.Driver = getEnv("ACCELBOARD_STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnv("ACCELBOARD_STORE_PATH", c.Store.Path)

	c.Redis.Addr = getEnv("ACCELBOARD_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("ACCELBOARD_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = parseIntEnv("ACCELBOARD_REDIS_DB", c.Redis.DB)

	c.Log.Level = getEnv("ACCELBOARD_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("ACCELBOARD_LOG_FILE", c.Log.File)

	c.MockFeed.Listen = getEnv("ACCELBOARD_MOCKFEED_LISTEN", c.MockFeed.Listen)

	c.MetricsAddr = getEnv("ACCELBOARD_METRICS_ADDR", c.MetricsAddr)
	c.StateDir = getEnv("ACCELBOARD_STATE_DIR", c.StateDir)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("upstream.base_url 未配置")
	}
	if !strings.HasPrefix(c.Upstream.BaseURL, "http://") && !strings.HasPrefix(c.Upstream.BaseURL, "https://") {
		return fmt.Errorf("upstream.base_url 必须以 http:// 或 https:// 开头: %s", c.Upstream.BaseURL)
	}
	if c.Upstream.ReconnectDelay <= 0 {
		return fmt.Errorf("upstream.reconnect_delay_ms 必须大于 0")
	}
	if c.Upstream.RetryCount < 0 {
		return fmt.Errorf("upstream.retry_count 不能为负数")
	}
	if c.Refresh.Interval < 100*time.Millisecond {
		return fmt.Errorf("refresh.interval_ms 不能小于 100")
	}
	if c.Refresh.MaxTopN < 0 {
		return fmt.Errorf("refresh.max_top_n 不能为负数")
	}
	if c.Refresh.TopN <= 0 {
		return fmt.Errorf("refresh.top_n 必须大于 0")
	}
	if c.Refresh.MaxTopN > 0 && c.Refresh.TopN > c.Refresh.MaxTopN {
		return fmt.Errorf("refresh.top_n (%d) 不能超过 max_top_n (%d)", c.Refresh.TopN, c.Refresh.MaxTopN)
	}

	switch c.Store.Driver {
	case "sqlite", "badger":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path 不能为空（driver=%s）", c.Store.Driver)
		}
	case "none", "":
	default:
		return fmt.Errorf("未知的存储类型: %s (支持 sqlite, badger, none)", c.Store.Driver)
	}

	if c.Store.QueueSize <= 0 {
		return fmt.Errorf("store.queue_size 必须大于 0")
	}

	if c.Server.RefreshBurst <= 0 || c.Server.RefreshPerSec <= 0 {
		return fmt.Errorf("server.refresh_burst 和 refresh_per_sec 必须大于 0")
	}

	for _, g := range c.MockFeed.Groups {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("mockfeed 分组名称不能为空")
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setMillis(dst *time.Duration, ms int) {
	if ms > 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseMillisEnv 解析毫秒环境变量
func parseMillisEnv(key string, defaultValue time.Duration) time.Duration {
	ms := parseIntEnv(key, -1)
	if ms <= 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
