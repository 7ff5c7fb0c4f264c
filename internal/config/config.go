package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/iabetor/nius/internal/feed"
	"github.com/iabetor/nius/internal/logger"
	"gopkg.in/yaml.v3"
)

// Config 是 nius 的顶层配置，进程启动时加载一次，之后只读。
type Config struct {
	Sources  Sources        `yaml:"sources"`
	Keywords []string       `yaml:"keywords"`
	Summary  SummaryConfig  `yaml:"summary"`
	Cards    CardsConfig    `yaml:"cards"`
	Ticker   TickerConfig   `yaml:"ticker"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Output   OutputConfig   `yaml:"output"`
	Journal  JournalConfig  `yaml:"journal"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      LogConfig      `yaml:"log"`
}

// SummaryConfig 摘要清洗与关键词标注。
type SummaryConfig struct {
	// Limit 摘要最大字符数。
	Limit         int      `yaml:"limit"`
	Placeholders  []string `yaml:"placeholders"`
	EmphasisOpen  string   `yaml:"emphasis_open"`
	EmphasisClose string   `yaml:"emphasis_close"`
}

// CardsConfig 卡片数量与布局提示。
type CardsConfig struct {
	// Cap 保留的条目数。
	Cap int `yaml:"cap"`
	// Layout 可选 positions、every、none。
	Layout        string `yaml:"layout"`
	WidePositions []int  `yaml:"wide_positions"`
	WideEvery     int    `yaml:"wide_every"`
}

// TickerConfig 滚动条。
type TickerConfig struct {
	Separator string `yaml:"separator"`
}

// FetchConfig 抓取参数。
type FetchConfig struct {
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	UserAgent         string `yaml:"user_agent"`
	MaxBodyBytes      int64  `yaml:"max_body_bytes"`
	MaxItemsPerSource int    `yaml:"max_items_per_source"`
}

// Timeout 单个源的超时时间。
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// OutputConfig 输出位置，"-" 表示标准输出。
type OutputConfig struct {
	Path string `yaml:"path"`
}

// JournalConfig 运行记录数据库，Path 为空则不记录。
type JournalConfig struct {
	Path string `yaml:"path"`
	// Keep 保留最近多少次运行，0 表示不清理。
	Keep int `yaml:"keep"`
}

// ScheduleConfig 定时运行，Cron 为空则只运行一次。
type ScheduleConfig struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Logger 转换为 logger.Config。
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Level:      l.Level,
		File:       l.File,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAge,
	}
}

// Load 读取 YAML 配置文件，展开 ${VAR} 环境变量，填充默认值并校验。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析配置内容。
func Parse(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), os.Getenv)

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults 为未设置的配置项填充默认值，可重复调用。
func SetDefaults(cfg *Config) {
	if cfg.Summary.Limit == 0 {
		cfg.Summary.Limit = 180
	}
	if cfg.Summary.Placeholders == nil {
		cfg.Summary.Placeholders = []string{"comments"}
	}
	if cfg.Summary.EmphasisOpen == "" && cfg.Summary.EmphasisClose == "" {
		cfg.Summary.EmphasisOpen = "<b>"
		cfg.Summary.EmphasisClose = "</b>"
	}
	if cfg.Cards.Cap == 0 {
		cfg.Cards.Cap = 12
	}
	if cfg.Cards.Layout == "" {
		cfg.Cards.Layout = "positions"
	}
	if cfg.Cards.Layout == "positions" && cfg.Cards.WidePositions == nil {
		cfg.Cards.WidePositions = []int{0, 4, 7}
	}
	if cfg.Ticker.Separator == "" {
		cfg.Ticker.Separator = "  •  "
	}
	if cfg.Fetch.TimeoutSeconds == 0 {
		cfg.Fetch.TimeoutSeconds = int(feed.DefaultTimeout / time.Second)
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = feed.DefaultUserAgent
	}
	if cfg.Fetch.MaxBodyBytes == 0 {
		cfg.Fetch.MaxBodyBytes = feed.DefaultMaxBodyBytes
	}
	if cfg.Output.Path == "" {
		cfg.Output.Path = "nius.json"
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "Local"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	for i := range cfg.Sources {
		cfg.Sources[i].Label = strings.TrimSpace(cfg.Sources[i].Label)
		cfg.Sources[i].URL = strings.TrimSpace(cfg.Sources[i].URL)
	}
}

// Validate 检查配置，任何问题都返回 *ConfigError，调用方应在抓取前中止。
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return &ConfigError{Field: "sources", Reason: "至少需要一个订阅源"}
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		if s.Label == "" {
			return &ConfigError{Field: field, Reason: "标签不能为空"}
		}
		if seen[strings.ToLower(s.Label)] {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("标签重复: %s", s.Label)}
		}
		seen[strings.ToLower(s.Label)] = true

		u, err := url.Parse(s.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("无效的地址: %q", s.URL)}
		}
	}
	if c.Summary.Limit < 0 {
		return &ConfigError{Field: "summary.limit", Reason: "不能为负数"}
	}
	if c.Cards.Cap < 0 {
		return &ConfigError{Field: "cards.cap", Reason: "不能为负数"}
	}
	switch c.Cards.Layout {
	case "", "positions", "none":
	case "every":
		if c.Cards.WideEvery <= 0 {
			return &ConfigError{Field: "cards.wide_every", Reason: "every 布局需要正整数间隔"}
		}
	default:
		return &ConfigError{Field: "cards.layout", Reason: fmt.Sprintf("未知布局: %s", c.Cards.Layout)}
	}
	if c.Journal.Keep < 0 {
		return &ConfigError{Field: "journal.keep", Reason: "不能为负数"}
	}
	if c.Fetch.TimeoutSeconds < 0 {
		return &ConfigError{Field: "fetch.timeout_seconds", Reason: "不能为负数"}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return &ConfigError{Field: "log.level", Reason: err.Error()}
	}
	return nil
}

// ConfigError 配置无效，属于致命错误。
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置错误 %s: %s", e.Field, e.Reason)
}
