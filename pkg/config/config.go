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

// EdgeXConfig EdgeX 交易所配置
type EdgeXConfig struct {
	BaseURL      string // REST 基础地址
	WsURL        string // 行情 WebSocket 地址
	AccountID    string // 账户 ID
	StarkPrivate string // Stark 签名私钥
	ContractID   string // 合约 ID，例如 10000001 (BTCUSDT)
	TickerSymbol string // 对外展示的交易对名，例如 BTC-USDT
}

// AsterConfig Aster 交易所配置
type AsterConfig struct {
	BaseURL   string // REST 基础地址
	WsURL     string // 行情 WebSocket 地址
	APIKey    string
	APISecret string
	Symbol    string // 交易对，例如 BTCUSDT
}

// GovernorConfig 请求节流配置
type GovernorConfig struct {
	MinInterval time.Duration // 同一交易所两次私有请求的最小间隔
}

// FeedConfig 行情合并配置
type FeedConfig struct {
	PollInterval time.Duration // REST 深度轮询间隔
	PullTimeout  time.Duration // 单次拉取超时
	ErrBackoff   time.Duration // 拉取失败后的退避
	MinDepth     int           // 深度档位不足此值时丢弃快照
	BookDepth    int           // 事件中携带的档位数
}

// ExecutionConfig 下单与成交对账配置
type ExecutionConfig struct {
	SettleWait     time.Duration // 下单后等待成交落账的时长
	FillWindowBack time.Duration // 无订单号时回看成交的窗口
	FillPageSize   int           // 成交查询分页大小
}

// Config 应用配置
type Config struct {
	Venue     string // 本进程服务的交易所: edgex 或 aster
	EdgeX     EdgeXConfig
	Aster     AsterConfig
	Governor  GovernorConfig
	Feed      FeedConfig
	Execution ExecutionConfig
	LogLevel  string // 日志级别
	LogFile   string // 日志文件路径（可选，日志主通道是 stderr）
	HistoryDB string // sqlite 历史库路径（可选，为空则不落盘）
	DryRun    bool   // 纸交易模式：不真实下单，只打日志
}

var globalConfig *Config
var configFilePath string

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	Venue string `yaml:"venue" json:"venue"`
	EdgeX struct {
		BaseURL      string `yaml:"base_url" json:"base_url"`
		WsURL        string `yaml:"ws_url" json:"ws_url"`
		AccountID    string `yaml:"account_id" json:"account_id"`
		StarkPrivate string `yaml:"stark_private" json:"stark_private"`
		ContractID   string `yaml:"contract_id" json:"contract_id"`
		TickerSymbol string `yaml:"ticker_symbol" json:"ticker_symbol"`
	} `yaml:"edgex" json:"edgex"`
	Aster struct {
		BaseURL   string `yaml:"base_url" json:"base_url"`
		WsURL     string `yaml:"ws_url" json:"ws_url"`
		APIKey    string `yaml:"api_key" json:"api_key"`
		APISecret string `yaml:"api_secret" json:"api_secret"`
		Symbol    string `yaml:"symbol" json:"symbol"`
	} `yaml:"aster" json:"aster"`
	Governor struct {
		MinIntervalMs int `yaml:"min_interval_ms" json:"min_interval_ms"`
	} `yaml:"governor" json:"governor"`
	Feed struct {
		PollIntervalMs int `yaml:"poll_interval_ms" json:"poll_interval_ms"`
		PullTimeoutMs  int `yaml:"pull_timeout_ms" json:"pull_timeout_ms"`
		ErrBackoffMs   int `yaml:"err_backoff_ms" json:"err_backoff_ms"`
		MinDepth       int `yaml:"min_depth" json:"min_depth"`
		BookDepth      int `yaml:"book_depth" json:"book_depth"`
	} `yaml:"feed" json:"feed"`
	Execution struct {
		SettleWaitMs     int `yaml:"settle_wait_ms" json:"settle_wait_ms"`
		FillWindowBackMs int `yaml:"fill_window_back_ms" json:"fill_window_back_ms"`
		FillPageSize     int `yaml:"fill_page_size" json:"fill_page_size"`
	} `yaml:"execution" json:"execution"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFile   string `yaml:"log_file" json:"log_file"`
	HistoryDB string `yaml:"history_db" json:"history_db"`
	DryRun    bool   `yaml:"dry_run" json:"dry_run"`
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 从指定文件加载配置。
// 优先级：配置文件 > 环境变量 > 默认值。
// 凭证类字段只在进入交易路径的进程里强制要求（见 Validate / ValidateVenue）。
func LoadFromFile(filePath string) (*Config, error) {
	if globalConfig != nil && configFilePath == filePath {
		return globalConfig, nil
	}

	var configFile *ConfigFile
	if filePath != "" {
		var err error
		configFile, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}

	config := &Config{
		Venue: firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.Venue }), getEnv("VENUE", "")),
		EdgeX: EdgeXConfig{
			BaseURL:      firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.EdgeX.BaseURL }), getEnv("EDGEX_BASE_URL", "https://pro.edgex.exchange")),
			WsURL:        firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.EdgeX.WsURL }), getEnv("EDGEX_WS_URL", "wss://quote.edgex.exchange")),
			AccountID:    firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.EdgeX.AccountID }), getEnv("EDGEX_ACCOUNT_ID", "")),
			StarkPrivate: firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.EdgeX.StarkPrivate }), getEnv("EDGEX_STARK_PRIVATE_KEY", "")),
			ContractID:   firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.EdgeX.ContractID }), getEnv("EDGEX_CONTRACT_ID", "10000001")),
			TickerSymbol: firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.EdgeX.TickerSymbol }), getEnv("EDGEX_TICKER_SYMBOL", "BTC-USDT")),
		},
		Aster: AsterConfig{
			BaseURL:   firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.Aster.BaseURL }), getEnv("ASTER_BASE_URL", "https://fapi.asterdex.com")),
			WsURL:     firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.Aster.WsURL }), getEnv("ASTER_WS_URL", "wss://fstream.asterdex.com")),
			APIKey:    firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.Aster.APIKey }), getEnv("ASTER_API_KEY", "")),
			APISecret: firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.Aster.APISecret }), getEnv("ASTER_API_SECRET", "")),
			Symbol:    firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.Aster.Symbol }), getEnv("ASTER_SYMBOL", "BTCUSDT")),
		},
		Governor: GovernorConfig{
			MinInterval: msOrDefault(fileInt(configFile, func(cf *ConfigFile) int { return cf.Governor.MinIntervalMs }), parseIntEnv("GOVERNOR_MIN_INTERVAL_MS", 2500)),
		},
		Feed: FeedConfig{
			PollInterval: msOrDefault(fileInt(configFile, func(cf *ConfigFile) int { return cf.Feed.PollIntervalMs }), parseIntEnv("FEED_POLL_INTERVAL_MS", 500)),
			PullTimeout:  msOrDefault(fileInt(configFile, func(cf *ConfigFile) int { return cf.Feed.PullTimeoutMs }), parseIntEnv("FEED_PULL_TIMEOUT_MS", 5000)),
			ErrBackoff:   msOrDefault(fileInt(configFile, func(cf *ConfigFile) int { return cf.Feed.ErrBackoffMs }), parseIntEnv("FEED_ERR_BACKOFF_MS", 5000)),
			MinDepth:     intOrDefault(fileInt(configFile, func(cf *ConfigFile) int { return cf.Feed.MinDepth }), parseIntEnv("FEED_MIN_DEPTH", 3)),
			BookDepth:    intOrDefault(fileInt(configFile, func(cf *ConfigFile) int { return cf.Feed.BookDepth }), parseIntEnv("FEED_BOOK_DEPTH", 5)),
		},
		Execution: ExecutionConfig{
			SettleWait:     msOrDefault(fileInt(configFile, func(cf *ConfigFile) int { return cf.Execution.SettleWaitMs }), parseIntEnv("EXECUTION_SETTLE_WAIT_MS", 5000)),
			FillWindowBack: msOrDefault(fileInt(configFile, func(cf *ConfigFile) int { return cf.Execution.FillWindowBackMs }), parseIntEnv("EXECUTION_FILL_WINDOW_BACK_MS", 5000)),
			FillPageSize:   intOrDefault(fileInt(configFile, func(cf *ConfigFile) int { return cf.Execution.FillPageSize }), parseIntEnv("EXECUTION_FILL_PAGE_SIZE", 20)),
		},
		LogLevel:  firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.LogLevel }), getEnv("LOG_LEVEL", "info")),
		LogFile:   firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.LogFile }), getEnv("LOG_FILE", "")),
		HistoryDB: firstNonEmpty(fileString(configFile, func(cf *ConfigFile) string { return cf.HistoryDB }), getEnv("HISTORY_DB", "")),
		DryRun: func() bool {
			if configFile != nil {
				return configFile.DryRun
			}
			return parseBoolEnv("DRY_RUN", false)
		}(),
	}

	globalConfig = config
	configFilePath = filePath
	return config, nil
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

// Get 获取全局配置（如果已加载）
func Get() *Config {
	return globalConfig
}

// ValidateVenue 验证指定交易所的凭证与标的配置
func (c *Config) ValidateVenue(venue string) error {
	switch venue {
	case "edgex":
		if c.EdgeX.AccountID == "" {
			return fmt.Errorf("EDGEX_ACCOUNT_ID 未配置")
		}
		if c.EdgeX.StarkPrivate == "" {
			return fmt.Errorf("EDGEX_STARK_PRIVATE_KEY 未配置")
		}
		if c.EdgeX.ContractID == "" {
			return fmt.Errorf("EDGEX_CONTRACT_ID 未配置")
		}
	case "aster":
		if c.Aster.APIKey == "" {
			return fmt.Errorf("ASTER_API_KEY 未配置")
		}
		if c.Aster.APISecret == "" {
			return fmt.Errorf("ASTER_API_SECRET 未配置")
		}
		if c.Aster.Symbol == "" {
			return fmt.Errorf("ASTER_SYMBOL 未配置")
		}
	default:
		return fmt.Errorf("未知的交易所: %s", venue)
	}
	return nil
}

// Validate 验证当前进程 Venue 对应的配置
func (c *Config) Validate() error {
	if c.Venue == "" {
		return fmt.Errorf("VENUE 未配置（edgex 或 aster）")
	}
	return c.ValidateVenue(c.Venue)
}

// firstNonEmpty 按优先级返回第一个非空字符串
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// fileString 安全地读取配置文件字段
func fileString(cf *ConfigFile, getter func(*ConfigFile) string) string {
	if cf == nil {
		return ""
	}
	return getter(cf)
}

// fileInt 安全地读取配置文件整数字段
func fileInt(cf *ConfigFile, getter func(*ConfigFile) int) int {
	if cf == nil {
		return 0
	}
	return getter(cf)
}

func intOrDefault(fileValue, envValue int) int {
	if fileValue > 0 {
		return fileValue
	}
	return envValue
}

func msOrDefault(fileValueMs, envValueMs int) time.Duration {
	return time.Duration(intOrDefault(fileValueMs, envValueMs)) * time.Millisecond
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
