package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 IntentWise 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Upkeep   UpkeepConfig   `json:"upkeep"`
	Oracle   OracleConfig   `json:"oracle"`
	Web3     Web3Config     `json:"web3"`
	Auth     AuthConfig     `json:"auth"`
	Logging  LoggingConfig  `json:"logging"`
	Alerting AlertingConfig `json:"alerting"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 统一描述意图存储后端的连接信息。
type StorageConfig struct {
	IntentStore IntentStoreConfig `json:"intent_store"`
}

// IntentStoreConfig 支持内存实现与 MySQL。
type IntentStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// UpkeepConfig 控制巡检调度与执行队列。
type UpkeepConfig struct {
	Cron     string         `json:"cron"`
	Workers  int            `json:"workers"`
	Batch    int            `json:"batch"`
	Queue    string         `json:"queue"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// OracleConfig 控制资产价格的获取方式。
type OracleConfig struct {
	Provider        string `json:"provider"`
	BaseURL         string `json:"base_url"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
}

// Web3Config 包含访问区块链节点所需的参数。
type Web3Config struct {
	// ChainConfig 指向 YAML 链定义文件，留空时退化为单链 RPCURL。
	ChainConfig     string `json:"chain_config"`
	RPCURL          string `json:"rpc_url"`
	DefaultChain    string `json:"default_chain"`
	SimGasPriceGwei string `json:"sim_gas_price_gwei"`
}

// AuthConfig 控制 API 鉴权。
type AuthConfig struct {
	Mode       string     `json:"mode"`
	Secret     string     `json:"secret"`
	Issuer     string     `json:"issuer"`
	AccessTTL  int64      `json:"access_ttl_seconds"`
	RefreshTTL int64      `json:"refresh_ttl_seconds"`
	Seeds      []AuthSeed `json:"seeds"`
}

// AuthSeed 预置一个可登录的用户。
type AuthSeed struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Wallet   string `json:"wallet"`
}

// LoggingConfig 控制结构化日志与审计日志输出。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志的落盘与轮转。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// AlertingConfig 描述通知渠道。
type AlertingConfig struct {
	WebhookURL     string   `json:"webhook_url"`
	SlackChannel   string   `json:"slack_channel"`
	EmailTo        []string `json:"email_to"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.IntentStore.Driver == "" {
		c.Storage.IntentStore.Driver = "memory"
	}

	if c.Upkeep.Cron == "" {
		c.Upkeep.Cron = "0 * * * * *"
	}
	if c.Upkeep.Workers <= 0 {
		c.Upkeep.Workers = 4
	}
	if c.Upkeep.Batch <= 0 {
		c.Upkeep.Batch = 100
	}
	if c.Upkeep.Queue == "" {
		c.Upkeep.Queue = "memory"
	}

	if c.Oracle.Provider == "" {
		c.Oracle.Provider = "static"
	}
	if c.Oracle.CacheTTLSeconds <= 0 {
		c.Oracle.CacheTTLSeconds = 300
	}

	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}
	if c.Auth.AccessTTL <= 0 {
		c.Auth.AccessTTL = 3600
	}
	if c.Auth.RefreshTTL <= 0 {
		c.Auth.RefreshTTL = 86400
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}

	if c.Alerting.TimeoutSeconds <= 0 {
		c.Alerting.TimeoutSeconds = 5
	}
}
