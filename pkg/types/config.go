package types

import "time"

// Config 主配置结构
type Config struct {
	Mode      string          `mapstructure:"mode"` // analyze / watch / backtest / live
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	DingTalk  DingTalkConfig  `mapstructure:"dingtalk"`
	PushPlus  PushPlusConfig  `mapstructure:"pushplus"`
	Market    MarketConfig    `mapstructure:"market"`
	Network   NetworkConfig   `mapstructure:"network"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Backtest  BacktestConfig  `mapstructure:"backtest"`
	Database  DatabaseConfig  `mapstructure:"database"`
	API       APIConfig       `mapstructure:"api"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	FilePath   string `mapstructure:"file_path"`   // 日志输出路径名
	MaxSize    int    `mapstructure:"max_size"`    // 日志文件大小 单位：MB，超限后会自动切割
	MaxAge     int    `mapstructure:"max_age"`     // 日志文件存放时间 单位：天
	MaxBackups int    `mapstructure:"max_backups"` // 日志文件备份数量
	Compress   bool   `mapstructure:"compress"`    // 日志文件压缩
}

// RedisConfig Redis配置
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DingTalkConfig 钉钉配置
type DingTalkConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Secret     string `mapstructure:"secret"`
}

// PushPlusConfig PushPlus配置
type PushPlusConfig struct {
	UserToken string `mapstructure:"user_token"`
	To        string `mapstructure:"to"` // 好友令牌，多人用逗号分隔
}

// MarketConfig 行情数据配置
type MarketConfig struct {
	Source   string        `mapstructure:"source"`   // okx 或 csv
	Symbols  []string      `mapstructure:"symbols"`  // 如 BTC-USDT
	Interval string        `mapstructure:"interval"` // K线周期，如 15m
	Limit    int           `mapstructure:"limit"`    // 拉取的历史K线数量
	CSVPath  string        `mapstructure:"csv_path"` // source=csv 时的文件路径
	Watch    time.Duration `mapstructure:"watch"`    // watch 模式的分析周期
}

// BacktestConfig 回测配置
type BacktestConfig struct {
	InitialCash float64 `mapstructure:"initial_cash"` // 初始资金，默认10000
	Commission  float64 `mapstructure:"commission"`   // 手续费率，默认0.001
	ExportPath  string  `mapstructure:"export_path"`  // 交易明细CSV导出路径，为空不导出
}

// APIConfig 状态查询接口配置
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	Proxy   string        `mapstructure:"proxy"`   // HTTP代理地址，如 http://127.0.0.1:7890
	Timeout time.Duration `mapstructure:"timeout"` // 网络超时时间
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig MySQL配置，Host为空时不启用
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	OKXEndpoint          string        `mapstructure:"okx_endpoint"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}
