package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"price-action-sentry/pkg/types"
)

// 命令行参数与配置键的对应关系
var flagKeys = map[string]string{
	"mode":     "mode",
	"source":   "market.source",
	"symbol":   "market.symbols",
	"bar":      "market.interval",
	"limit":    "market.limit",
	"csv":      "market.csv_path",
	"export":   "backtest.export_path",
	"api-addr": "api.addr",
}

// RegisterFlags 注册命令行参数
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "配置文件路径，默认查找 ./configs/config.local.yaml 与 ./configs/config.yaml")
	fs.String("mode", "analyze", "运行模式: analyze / watch / backtest / live")
	fs.String("source", "okx", "行情来源: okx / csv")
	fs.StringSlice("symbol", nil, "交易对，可重复或逗号分隔，如 BTC-USDT")
	fs.String("bar", "15m", "K线周期")
	fs.Int("limit", 300, "拉取的历史K线数量")
	fs.String("csv", "", "CSV 行情文件路径")
	fs.String("export", "", "回测交易明细导出路径")
	fs.String("api-addr", "", "状态接口监听地址，如 :8080")
}

// Load 加载配置: .env -> 配置文件 -> 环境变量 -> 命令行
func Load(fs *pflag.FlagSet) (*types.Config, error) {
	// .env 文件可选
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取.env失败: %v", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	// 读取环境变量，market.interval 对应 MARKET_INTERVAL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}

	if err := readConfigFile(v, fs); err != nil {
		return nil, err
	}

	var config types.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %v", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 启动前校验配置，任何非法项都直接失败
func Validate(config *types.Config) error {
	switch config.Mode {
	case "analyze", "watch", "backtest", "live":
	default:
		return fmt.Errorf("%w: 未知运行模式 %q", types.ErrInvalidConfiguration, config.Mode)
	}

	if config.Market.Source == "csv" && config.Market.CSVPath == "" {
		return fmt.Errorf("%w: source=csv 时必须指定 csv_path", types.ErrInvalidConfiguration)
	}
	if config.Mode == "live" && config.Market.Source == "csv" {
		return fmt.Errorf("%w: live 模式只支持 okx 行情", types.ErrInvalidConfiguration)
	}
	if config.Market.Source != "csv" && len(config.Market.Symbols) == 0 {
		return fmt.Errorf("%w: 至少需要一个交易对", types.ErrInvalidConfiguration)
	}
	if config.Backtest.InitialCash <= 0 || config.Backtest.Commission < 0 {
		return fmt.Errorf("%w: 回测资金必须>0且手续费不能为负", types.ErrInvalidConfiguration)
	}

	return config.Strategy.PriceAction.Validate()
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs != nil {
		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("读取配置文件%s失败: %v", path, err)
			}
			return nil
		}
	}

	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// 优先尝试读取本地配置文件
	v.SetConfigName("config.local")
	if err := v.ReadInConfig(); err != nil {
		// 如果本地配置文件不存在，尝试读取默认配置文件
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFoundError) {
				return err
			}
		}
	}
	return nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("绑定命令行参数%s失败: %v", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "analyze")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "logs")
	v.SetDefault("log.max_size", 200)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("dingtalk.webhook_url", "")
	v.SetDefault("dingtalk.secret", "")
	v.SetDefault("pushplus.user_token", "")
	v.SetDefault("pushplus.to", "")
	v.SetDefault("market.source", "okx")
	v.SetDefault("market.symbols", []string{"BTC-USDT"})
	v.SetDefault("market.interval", "15m")
	v.SetDefault("market.limit", 300)
	v.SetDefault("market.csv_path", "")
	v.SetDefault("market.watch", 15*time.Minute)
	v.SetDefault("network.proxy", "")
	v.SetDefault("network.timeout", 30*time.Second)
	v.SetDefault("websocket.okx_endpoint", "wss://ws.okx.com:8443/ws/v5/business")
	v.SetDefault("websocket.reconnect_interval", 5*time.Second)
	v.SetDefault("websocket.ping_interval", 20*time.Second)
	v.SetDefault("websocket.max_reconnect_attempts", 10)
	v.SetDefault("backtest.initial_cash", 10000.0)
	v.SetDefault("backtest.commission", 0.001)
	v.SetDefault("backtest.export_path", "")
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("database.mysql.host", "")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.max_idle_conns", 5)
	v.SetDefault("database.mysql.max_open_conns", 20)

	d := types.DefaultPriceActionConfig()
	v.SetDefault("strategy.price_action.swing_lookback", d.SwingLookback)
	v.SetDefault("strategy.price_action.atr_swing_threshold_multiplier", d.ATRSwingThresholdMultiplier)
	v.SetDefault("strategy.price_action.trend_strength_threshold", d.TrendStrengthThreshold)
	v.SetDefault("strategy.price_action.zone_buffer_atr_mult", d.ZoneBufferATRMult)
	v.SetDefault("strategy.price_action.max_zones_to_track", d.MaxZonesToTrack)
	v.SetDefault("strategy.price_action.zone_strength_threshold", d.ZoneStrengthThreshold)
	v.SetDefault("strategy.price_action.engulfing_threshold", d.EngulfingThreshold)
	v.SetDefault("strategy.price_action.min_body_size_ratio", d.MinBodySizeRatio)
	v.SetDefault("strategy.price_action.require_pattern_confirmation", d.RequirePatternConfirmation)
	v.SetDefault("strategy.price_action.allowed_patterns", d.AllowedPatterns)
	v.SetDefault("strategy.price_action.risk_reward_ratio", d.RiskRewardRatio)
	v.SetDefault("strategy.price_action.stop_loss_atr_mult", d.StopLossATRMult)
	v.SetDefault("strategy.price_action.max_risk_per_trade", d.MaxRiskPerTrade)
	v.SetDefault("strategy.price_action.atr_period", d.ATRPeriod)
	v.SetDefault("strategy.price_action.max_concurrent_trades", d.MaxConcurrentTrades)
	v.SetDefault("strategy.price_action.zone_retest_lookback", d.ZoneRetestLookback)
	v.SetDefault("strategy.price_action.structure_update_frequency", d.StructureUpdateFrequency)
}
