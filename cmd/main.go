package main

import (
	"log"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"price-action-sentry/pkg/config"
	"price-action-sentry/pkg/logger"
)

func main() {
	// 解析命令行
	fs := pflag.NewFlagSet("price-action-sentry", pflag.ExitOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal("解析命令行参数失败:", err)
	}

	// 加载配置
	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal("加载配置失败:", err)
	}

	// 初始化日志
	if _, err := logger.Init(cfg.Log); err != nil {
		log.Fatal("初始化日志失败:", err)
	}
	defer zap.L().Sync()

	app := NewApp(cfg)

	// analyze / backtest 执行一次后退出
	if app.OneShot() {
		go func() {
			app.WaitForShutdown()
			app.cancel()
		}()
		if err := app.RunOnce(); err != nil {
			zap.L().Fatal("❌ 运行失败", zap.String("mode", cfg.Mode), zap.Error(err))
		}
		return
	}

	if err := app.Start(); err != nil {
		zap.L().Fatal("❌ 启动失败", zap.String("mode", cfg.Mode), zap.Error(err))
	}
	app.WaitForShutdown()
	app.Stop()
}
