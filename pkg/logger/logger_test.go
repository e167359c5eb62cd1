package logger

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"price-action-sentry/pkg/types"
)

func TestInitWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	l, err := Init(types.LogConfig{Level: "debug", FilePath: dir, MaxSize: 1, MaxAge: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer zap.ReplaceGlobals(zap.NewNop())

	zap.L().Info("日志测试", zap.String("symbol", "BTC-USDT"))
	_ = l.Sync()

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Errorf("expected log file to contain the entry")
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	if _, err := Init(types.LogConfig{Level: "verbose"}); err == nil {
		t.Errorf("expected error for unknown level")
	}
}
