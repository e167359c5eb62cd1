package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"price-action-sentry/pkg/types"
)

// 支持的时间格式，纯数字列按毫秒时间戳处理
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// CSVLoader 从CSV文件读取K线，列: Date,Open,High,Low,Close[,Volume]
type CSVLoader struct {
	path string
}

// NewCSVLoader 创建CSV加载器
func NewCSVLoader(path string) *CSVLoader {
	return &CSVLoader{path: path}
}

// FetchBars 读取文件中最后 limit 根K线，limit<=0 表示全部
func (c *CSVLoader) FetchBars(_ context.Context, symbol, _ string, limit int) ([]types.Bar, error) {
	bars, err := LoadCSV(c.path)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	zap.L().Info("📂 CSV行情加载完成",
		zap.String("symbol", symbol),
		zap.String("path", c.path),
		zap.Int("bars", len(bars)))
	return bars, nil
}

// LoadCSV 读取并校验CSV K线文件
func LoadCSV(path string) ([]types.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开CSV文件失败: %v", err)
	}
	defer f.Close()

	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// ReadCSV 解析CSV内容，首行为表头，列名不区分大小写
func ReadCSV(r io.Reader) ([]types.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %v", err)
	}
	columns, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var bars types.BarSeries
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("第%d行: %v", line, err)
		}

		bar, err := parseRecord(record, columns)
		if err != nil {
			return nil, fmt.Errorf("第%d行: %v", line, err)
		}
		bars = append(bars, bar)
	}

	if err := bars.Validate(); err != nil {
		return nil, err
	}
	return bars, nil
}

func mapColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		switch key {
		case "datetime", "time", "timestamp":
			key = "date"
		}
		columns[key] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("CSV缺少列: %s", required)
		}
	}
	return columns, nil
}

func parseRecord(record []string, columns map[string]int) (types.Bar, error) {
	field := func(name string) (string, bool) {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	raw, _ := field("date")
	ts, err := parseTime(raw)
	if err != nil {
		return types.Bar{}, err
	}

	bar := types.Bar{Timestamp: ts}
	targets := []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
		{"volume", &bar.Volume},
	}
	for _, t := range targets {
		s, ok := field(t.name)
		if !ok || s == "" {
			if t.name == "volume" {
				continue
			}
			return types.Bar{}, fmt.Errorf("缺少%s", t.name)
		}
		if *t.dst, err = strconv.ParseFloat(s, 64); err != nil {
			return types.Bar{}, fmt.Errorf("解析%s失败: %v", t.name, err)
		}
	}

	if !bar.IsFinite() {
		return types.Bar{}, fmt.Errorf("无效K线: %+v", bar)
	}
	return bar, nil
}

func parseTime(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间: %q", raw)
}
