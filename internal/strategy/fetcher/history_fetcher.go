package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"price-action-sentry/pkg/types"
)

const (
	defaultBaseURL = "https://www.okx.com/api/v5/market"
	// maxPageSize history-candles 单次最多返回100根
	maxPageSize = 100
	// requestInterval 限速：20次/2s
	requestInterval = 120 * time.Millisecond
)

// BarSource K线数据来源
type BarSource interface {
	FetchBars(ctx context.Context, symbol, interval string, limit int) ([]types.Bar, error)
}

// HistoryKlineFetcher 历史K线数据获取器
type HistoryKlineFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// OKXHistoryKlineResponse OKX历史K线API响应
type OKXHistoryKlineResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

// NewHistoryKlineFetcher 创建历史K线获取器
func NewHistoryKlineFetcher(network types.NetworkConfig) *HistoryKlineFetcher {
	client := &http.Client{
		Timeout: network.Timeout,
	}

	// 设置代理
	if network.Proxy != "" {
		proxyURL, err := url.Parse(network.Proxy)
		if err == nil {
			client.Transport = &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			}
		} else {
			zap.L().Warn("⚠️ 代理地址无效，使用直连", zap.String("proxy", network.Proxy), zap.Error(err))
		}
	}

	return &HistoryKlineFetcher{
		baseURL:    defaultBaseURL,
		httpClient: client,
	}
}

// WithBaseURL 替换接口地址
func (h *HistoryKlineFetcher) WithBaseURL(baseURL string) *HistoryKlineFetcher {
	h.baseURL = baseURL
	return h
}

// FetchBars 分页获取最近 limit 根已收盘K线，按时间从旧到新返回
func (h *HistoryKlineFetcher) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]types.Bar, error) {
	zap.L().Info("📊 获取历史K线数据",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("limit", limit))

	bars := make([]types.Bar, 0, limit)
	after := ""
	for len(bars) < limit {
		pageSize := limit - len(bars)
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		page, err := h.fetchPage(ctx, symbol, interval, pageSize, after)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		bars = append(bars, page...)

		// OKX返回从新到旧，下一页从本页最旧一根之前开始
		after = strconv.FormatInt(page[len(page)-1].Timestamp.UnixMilli(), 10)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(requestInterval):
		}
	}

	// 反转为从旧到新并去重
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	bars = dedupe(bars)

	zap.L().Info("✅ 历史K线数据获取完成",
		zap.String("symbol", symbol),
		zap.Int("requested", limit),
		zap.Int("received", len(bars)))

	return bars, nil
}

// fetchPage 获取一页K线，只保留已收盘的K线
func (h *HistoryKlineFetcher) fetchPage(ctx context.Context, symbol, interval string, limit int, after string) ([]types.Bar, error) {
	params := url.Values{}
	params.Set("instId", symbol)
	params.Set("bar", interval)
	params.Set("limit", strconv.Itoa(limit))
	if after != "" {
		params.Set("after", after)
	}
	requestURL := fmt.Sprintf("%s/history-candles?%s", h.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %v", err)
	}
	req.Header.Set("User-Agent", "Price-Action-Sentry/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP响应错误: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %v", err)
	}

	var okxResponse OKXHistoryKlineResponse
	if err := json.Unmarshal(body, &okxResponse); err != nil {
		return nil, fmt.Errorf("解析JSON失败: %v", err)
	}
	if okxResponse.Code != "0" {
		return nil, fmt.Errorf("OKX API返回错误: code=%s, msg=%s", okxResponse.Code, okxResponse.Msg)
	}

	bars := make([]types.Bar, 0, len(okxResponse.Data))
	for _, data := range okxResponse.Data {
		bar, confirmed, err := ParseOKXCandle(data)
		if err != nil {
			zap.L().Warn("解析历史K线数据失败", zap.Error(err))
			continue
		}
		if !confirmed {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// ParseOKXCandle 解析OKX K线数组: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
//
// 缺少 confirm 字段时视为已收盘。
func ParseOKXCandle(data []string) (types.Bar, bool, error) {
	if len(data) < 5 {
		return types.Bar{}, false, fmt.Errorf("K线数据格式不正确: %v", data)
	}

	timestamp, err := strconv.ParseInt(data[0], 10, 64)
	if err != nil {
		return types.Bar{}, false, fmt.Errorf("解析时间戳失败: %v", err)
	}

	prices := make([]float64, 4)
	for i := range prices {
		prices[i], err = strconv.ParseFloat(data[i+1], 64)
		if err != nil {
			return types.Bar{}, false, fmt.Errorf("解析价格失败: %v", err)
		}
	}

	volume := 0.0
	if len(data) > 5 && data[5] != "" {
		if volume, err = strconv.ParseFloat(data[5], 64); err != nil {
			return types.Bar{}, false, fmt.Errorf("解析成交量失败: %v", err)
		}
	}

	confirmed := true
	if len(data) > 8 {
		confirmed = data[8] == "1"
	}

	return types.Bar{
		Timestamp: time.UnixMilli(timestamp).UTC(),
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    volume,
	}, confirmed, nil
}

// FetchMultipleSymbolsHistory 批量获取多个交易对的历史数据，单个失败不影响其他
func FetchMultipleSymbolsHistory(ctx context.Context, source BarSource, symbols []string, interval string, limit int) map[string][]types.Bar {
	result := make(map[string][]types.Bar)

	for _, symbol := range symbols {
		bars, err := source.FetchBars(ctx, symbol, interval, limit)
		if err != nil {
			zap.L().Error("获取历史K线失败",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		result[symbol] = bars
	}

	return result
}

func dedupe(bars []types.Bar) []types.Bar {
	if len(bars) < 2 {
		return bars
	}
	out := bars[:1]
	for _, b := range bars[1:] {
		if b.Timestamp.Equal(out[len(out)-1].Timestamp) {
			continue
		}
		out = append(out, b)
	}
	return out
}
