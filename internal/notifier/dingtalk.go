package notifier

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"price-action-sentry/pkg/types"
)

// DingTalkNotifier 钉钉通知器
type DingTalkNotifier struct {
	webhookURL string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

// DingTalkMessage 钉钉消息结构
type DingTalkMessage struct {
	MsgType  string            `json:"msgtype"`
	Markdown *DingTalkMarkdown `json:"markdown,omitempty"`
	At       *DingTalkAt       `json:"at,omitempty"`
}

type DingTalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type DingTalkAt struct {
	AtAll bool `json:"isAtAll"`
}

// DingTalkResponse 钉钉API响应
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func NewDingTalkNotifier(webhookURL, secret string) Interface {
	// 如果没有配置webhook URL，返回控制台通知器
	if webhookURL == "" {
		zap.L().Info("🔧 未配置钉钉Webhook URL，使用控制台输出模式")
		return NewConsoleNotifier()
	}

	if secret != "" {
		zap.L().Info("✅ 已配置钉钉通知服务（含加签验证）")
	} else {
		zap.L().Warn("⚠️ 钉钉通知已配置，但未设置secret（建议配置加签验证）")
	}

	return &DingTalkNotifier{
		webhookURL: webhookURL,
		secret:     secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

func (dtn *DingTalkNotifier) SendSignal(signal *types.Signal) error {
	arrow, text := sideText(signal.Side)
	title := fmt.Sprintf("%s 回踩信号 - %s %s", arrow, signal.Symbol, text)

	if err := dtn.sendDingTalkMessage(title, dtn.buildSignalMarkdown(signal)); err != nil {
		return fallback("dingtalk", err).SendSignal(signal)
	}

	zap.L().Info("✅ 钉钉信号通知已发送", zap.String("symbol", signal.Symbol), zap.String("side", text))
	return nil
}

func (dtn *DingTalkNotifier) SendTradeClosed(trade *types.Trade) error {
	color := "green"
	if trade.PnL <= 0 {
		color = "red"
	}
	title := fmt.Sprintf("💰 平仓 - %s", trade.Symbol)
	content := fmt.Sprintf(`## 💰 %s %s 平仓

**开仓价**: %.6f  
**平仓价**: %.6f (%s)  
**数量**: %.6f  
**盈亏**: <font color="%s">%+.4f</font>  
**平仓时间**: %s`,
		trade.Symbol, trade.Side,
		trade.EntryPrice,
		trade.ExitPrice, trade.ExitReason,
		trade.Size,
		color, trade.PnL,
		trade.ExitTime.Format(timeLayout))

	if err := dtn.sendDingTalkMessage(title, content); err != nil {
		return fallback("dingtalk", err).SendTradeClosed(trade)
	}
	return nil
}

func (dtn *DingTalkNotifier) SendReports(reports []*types.MarketReport) error {
	if len(reports) == 0 {
		return nil
	}

	setups, _, _ := reportSummary(reports)
	title := fmt.Sprintf("📊 价格行为分析 - %d个交易对", len(reports))

	if err := dtn.sendDingTalkMessage(title, dtn.buildReportsMarkdown(reports)); err != nil {
		return fallback("dingtalk", err).SendReports(reports)
	}

	zap.L().Info("✅ 钉钉分析报告已发送", zap.Int("symbols", len(reports)), zap.Int("setups", setups))
	return nil
}

// generateSignature 生成钉钉加签
func (dtn *DingTalkNotifier) generateSignature(timestamp int64) string {
	// 按照文档要求: timestamp + "\n" + secret
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, dtn.secret)

	// HMAC-SHA256签名
	h := hmac.New(sha256.New, []byte(dtn.secret))
	h.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(h.Sum(nil))

	// URL编码
	return url.QueryEscape(signature)
}

// buildSignedURL 构建带签名的URL
func (dtn *DingTalkNotifier) buildSignedURL() string {
	if dtn.secret == "" {
		return dtn.webhookURL
	}

	timestamp := dtn.now().UnixMilli()
	separator := "&"
	if !strings.Contains(dtn.webhookURL, "?") {
		separator = "?"
	}

	return fmt.Sprintf("%s%stimestamp=%d&sign=%s",
		dtn.webhookURL, separator, timestamp, dtn.generateSignature(timestamp))
}

// buildSignalMarkdown 构建信号的Markdown内容
func (dtn *DingTalkNotifier) buildSignalMarkdown(signal *types.Signal) string {
	arrow, text := sideText(signal.Side)
	color := "green"
	if signal.Side == types.SideShort {
		color = "red"
	}

	content := fmt.Sprintf(`## %s 区域回踩<font color="%s">%s</font>信号

**交易对**: [%s](%s)  
**入场价格**: %.6f  
**止损 / 止盈**: %.6f / %.6f  
**仓位**: %.6f  
**ATR**: %.6f  
**趋势**: %s  
**区域**: %s %.6f (强度 %.1f)  
**确认形态**: %s  
**信号时间**: %s  `,
		arrow, color, text,
		signal.Symbol, buildTradingURL(signal.Symbol),
		signal.Price,
		signal.StopLoss, signal.TakeProfit,
		signal.Size,
		signal.ATR,
		signal.Trend,
		signal.Zone.Side, signal.Zone.Price, signal.Zone.Strength,
		orDash(signal.Pattern),
		signal.SignalTime.Format(timeLayout))

	if signal.CounterTrend {
		content += "\n\n> ⚠️ 逆势交易，注意控制仓位"
	}
	return content
}

// buildReportsMarkdown 构建分析报告的Markdown内容
func (dtn *DingTalkNotifier) buildReportsMarkdown(reports []*types.MarketReport) string {
	setups, failures, at := reportSummary(reports)

	content := fmt.Sprintf(`## 📊 价格行为结构分析

🎯 满足入场条件: <font color="green">%d个</font>  
❌ 分析失败: %d个  
🕐 分析时间: %s  

**详细列表**:  
`, setups, failures, at.Format(timeLayout))

	maxShow := 15 // 最多显示15个
	sorted := sortReports(reports)
	for i, r := range sorted {
		if i >= maxShow {
			content += fmt.Sprintf("- ... 还有%d个交易对\n", len(sorted)-maxShow)
			break
		}
		if r.Error != "" {
			content += fmt.Sprintf("- ❌ **%s**: %s\n", r.Symbol, r.Error)
			continue
		}
		setup := ""
		if r.HasSetup() {
			arrow, text := sideText(*r.Setup)
			setup = fmt.Sprintf(" %s **%s**", arrow, text)
		}
		content += fmt.Sprintf("- **[%s](%s)** %s 收盘 %.6g%s\n  供给 %s / 需求 %s\n",
			r.Symbol, buildTradingURL(r.Symbol), r.Trend, r.LastClose, setup,
			zoneText(r.SupplyZones), zoneText(r.DemandZones))
	}

	return content
}

// sendDingTalkMessage 发送钉钉消息
func (dtn *DingTalkNotifier) sendDingTalkMessage(title, content string) error {
	message := &DingTalkMessage{
		MsgType: "markdown",
		Markdown: &DingTalkMarkdown{
			Title: title,
			Text:  content,
		},
		At: &DingTalkAt{
			AtAll: false, // 不@所有人，避免过度打扰
		},
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %v", err)
	}

	resp, err := dtn.httpClient.Post(dtn.buildSignedURL(), "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %v", err)
	}
	defer resp.Body.Close()

	var dingResp DingTalkResponse
	if err := json.NewDecoder(resp.Body).Decode(&dingResp); err != nil {
		return fmt.Errorf("解析响应失败: %v", err)
	}

	if dingResp.ErrCode != 0 {
		return fmt.Errorf("钉钉API错误 [%d]: %s", dingResp.ErrCode, dingResp.ErrMsg)
	}

	return nil
}
