package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"price-action-sentry/pkg/types"
)

const pushPlusEndpoint = "http://www.pushplus.plus/send"

// PushPlusNotifier PushPlus通知器
type PushPlusNotifier struct {
	userToken  string
	to         string // 好友令牌，多人用逗号分隔
	endpoint   string
	httpClient *http.Client
}

type PushPlusRequest struct {
	Token    string `json:"token"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Template string `json:"template"`
	To       string `json:"to,omitempty"` // 好友令牌，给朋友发送通知
}

type PushPlusResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data string `json:"data"`
}

func NewPushPlusNotifier(userToken, to string) Interface {
	// 如果没有配置user token，返回控制台通知器
	if userToken == "" {
		zap.L().Info("🔧 未配置PushPlus User Token，使用控制台输出模式")
		return NewConsoleNotifier()
	}

	if to != "" {
		zap.L().Info("✅ 已配置PushPlus通知服务（包含好友推送）", zap.String("to", to))
	} else {
		zap.L().Info("✅ 已配置PushPlus通知服务")
	}

	return &PushPlusNotifier{
		userToken: userToken,
		to:        to,
		endpoint:  pushPlusEndpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (ppn *PushPlusNotifier) SendSignal(signal *types.Signal) error {
	arrow, text := sideText(signal.Side)
	title := fmt.Sprintf("%s 回踩信号 - %s %s", arrow, signal.Symbol, text)

	if err := ppn.sendPushPlusMessage(title, ppn.buildSignalHTML(signal)); err != nil {
		return fallback("pushplus", err).SendSignal(signal)
	}

	zap.L().Info("✅ PushPlus信号通知已发送", zap.String("symbol", signal.Symbol), zap.String("side", text))
	return nil
}

func (ppn *PushPlusNotifier) SendTradeClosed(trade *types.Trade) error {
	title := fmt.Sprintf("💰 平仓 - %s %+.4f", trade.Symbol, trade.PnL)
	content := fmt.Sprintf(`
<div style="border: 2px solid #1890ff; border-radius: 10px; padding: 20px; margin: 10px; background-color: #f9f9f9;">
    <h2 style="color: #1890ff; text-align: center; margin-top: 0;">%s %s 平仓</h2>
    <div style="background-color: white; padding: 15px; border-radius: 8px; margin: 10px 0;">
        <p><strong>开仓价:</strong> %.6f</p>
        <p><strong>平仓价:</strong> %.6f (%s)</p>
        <p><strong>盈亏:</strong> <span style="font-size: 18px; font-weight: bold;">%+.4f</span></p>
        <p><strong>平仓时间:</strong> <span style="color: #666;">%s</span></p>
    </div>
</div>
`,
		trade.Symbol, trade.Side,
		trade.EntryPrice,
		trade.ExitPrice, trade.ExitReason,
		trade.PnL,
		trade.ExitTime.Format(timeLayout))

	if err := ppn.sendPushPlusMessage(title, content); err != nil {
		return fallback("pushplus", err).SendTradeClosed(trade)
	}
	return nil
}

func (ppn *PushPlusNotifier) SendReports(reports []*types.MarketReport) error {
	if len(reports) == 0 {
		return nil
	}

	setups, _, _ := reportSummary(reports)
	title := fmt.Sprintf("📊 价格行为分析 - %d个交易对 / %d个入场条件", len(reports), setups)

	if err := ppn.sendPushPlusMessage(title, ppn.buildReportsHTML(reports)); err != nil {
		return fallback("pushplus", err).SendReports(reports)
	}

	zap.L().Info("✅ PushPlus分析报告已发送", zap.Int("symbols", len(reports)), zap.Int("setups", setups))
	return nil
}

func (ppn *PushPlusNotifier) buildSignalHTML(signal *types.Signal) string {
	arrow, text := sideText(signal.Side)
	color := "#00C851" // 绿色表示做多
	if signal.Side == types.SideShort {
		color = "#FF4444"
	}

	warning := ""
	if signal.CounterTrend {
		warning = `<p style="color: #FF8800;"><strong>⚠️ 逆势交易，注意控制仓位</strong></p>`
	}

	return fmt.Sprintf(`
<div style="border: 2px solid %s; border-radius: 10px; padding: 20px; margin: 10px; background-color: #f9f9f9;">
    <h2 style="color: %s; text-align: center; margin-top: 0;">%s 区域回踩%s信号</h2>

    <div style="background-color: white; padding: 15px; border-radius: 8px; margin: 10px 0;">
        <p><strong>交易对:</strong> <a href="%s" style="font-size: 18px; color: #1890ff; text-decoration: none;" target="_blank">%s 🔗</a></p>
        <p><strong>入场价格:</strong> <span style="font-size: 16px; color: #333;">%.6f</span></p>
        <p><strong>止损:</strong> %.6f　<strong>止盈:</strong> %.6f</p>
        <p><strong>仓位:</strong> %.6f　<strong>ATR:</strong> %.6f</p>
        <p><strong>趋势:</strong> %s　<strong>区域:</strong> %s %.6f (强度 %.1f)</p>
        <p><strong>确认形态:</strong> %s</p>
        <p><strong>信号时间:</strong> <span style="color: #666;">%s</span></p>
        %s
    </div>
</div>
`,
		color, color, arrow, text,
		buildTradingURL(signal.Symbol), signal.Symbol,
		signal.Price,
		signal.StopLoss, signal.TakeProfit,
		signal.Size, signal.ATR,
		signal.Trend, signal.Zone.Side, signal.Zone.Price, signal.Zone.Strength,
		orDash(signal.Pattern),
		signal.SignalTime.Format(timeLayout),
		warning)
}

func (ppn *PushPlusNotifier) buildReportsHTML(reports []*types.MarketReport) string {
	setups, failures, at := reportSummary(reports)

	content := fmt.Sprintf(`
<div style="border: 2px solid #1890ff; border-radius: 10px; padding: 20px; margin: 10px; background-color: #f9f9f9;">
    <h2 style="color: #1890ff; text-align: center; margin-top: 0;">📊 价格行为结构分析</h2>
    <div style="background-color: #E3F2FD; padding: 15px; border-radius: 8px; margin: 10px 0;">
        <p style="margin: 5px 0;">🎯 满足入场条件: <span style="font-weight: bold;">%d个</span></p>
        <p style="margin: 5px 0;">❌ 分析失败: %d个</p>
        <p style="margin: 5px 0;">🕐 分析时间: <span style="color: #666;">%s</span></p>
    </div>
    <table style="width: 100%%; border-collapse: collapse;">
        <tr style="background-color: #E8F5E8;">
            <th style="padding: 8px; text-align: left;">币种</th>
            <th style="padding: 8px; text-align: left;">趋势</th>
            <th style="padding: 8px; text-align: right;">收盘</th>
            <th style="padding: 8px; text-align: left;">供给/需求</th>
            <th style="padding: 8px; text-align: left;">信号</th>
        </tr>`,
		setups, failures, at.Format(timeLayout))

	for _, r := range sortReports(reports) {
		setup := "-"
		if r.HasSetup() {
			arrow, text := sideText(*r.Setup)
			setup = arrow + " " + text
		}
		if r.Error != "" {
			setup = "❌ " + r.Error
		}
		content += fmt.Sprintf(`
        <tr>
            <td style="padding: 8px; border-bottom: 1px solid #eee;"><a href="%s" target="_blank">%s</a></td>
            <td style="padding: 8px; border-bottom: 1px solid #eee;">%s</td>
            <td style="padding: 8px; text-align: right; border-bottom: 1px solid #eee;">%.6g</td>
            <td style="padding: 8px; border-bottom: 1px solid #eee;">%s / %s</td>
            <td style="padding: 8px; border-bottom: 1px solid #eee;">%s</td>
        </tr>`,
			buildTradingURL(r.Symbol), r.Symbol, r.Trend, r.LastClose,
			zoneText(r.SupplyZones), zoneText(r.DemandZones), setup)
	}

	content += `
    </table>
</div>`
	return content
}

func (ppn *PushPlusNotifier) sendPushPlusMessage(title, content string) error {
	// 构建请求数据
	reqData := PushPlusRequest{
		Token:    ppn.userToken,
		Title:    title,
		Content:  content,
		Template: "html",
		To:       ppn.to,
	}

	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return fmt.Errorf("序列化请求数据失败: %v", err)
	}

	resp, err := ppn.httpClient.Post(ppn.endpoint, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %v", err)
	}
	defer resp.Body.Close()

	var pushResp PushPlusResponse
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return fmt.Errorf("解析响应失败: %v", err)
	}

	if pushResp.Code != 200 {
		return fmt.Errorf("PushPlus API错误: %s", pushResp.Msg)
	}

	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
