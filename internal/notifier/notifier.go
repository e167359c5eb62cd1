package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"price-action-sentry/pkg/types"
)

const timeLayout = "2006-01-02 15:04:05"

// Interface 通知接口
type Interface interface {
	SendSignal(signal *types.Signal) error
	SendTradeClosed(trade *types.Trade) error
	SendReports(reports []*types.MarketReport) error
}

// New 根据配置选择通知服务（优先级：钉钉 > PushPlus > 控制台）
func New(dingTalk types.DingTalkConfig, pushPlus types.PushPlusConfig) Interface {
	if dingTalk.WebhookURL != "" {
		return NewDingTalkNotifier(dingTalk.WebhookURL, dingTalk.Secret)
	}
	if pushPlus.UserToken != "" {
		return NewPushPlusNotifier(pushPlus.UserToken, pushPlus.To)
	}
	return NewConsoleNotifier()
}

// safePadding 安全地计算填充空格数量，避免负数
func safePadding(content string, totalWidth int) int {
	// 使用utf8.RuneCountInString计算实际显示字符数，而不是字节数
	runeCount := utf8.RuneCountInString(content)
	padding := totalWidth - runeCount - 4 // 4是边框字符数
	if padding < 0 {
		padding = 0
	}
	return padding
}

// buildTradingURL 根据交易对生成交易链接
func buildTradingURL(symbol string) string {
	return fmt.Sprintf("https://www.okx.com/trade-spot/%s", strings.ToLower(symbol))
}

// sideText 方向描述
func sideText(side types.TradeSide) (arrow, text string) {
	if side == types.SideShort {
		return "📉", "做空"
	}
	return "📈", "做多"
}

// sortReports 有入场条件的排在前面，其余按交易对排序
func sortReports(reports []*types.MarketReport) []*types.MarketReport {
	sorted := append([]*types.MarketReport(nil), reports...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].HasSetup() != sorted[j].HasSetup() {
			return sorted[i].HasSetup()
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})
	return sorted
}

// zoneText 区域摘要，如 100.5(1.0)
func zoneText(zones []types.Zone) string {
	if len(zones) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(zones))
	for _, z := range zones {
		parts = append(parts, fmt.Sprintf("%.6g(%.1f)", z.Price, z.Strength))
	}
	return strings.Join(parts, " ")
}

// ConsoleNotifier 控制台通知器
type ConsoleNotifier struct{}

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{}
}

func (cn *ConsoleNotifier) SendSignal(signal *types.Signal) error {
	arrow, text := sideText(signal.Side)
	lines := []string{
		fmt.Sprintf("%s 🚨 回踩信号 %s %s", arrow, signal.Symbol, text),
		"",
		fmt.Sprintf("入场价格: %.6f", signal.Price),
		fmt.Sprintf("止损/止盈: %.6f / %.6f", signal.StopLoss, signal.TakeProfit),
		fmt.Sprintf("仓位: %.6f  ATR: %.6f", signal.Size, signal.ATR),
		fmt.Sprintf("趋势: %s  区域: %s %.6f (强度%.1f)", signal.Trend, signal.Zone.Side, signal.Zone.Price, signal.Zone.Strength),
	}
	if signal.Pattern != "" {
		lines = append(lines, fmt.Sprintf("确认形态: %s", signal.Pattern))
	}
	if signal.CounterTrend {
		lines = append(lines, "⚠️ 逆势交易")
	}
	lines = append(lines, fmt.Sprintf("信号时间: %s", signal.SignalTime.Format(timeLayout)))

	printBox(lines, 60)
	return nil
}

func (cn *ConsoleNotifier) SendTradeClosed(trade *types.Trade) error {
	result := "✅ 盈利"
	if trade.PnL <= 0 {
		result = "❌ 亏损"
	}
	printBox([]string{
		fmt.Sprintf("%s 平仓 %s %s", result, trade.Symbol, trade.Side),
		"",
		fmt.Sprintf("开仓/平仓: %.6f -> %.6f", trade.EntryPrice, trade.ExitPrice),
		fmt.Sprintf("原因: %s  数量: %.6f", trade.ExitReason, trade.Size),
		fmt.Sprintf("盈亏: %+.4f  手续费: %.4f", trade.PnL, trade.Commission),
		fmt.Sprintf("平仓时间: %s", trade.ExitTime.Format(timeLayout)),
	}, 60)
	return nil
}

func (cn *ConsoleNotifier) SendReports(reports []*types.MarketReport) error {
	if len(reports) == 0 {
		return nil
	}

	setups := 0
	for _, r := range reports {
		if r.HasSetup() {
			setups++
		}
	}

	lines := []string{
		fmt.Sprintf("📊 价格行为结构分析 - %d个交易对", len(reports)),
		fmt.Sprintf("🎯 满足入场条件: %d个", setups),
		"",
	}
	for i, r := range sortReports(reports) {
		if r.Error != "" {
			lines = append(lines, fmt.Sprintf("%d. ❌ %s: %s", i+1, r.Symbol, r.Error))
			continue
		}
		mark := "  "
		if r.HasSetup() {
			mark, _ = sideText(*r.Setup)
		}
		lines = append(lines,
			fmt.Sprintf("%d. %s %s %s 收盘 %.6g ATR %.4g", i+1, mark, r.Symbol, r.Trend, r.LastClose, r.ATR),
			fmt.Sprintf("     供给: %s", zoneText(r.SupplyZones)),
			fmt.Sprintf("     需求: %s", zoneText(r.DemandZones)))
		if r.LatestPattern != "" {
			lines = append(lines, fmt.Sprintf("     最新形态: %s", r.LatestPattern))
		}
	}
	lines = append(lines, "", fmt.Sprintf("分析时间: %s", reports[0].AnalyzedAt.Format(timeLayout)))

	printBox(lines, 80)
	return nil
}

// printBox 输出带边框的消息块
func printBox(lines []string, width int) {
	border := "╔" + strings.Repeat("═", width) + "╗"
	bottomBorder := "╚" + strings.Repeat("═", width) + "╝"

	fmt.Println()
	fmt.Println(border)
	for _, line := range lines {
		if line == "" {
			fmt.Println("║" + strings.Repeat(" ", width) + "║")
			continue
		}
		fmt.Printf("║ %s%s ║\n", line, strings.Repeat(" ", safePadding(line, width)))
	}
	fmt.Println(bottomBorder)
	fmt.Println()
}

// fallback 远程通知失败时降级为控制台输出
func fallback(channel string, err error) *ConsoleNotifier {
	zap.L().Warn("❌ 通知发送失败，降级为控制台输出", zap.String("channel", channel), zap.Error(err))
	return NewConsoleNotifier()
}

// reportSummary 报告统计
func reportSummary(reports []*types.MarketReport) (setups, failures int, at time.Time) {
	for _, r := range reports {
		if r.HasSetup() {
			setups++
		}
		if r.Error != "" {
			failures++
		}
	}
	if len(reports) > 0 {
		at = reports[0].AnalyzedAt
	}
	return setups, failures, at
}
