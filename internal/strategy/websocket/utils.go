package websocket

import (
	"strings"
	"sync"
	"time"
)

// channelName K线频道名，如 15m -> candle15m
func channelName(interval string) string {
	return "candle" + interval
}

// intervalFromChannel candle15m -> 15m
func intervalFromChannel(channel string) string {
	return strings.TrimPrefix(channel, "candle")
}

// confirmTracker 记录每个交易对最后推送的收盘K线，过滤重复推送
type confirmTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newConfirmTracker() *confirmTracker {
	return &confirmTracker{last: make(map[string]time.Time)}
}

// accept 时间戳比上一根新才放行
func (t *confirmTracker) accept(symbol string, ts time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[symbol]; ok && !ts.After(last) {
		return false
	}
	t.last[symbol] = ts
	return true
}
