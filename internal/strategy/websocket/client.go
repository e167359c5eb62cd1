package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"price-action-sentry/internal/strategy/fetcher"
	"price-action-sentry/pkg/types"
)

// CandleEvent 已收盘K线推送
type CandleEvent struct {
	Symbol   string
	Interval string
	Bar      types.Bar
}

// Client WebSocket客户端，只向下游推送已收盘的K线
type Client struct {
	endpoint      string
	proxy         string
	conn          *websocket.Conn
	mu            sync.RWMutex
	writeMu       sync.Mutex
	isConnected   bool
	reconnectChan chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
	candleChan    chan CandleEvent
	config        types.WebSocketConfig
	symbols       []string
	interval      string
	dedup         *confirmTracker
}

// OKXCandleResponse OKX K线推送
type OKXCandleResponse struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data [][]string `json:"data"`
}

// OKXSubscription OKX订阅消息
type OKXSubscription struct {
	Op   string            `json:"op"`
	Args []OKXSubscribeArg `json:"args"`
}

// OKXSubscribeArg 订阅参数
type OKXSubscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// NewClient 创建新的WebSocket客户端
func NewClient(ctx context.Context, proxy string, config types.WebSocketConfig) *Client {
	ctx, cancel := context.WithCancel(ctx)

	return &Client{
		endpoint:      config.OKXEndpoint,
		proxy:         proxy,
		reconnectChan: make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
		candleChan:    make(chan CandleEvent, 1000), // 缓冲1000根K线
		config:        config,
		dedup:         newConfirmTracker(),
	}
}

// Connect 建立WebSocket连接
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 设置Dialer
	dialer := *websocket.DefaultDialer
	if c.proxy != "" {
		proxyURL, err := url.Parse(c.proxy)
		if err != nil {
			return fmt.Errorf("解析代理URL失败: %v", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}

	// 建立连接
	conn, _, err := dialer.DialContext(c.ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("WebSocket连接失败: %v", err)
	}

	c.conn = conn
	c.isConnected = true

	zap.L().Info("✅ WebSocket连接建立成功",
		zap.String("endpoint", c.endpoint),
		zap.String("proxy", c.proxy))

	return nil
}

// Subscribe 订阅K线数据，重连后自动重新订阅
func (c *Client) Subscribe(symbols []string, interval string) error {
	c.mu.Lock()
	c.symbols = append([]string(nil), symbols...)
	c.interval = interval
	c.mu.Unlock()

	return c.sendSubscription()
}

func (c *Client) sendSubscription() error {
	c.mu.RLock()
	conn := c.conn
	connected := c.isConnected
	symbols := c.symbols
	interval := c.interval
	c.mu.RUnlock()

	if !connected || conn == nil {
		return fmt.Errorf("WebSocket未连接")
	}
	if len(symbols) == 0 {
		return nil
	}

	subscription := OKXSubscription{Op: "subscribe"}
	for _, symbol := range symbols {
		subscription.Args = append(subscription.Args, OKXSubscribeArg{
			Channel: channelName(interval),
			InstID:  symbol,
		})
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(subscription)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("发送订阅消息失败: %v", err)
	}

	zap.L().Info("📊 已订阅K线数据",
		zap.Strings("symbols", symbols),
		zap.String("interval", interval))

	return nil
}

// StartReading 开始读取WebSocket数据
func (c *Client) StartReading() {
	go c.readLoop()
	go c.reconnectLoop()
	go c.pingLoop()
}

// readLoop 读取数据循环
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("WebSocket读取panic", zap.Any("error", r))
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				time.Sleep(time.Second)
				continue
			}

			_, message, err := conn.ReadMessage()
			if err != nil {
				if c.ctx.Err() != nil {
					return
				}
				zap.L().Error("WebSocket读取消息失败", zap.Error(err))
				c.handleDisconnect()
				continue
			}

			events, err := c.parseMessage(message)
			if err != nil {
				zap.L().Warn("解析K线数据失败", zap.Error(err))
				continue
			}
			for _, event := range events {
				select {
				case c.candleChan <- event:
				default:
					zap.L().Warn("K线数据通道满，丢弃数据", zap.String("symbol", event.Symbol))
				}
			}
		}
	}
}

// parseMessage 解析推送消息，返回新收盘的K线
func (c *Client) parseMessage(message []byte) ([]CandleEvent, error) {
	// 心跳响应
	if string(message) == "pong" {
		return nil, nil
	}

	var response OKXCandleResponse
	if err := json.Unmarshal(message, &response); err != nil {
		return nil, err
	}

	if response.Event == "error" {
		return nil, fmt.Errorf("订阅失败: code=%s, msg=%s", response.Code, response.Msg)
	}

	// 忽略非K线数据
	if !strings.HasPrefix(response.Arg.Channel, "candle") {
		return nil, nil
	}

	interval := intervalFromChannel(response.Arg.Channel)
	var events []CandleEvent
	for _, data := range response.Data {
		bar, confirmed, err := fetcher.ParseOKXCandle(data)
		if err != nil {
			zap.L().Warn("解析单条K线数据失败", zap.Error(err))
			continue
		}
		// 跳过未收盘的K线
		if !confirmed {
			continue
		}
		if !c.dedup.accept(response.Arg.InstID, bar.Timestamp) {
			continue
		}
		events = append(events, CandleEvent{
			Symbol:   response.Arg.InstID,
			Interval: interval,
			Bar:      bar,
		})
	}

	return events, nil
}

// reconnectLoop 重连循环
func (c *Client) reconnectLoop() {
	reconnectAttempts := 0

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.reconnectChan:
			reconnectAttempts++
			if reconnectAttempts > c.config.MaxReconnectAttempts {
				zap.L().Error("达到最大重连次数，停止重连",
					zap.Int("max_attempts", c.config.MaxReconnectAttempts))
				return
			}

			zap.L().Info("尝试重连WebSocket",
				zap.Int("attempt", reconnectAttempts),
				zap.Int("max_attempts", c.config.MaxReconnectAttempts))

			if err := c.Connect(); err != nil {
				zap.L().Error("重连失败", zap.Error(err))
				select {
				case <-c.ctx.Done():
					return
				case <-time.After(c.config.ReconnectInterval):
				}
				c.triggerReconnect()
				continue
			}

			if err := c.sendSubscription(); err != nil {
				zap.L().Error("重新订阅失败", zap.Error(err))
				c.handleDisconnect()
				continue
			}

			// 重连成功，重置重连次数
			reconnectAttempts = 0
			zap.L().Info("WebSocket重连成功")
		}
	}
}

// pingLoop 心跳循环，OKX要求发送文本 "ping"
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			isConnected := c.isConnected
			c.mu.RUnlock()

			if !isConnected || conn == nil {
				continue
			}

			c.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			c.writeMu.Unlock()
			if err != nil {
				zap.L().Error("发送心跳失败", zap.Error(err))
				c.handleDisconnect()
			}
		}
	}
}

// handleDisconnect 处理断线
func (c *Client) handleDisconnect() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.isConnected = false
	c.mu.Unlock()

	c.triggerReconnect()
}

func (c *Client) triggerReconnect() {
	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

// Candles 已收盘K线通道
func (c *Client) Candles() <-chan CandleEvent {
	return c.candleChan
}

// Close 关闭WebSocket连接
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.isConnected = false
		return err
	}

	return nil
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}
