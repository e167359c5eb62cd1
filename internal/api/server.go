package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"price-action-sentry/internal/strategy/engine"
	"price-action-sentry/internal/strategy/monitor"
	"price-action-sentry/pkg/types"
)

// EngineView 实时引擎的只读视图
type EngineView interface {
	Snapshots() []engine.Snapshot
	Snapshot(symbol string) (engine.Snapshot, bool)
	GetStats() map[string]interface{}
}

// MetricsSource 性能指标来源
type MetricsSource interface {
	GetMetrics() *monitor.PerformanceMetrics
}

// ReportStore 分析报告缓存
type ReportStore interface {
	Load(ctx context.Context, symbol string, dst interface{}) (bool, error)
	GetAllSymbols() []string
}

// Server 只读状态查询接口
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	addr       string
	engine     EngineView
	metrics    MetricsSource
	reports    ReportStore
	startedAt  time.Time
}

// NewServer 创建状态查询服务，engine/metrics/reports 均可为 nil
func NewServer(config types.APIConfig, engineView EngineView, metrics MetricsSource, reports ReportStore) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:    router,
		addr:      config.Addr,
		engine:    engineView,
		metrics:   metrics,
		reports:   reports,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/stats", s.handleStats)
		api.GET("/metrics", s.handleMetrics)

		api.GET("/snapshots", s.handleSnapshots)
		api.GET("/snapshots/:symbol", s.handleSnapshot)
		api.GET("/trades", s.handleTrades)

		api.GET("/reports", s.handleReports)
		api.GET("/reports/:symbol", s.handleReport)
	}
}

// Handler 供测试与外部复用
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动HTTP服务，阻塞直到关闭
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("🌐 状态接口启动", zap.String("addr", s.addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("状态接口启动失败: %w", err)
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	zap.L().Info("🛑 正在关闭状态接口...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"live":    s.engine != nil,
		"reports": s.reports != nil,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	c.JSON(http.StatusOK, s.engine.GetStats())
}

func (s *Server) handleMetrics(c *gin.Context) {
	if s.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "性能监控未启用"})
		return
	}
	c.JSON(http.StatusOK, s.metrics.GetMetrics())
}

func (s *Server) handleSnapshots(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": s.engine.Snapshots()})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	symbol := normalizeSymbol(c.Param("symbol"))
	snapshot, ok := s.engine.Snapshot(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "未跟踪的交易对", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// handleTrades 合并活跃与已结束交易，可按 symbol 与 state 过滤
func (s *Server) handleTrades(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	symbol := normalizeSymbol(c.Query("symbol"))
	state := strings.ToUpper(c.Query("state"))

	trades := make([]types.Trade, 0)
	for _, snapshot := range s.engine.Snapshots() {
		if symbol != "" && snapshot.Symbol != symbol {
			continue
		}
		for _, trade := range append(append([]types.Trade(nil), snapshot.ActiveTrades...), snapshot.History...) {
			if state != "" && strings.ToUpper(trade.State.String()) != state {
				continue
			}
			trades = append(trades, trade)
		}
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].EntryTime.Before(trades[j].EntryTime) })

	c.JSON(http.StatusOK, gin.H{"count": len(trades), "trades": trades})
}

func (s *Server) handleReports(c *gin.Context) {
	if !s.requireReports(c) {
		return
	}
	reports := make([]types.MarketReport, 0)
	for _, symbol := range s.reports.GetAllSymbols() {
		var report types.MarketReport
		found, err := s.reports.Load(c.Request.Context(), symbol, &report)
		if err != nil {
			zap.L().Warn("读取分析报告失败", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if found {
			reports = append(reports, report)
		}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(reports), "reports": reports})
}

func (s *Server) handleReport(c *gin.Context) {
	if !s.requireReports(c) {
		return
	}
	symbol := normalizeSymbol(c.Param("symbol"))
	var report types.MarketReport
	found, err := s.reports.Load(c.Request.Context(), symbol, &report)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "暂无分析报告", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) requireEngine(c *gin.Context) bool {
	if s.engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "实时引擎未运行"})
		return false
	}
	return true
}

func (s *Server) requireReports(c *gin.Context) bool {
	if s.reports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "分析报告缓存未启用"})
		return false
	}
	return true
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// requestLogger 用zap记录请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Debug("HTTP请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
