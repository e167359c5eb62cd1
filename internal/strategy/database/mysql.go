package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"price-action-sentry/pkg/types"
)

// Manager 数据库管理器
type Manager struct {
	db     *gorm.DB
	config types.MySQLConfig
}

// KLine 数据库K线模型
type KLine struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"type:varchar(20);not null;uniqueIndex:uk_symbol_interval_time" json:"symbol"`
	Interval  string    `gorm:"column:bar_interval;type:varchar(10);not null;uniqueIndex:uk_symbol_interval_time" json:"interval"`
	OpenTime  int64     `gorm:"not null;uniqueIndex:uk_symbol_interval_time" json:"open_time"`
	Open      float64   `gorm:"type:decimal(20,8);not null" json:"open"`
	High      float64   `gorm:"type:decimal(20,8);not null" json:"high"`
	Low       float64   `gorm:"type:decimal(20,8);not null" json:"low"`
	Close     float64   `gorm:"type:decimal(20,8);not null" json:"close"`
	Volume    float64   `gorm:"type:decimal(28,8);not null" json:"volume"`
	CreatedAt time.Time `json:"created_at"`
}

// StructureRecord 市场结构快照模型
type StructureRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Symbol      string    `gorm:"type:varchar(20);not null;index:idx_symbol_time" json:"symbol"`
	BarTime     int64     `gorm:"not null;index:idx_symbol_time" json:"bar_time"`
	Trend       string    `gorm:"type:varchar(12);not null" json:"trend"`
	ATR         float64   `gorm:"type:decimal(20,8);not null" json:"atr"`
	SwingHighs  int       `gorm:"default:0" json:"swing_highs"`
	SwingLows   int       `gorm:"default:0" json:"swing_lows"`
	SupplyZones int       `gorm:"default:0" json:"supply_zones"`
	DemandZones int       `gorm:"default:0" json:"demand_zones"`
	CreatedAt   time.Time `json:"created_at"`
}

// TradingSignal 交易信号模型
type TradingSignal struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TradeID      string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"trade_id"`
	Symbol       string    `gorm:"type:varchar(20);not null;index:idx_symbol_time" json:"symbol"`
	SignalTime   int64     `gorm:"not null;index:idx_symbol_time" json:"signal_time"`
	SignalType   string    `gorm:"type:enum('LONG','SHORT');not null" json:"signal_type"`
	Price        float64   `gorm:"type:decimal(20,8);not null" json:"price"`
	StopLoss     float64   `gorm:"type:decimal(20,8);not null" json:"stop_loss"`
	TakeProfit   float64   `gorm:"type:decimal(20,8);not null" json:"take_profit"`
	Size         float64   `gorm:"type:decimal(28,8);not null" json:"size"`
	ATRValue     float64   `gorm:"type:decimal(20,8)" json:"atr_value"`
	Trend        string    `gorm:"type:varchar(12)" json:"trend"`
	ZonePrice    float64   `gorm:"type:decimal(20,8)" json:"zone_price"`
	ZoneStrength float64   `gorm:"type:decimal(3,2)" json:"zone_strength"`
	Pattern      string    `gorm:"type:varchar(32)" json:"pattern"`
	CounterTrend bool      `gorm:"default:false" json:"counter_trend"`
	CreatedAt    time.Time `json:"created_at"`
}

// TradeRecord 交易记录模型，按 trade_id 覆盖更新
type TradeRecord struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	TradeID    string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"trade_id"`
	Symbol     string     `gorm:"type:varchar(20);not null;index" json:"symbol"`
	Side       string     `gorm:"type:varchar(8);not null" json:"side"`
	State      string     `gorm:"type:varchar(10);not null" json:"state"`
	EntryPrice float64    `gorm:"type:decimal(20,8)" json:"entry_price"`
	Size       float64    `gorm:"type:decimal(28,8)" json:"size"`
	StopLoss   float64    `gorm:"type:decimal(20,8)" json:"stop_loss"`
	TakeProfit float64    `gorm:"type:decimal(20,8)" json:"take_profit"`
	EntryTime  *time.Time `json:"entry_time"`
	ExitPrice  float64    `gorm:"type:decimal(20,8)" json:"exit_price"`
	ExitTime   *time.Time `json:"exit_time"`
	ExitReason string     `gorm:"type:varchar(12)" json:"exit_reason"`
	PnL        float64    `gorm:"column:pnl;type:decimal(20,8)" json:"pnl"`
	Commission float64    `gorm:"type:decimal(20,8)" json:"commission"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// StrategyPerformance 策略每日表现模型
type StrategyPerformance struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Symbol        string    `gorm:"type:varchar(20);not null;uniqueIndex:uk_symbol_date" json:"symbol"`
	Date          time.Time `gorm:"type:date;not null;uniqueIndex:uk_symbol_date" json:"date"`
	TotalSignals  int       `gorm:"default:0" json:"total_signals"`
	LongSignals   int       `gorm:"default:0" json:"long_signals"`
	ShortSignals  int       `gorm:"default:0" json:"short_signals"`
	ClosedTrades  int       `gorm:"default:0" json:"closed_trades"`
	WinningTrades int       `gorm:"default:0" json:"winning_trades"`
	RealizedPnL   float64   `gorm:"column:realized_pnl;type:decimal(20,8);default:0" json:"realized_pnl"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewManager 创建数据库管理器
func NewManager(config types.MySQLConfig) (*Manager, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)

	// 配置GORM日志
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 生产环境使用Silent
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %v", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %v", err)
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	manager := &Manager{
		db:     db,
		config: config,
	}

	// 自动迁移表结构
	if err := manager.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %v", err)
	}

	zap.L().Info("✅ MySQL数据库连接成功",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))

	return manager, nil
}

// AutoMigrate 自动迁移表结构
func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(
		&KLine{},
		&StructureRecord{},
		&TradingSignal{},
		&TradeRecord{},
		&StrategyPerformance{},
	)
}

// SaveBar 保存一根已收盘K线，重复写入忽略
func (m *Manager) SaveBar(symbol, interval string, bar types.Bar) error {
	return m.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(NewKLine(symbol, interval, bar)).Error
}

// BatchSaveBars 批量保存K线数据
func (m *Manager) BatchSaveBars(symbol, interval string, bars []types.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	dbKlines := make([]KLine, 0, len(bars))
	for _, bar := range bars {
		dbKlines = append(dbKlines, *NewKLine(symbol, interval, bar))
	}

	// 分批插入避免单个语句过大
	err := m.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			CreateInBatches(dbKlines, 100).Error
	})
	if err != nil {
		return fmt.Errorf("批量插入K线数据失败: %v", err)
	}

	zap.L().Debug("✅ 批量保存K线数据完成",
		zap.Int("count", len(bars)),
		zap.String("symbol", symbol))

	return nil
}

// SaveStructure 保存结构快照
func (m *Manager) SaveStructure(record *StructureRecord) error {
	return m.db.Create(record).Error
}

// SaveSignal 保存交易信号并累加当日统计
func (m *Manager) SaveSignal(signal types.Signal) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(NewTradingSignal(signal)).Error; err != nil {
			return err
		}
		return updatePerformance(tx, signal.Symbol, signal.SignalTime, func(updates map[string]interface{}, p *StrategyPerformance) {
			updates["total_signals"] = p.TotalSignals + 1
			if signal.Side == types.SideLong {
				updates["long_signals"] = p.LongSignals + 1
			} else {
				updates["short_signals"] = p.ShortSignals + 1
			}
		})
	})
}

// SaveTrade 写入或更新交易记录，平仓时累加当日盈亏
func (m *Manager) SaveTrade(trade types.Trade) error {
	record := NewTradeRecord(trade)
	return m.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "trade_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "entry_price", "size", "entry_time", "exit_price",
				"exit_time", "exit_reason", "pnl", "commission", "updated_at",
			}),
		}).Create(record).Error
		if err != nil {
			return err
		}
		if trade.State != types.TradeClosed {
			return nil
		}
		return updatePerformance(tx, trade.Symbol, trade.ExitTime, func(updates map[string]interface{}, p *StrategyPerformance) {
			updates["closed_trades"] = p.ClosedTrades + 1
			if trade.PnL > 0 {
				updates["winning_trades"] = p.WinningTrades + 1
			}
			updates["realized_pnl"] = p.RealizedPnL + trade.PnL
		})
	})
}

// updatePerformance 读取或创建当日记录后按 apply 更新
func updatePerformance(tx *gorm.DB, symbol string, at time.Time, apply func(map[string]interface{}, *StrategyPerformance)) error {
	day := at.UTC().Truncate(24 * time.Hour)

	var performance StrategyPerformance
	result := tx.Where("symbol = ? AND date = ?", symbol, day).First(&performance)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		performance = StrategyPerformance{Symbol: symbol, Date: day}
		if err := tx.Create(&performance).Error; err != nil {
			return err
		}
	} else if result.Error != nil {
		return result.Error
	}

	updates := map[string]interface{}{}
	apply(updates, &performance)
	return tx.Model(&performance).Where("id = ?", performance.ID).Updates(updates).Error
}

// GetBars 获取最近 limit 根K线，按时间从旧到新
func (m *Manager) GetBars(symbol, interval string, limit int) ([]types.Bar, error) {
	var dbKlines []KLine
	err := m.db.Where("symbol = ? AND bar_interval = ?", symbol, interval).
		Order("open_time DESC").
		Limit(limit).
		Find(&dbKlines).Error
	if err != nil {
		return nil, err
	}

	bars := make([]types.Bar, len(dbKlines))
	for i, k := range dbKlines {
		bars[len(dbKlines)-1-i] = k.Bar()
	}
	return bars, nil
}

// GetTradingSignals 获取交易信号
func (m *Manager) GetTradingSignals(symbol string, limit int) ([]TradingSignal, error) {
	var signals []TradingSignal
	err := m.db.Where("symbol = ?", symbol).
		Order("signal_time DESC").
		Limit(limit).
		Find(&signals).Error

	return signals, err
}

// GetTrades 获取交易记录
func (m *Manager) GetTrades(symbol string, limit int) ([]TradeRecord, error) {
	var trades []TradeRecord
	err := m.db.Where("symbol = ?", symbol).
		Order("created_at DESC").
		Limit(limit).
		Find(&trades).Error

	return trades, err
}

// GetStrategyPerformance 获取策略性能数据
func (m *Manager) GetStrategyPerformance(symbol string, days int) ([]StrategyPerformance, error) {
	var performances []StrategyPerformance
	startDate := time.Now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)

	err := m.db.Where("symbol = ? AND date >= ?", symbol, startDate).
		Order("date DESC").
		Find(&performances).Error

	return performances, err
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态
func (m *Manager) Health() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
