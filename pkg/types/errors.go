package types

import "errors"

var (
	// ErrInvalidConfiguration 配置非法，启动即失败
	ErrInvalidConfiguration = errors.New("配置非法")
	// ErrInsufficientData K线数量不足
	ErrInsufficientData = errors.New("数据不足")
	// ErrStructureRefresh 市场结构刷新失败，沿用上一次结构
	ErrStructureRefresh = errors.New("市场结构刷新失败")
	// ErrSizing 计算仓位为非正数
	ErrSizing = errors.New("仓位过小")
	// ErrUnknownOrder 回报的订单不在待处理集合中
	ErrUnknownOrder = errors.New("未知订单")
)
