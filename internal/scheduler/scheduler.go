package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ShouldRefresh 距上次结构刷新是否已经过了 frequency 根K线
func ShouldRefresh(barCount, lastRefresh, frequency int) bool {
	if frequency <= 0 {
		return true
	}
	return barCount-lastRefresh >= frequency
}

// BarDuration 解析 OKX K线周期，如 15m、1H、1D
func BarDuration(bar string) (time.Duration, error) {
	bar = strings.TrimSpace(bar)
	if len(bar) < 2 {
		return 0, fmt.Errorf("无效的K线周期: %q", bar)
	}

	n, err := strconv.Atoi(bar[:len(bar)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("无效的K线周期: %q", bar)
	}

	switch bar[len(bar)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'H', 'h':
		return time.Duration(n) * time.Hour, nil
	case 'D', 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'W', 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("无效的K线周期: %q", bar)
	}
}

// NextAlignedTime 计算下一个与周期对齐的时间点（按UTC整点对齐）
func NextAlignedTime(now time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return now
	}
	return now.Truncate(interval).Add(interval)
}

// Job 调度任务
type Job func(ctx context.Context)

// Scheduler 按K线周期对齐的定时调度器
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job
	now      func() time.Time
}

// NewScheduler 创建调度器
func NewScheduler(name string, interval time.Duration, job Job) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		now:      time.Now,
	}
}

// Start 立即执行一次，之后在每个对齐时间点执行，直到 ctx 取消
func (s *Scheduler) Start(ctx context.Context) {
	zap.L().Info("🚀 调度器启动", zap.String("job", s.name), zap.Duration("interval", s.interval))

	for {
		s.job(ctx)

		// 计算下一次执行时间（下一个K线时间点）
		next := NextAlignedTime(s.now(), s.interval)
		waitDuration := next.Sub(s.now())

		zap.L().Info("⏰ 下次执行时间",
			zap.String("job", s.name),
			zap.String("at", next.Format("15:04:05")),
			zap.Duration("wait", waitDuration))

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			zap.L().Info("📴 调度器已停止", zap.String("job", s.name))
			return
		case <-timer.C:
		}
	}
}
