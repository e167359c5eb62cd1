package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"price-action-sentry/pkg/types"
)

const keyPrefix = "pas"

// entry 内存中保存的序列化结果
type entry struct {
	payload   []byte
	updatedAt time.Time
}

// StateManager 按交易对缓存结构快照，Redis不可用时退化为纯内存
type StateManager struct {
	namespace   string
	ttl         time.Duration
	entries     map[string]entry
	mutex       sync.RWMutex
	redisClient *redis.Client
	useRedis    bool
}

// NewStateManager 创建状态缓存，namespace 区分不同数据（如 snapshot / analysis）
func NewStateManager(namespace string, ttl time.Duration, redisConfig types.RedisConfig) *StateManager {
	sm := &StateManager{
		namespace: namespace,
		ttl:       ttl,
		entries:   make(map[string]entry),
	}

	// 尝试连接Redis
	if redisConfig.URL == "" {
		zap.L().Info("🔧 未配置Redis，使用纯内存模式", zap.String("namespace", namespace))
		return sm
	}

	sm.redisClient = redis.NewClient(&redis.Options{
		Addr:     redisConfig.URL,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := sm.redisClient.Ping(ctx).Result(); err != nil {
		zap.L().Warn("⚠️ Redis连接失败，使用纯内存模式", zap.Error(err))
		sm.redisClient.Close()
		sm.redisClient = nil
		return sm
	}

	zap.L().Info("✅ Redis连接成功", zap.String("addr", redisConfig.URL), zap.String("namespace", namespace))
	sm.useRedis = true
	return sm
}

func (sm *StateManager) key(symbol string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, sm.namespace, symbol)
}

// Store 保存交易对的最新状态，同时异步备份到Redis
func (sm *StateManager) Store(symbol string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化状态失败: %v", err)
	}

	sm.mutex.Lock()
	sm.entries[symbol] = entry{payload: payload, updatedAt: time.Now()}
	sm.mutex.Unlock()

	if sm.useRedis {
		go sm.backupToRedis(symbol, payload)
	}
	return nil
}

// backupToRedis 备份数据到Redis
func (sm *StateManager) backupToRedis(symbol string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := sm.redisClient.Set(ctx, sm.key(symbol), payload, sm.ttl).Err(); err != nil {
		zap.L().Warn("Redis存储失败", zap.String("symbol", symbol), zap.Error(err))
	}
}

// Load 读取交易对状态到 dst，内存未命中时回查Redis
func (sm *StateManager) Load(ctx context.Context, symbol string, dst interface{}) (bool, error) {
	sm.mutex.RLock()
	e, ok := sm.entries[symbol]
	sm.mutex.RUnlock()

	if !ok && sm.useRedis {
		payload, err := sm.redisClient.Get(ctx, sm.key(symbol)).Bytes()
		switch {
		case err == redis.Nil:
		case err != nil:
			return false, fmt.Errorf("读取Redis失败: %v", err)
		default:
			e, ok = entry{payload: payload}, true
		}
	}
	if !ok {
		return false, nil
	}

	if sm.ttl > 0 && !e.updatedAt.IsZero() && time.Since(e.updatedAt) > sm.ttl {
		return false, nil
	}
	if err := json.Unmarshal(e.payload, dst); err != nil {
		return false, fmt.Errorf("反序列化状态失败: %v", err)
	}
	return true, nil
}

// GetAllSymbols 内存中已缓存的交易对，按名称排序
func (sm *StateManager) GetAllSymbols() []string {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	symbols := make([]string, 0, len(sm.entries))
	for symbol := range sm.entries {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// GetRedisStats 获取缓存统计信息
func (sm *StateManager) GetRedisStats() map[string]interface{} {
	sm.mutex.RLock()
	stats := map[string]interface{}{
		"namespace":      sm.namespace,
		"redis_enabled":  sm.useRedis,
		"memory_symbols": len(sm.entries),
	}
	sm.mutex.RUnlock()

	if sm.useRedis {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		// 获取Redis中的key数量
		keys, err := sm.redisClient.Keys(ctx, fmt.Sprintf("%s:%s:*", keyPrefix, sm.namespace)).Result()
		if err == nil {
			stats["redis_keys"] = len(keys)
		} else {
			stats["redis_error"] = err.Error()
		}
	}

	return stats
}

// Close 关闭Redis连接
func (sm *StateManager) Close() error {
	if sm.redisClient == nil {
		return nil
	}
	return sm.redisClient.Close()
}
