package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gaiaguardians/walking/internal/config"
	energydomain "github.com/gaiaguardians/walking/internal/energy/domain"
	"github.com/gaiaguardians/walking/internal/observability/metrics"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "walking"

// redisLayer is the shared backend for multi-instance deployments.
// Values are JSON; per-guardian index sets record which history ranges
// and recent limits are cached so invalidation can stay exact.
type redisLayer struct {
	client  *redis.Client
	ttl     config.CacheConfig
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewRedisLayer(client *redis.Client, cfg config.CacheConfig, log *zap.Logger, m *metrics.Metrics) Layer {
	return &redisLayer{
		client:  client,
		ttl:     cfg,
		log:     log.Named("cache.redis"),
		metrics: m,
	}
}

func (l *redisLayer) GetDailyAggregate(ctx context.Context, guardianID snowflake.ID, date string) (stepdomain.DailyStepAggregate, bool) {
	var agg stepdomain.DailyStepAggregate
	ok := l.getJSON(ctx, l.aggKey(guardianID, date), &agg)
	l.record(ctx, "daily_aggregate", ok)
	return agg, ok
}

func (l *redisLayer) SetDailyAggregate(ctx context.Context, agg stepdomain.DailyStepAggregate) {
	if !l.setJSON(ctx, l.aggKey(agg.GuardianID, agg.Date), agg, l.ttl.DailyAggregateTTL) {
		return
	}
	l.indexAdd(ctx, l.idxKey("agg", agg.GuardianID), agg.Date)
}

func (l *redisLayer) GetHistory(ctx context.Context, guardianID snowflake.ID, from, to string) ([]stepdomain.DailyStepAggregate, bool) {
	var aggs []stepdomain.DailyStepAggregate
	ok := l.getJSON(ctx, l.histKey(guardianID, from, to), &aggs)
	l.record(ctx, "history", ok)
	return aggs, ok
}

func (l *redisLayer) SetHistory(ctx context.Context, guardianID snowflake.ID, from, to string, aggs []stepdomain.DailyStepAggregate) {
	if !l.setJSON(ctx, l.histKey(guardianID, from, to), aggs, l.ttl.HistoryTTL) {
		return
	}
	l.indexAdd(ctx, l.idxKey("hist", guardianID), from+"|"+to)
}

func (l *redisLayer) GetBalance(ctx context.Context, guardianID snowflake.ID) (int64, bool) {
	var balance int64
	ok := l.getJSON(ctx, l.balKey(guardianID), &balance)
	l.record(ctx, "balance", ok)
	return balance, ok
}

func (l *redisLayer) SetBalance(ctx context.Context, guardianID snowflake.ID, balance int64) {
	l.setJSON(ctx, l.balKey(guardianID), balance, l.ttl.BalanceTTL)
}

func (l *redisLayer) GetRecentTransactions(ctx context.Context, guardianID snowflake.ID, limit int) ([]energydomain.EnergyTransaction, bool) {
	var txs []energydomain.EnergyTransaction
	ok := l.getJSON(ctx, l.recentKey(guardianID, limit), &txs)
	l.record(ctx, "recent_transactions", ok)
	return txs, ok
}

func (l *redisLayer) SetRecentTransactions(ctx context.Context, guardianID snowflake.ID, limit int, txs []energydomain.EnergyTransaction) {
	if !l.setJSON(ctx, l.recentKey(guardianID, limit), txs, l.ttl.TransactionsTTL) {
		return
	}
	l.indexAdd(ctx, l.idxKey("recent", guardianID), strconv.Itoa(limit))
}

func (l *redisLayer) InvalidateDay(ctx context.Context, guardianID snowflake.ID, date string) {
	l.del(ctx, l.aggKey(guardianID, date))
	l.indexRemove(ctx, l.idxKey("agg", guardianID), date)

	idx := l.idxKey("hist", guardianID)
	for _, member := range l.indexMembers(ctx, idx) {
		from, to, ok := strings.Cut(member, "|")
		if !ok || !rangeContains(from, to, date) {
			continue
		}
		l.del(ctx, l.histKey(guardianID, from, to))
		l.indexRemove(ctx, idx, member)
	}
}

func (l *redisLayer) InvalidateBalance(ctx context.Context, guardianID snowflake.ID) {
	l.del(ctx, l.balKey(guardianID))

	idx := l.idxKey("recent", guardianID)
	for _, member := range l.indexMembers(ctx, idx) {
		limit, err := strconv.Atoi(member)
		if err != nil {
			continue
		}
		l.del(ctx, l.recentKey(guardianID, limit))
	}
	l.del(ctx, idx)
}

func (l *redisLayer) InvalidateGuardian(ctx context.Context, guardianID snowflake.ID) {
	aggIdx := l.idxKey("agg", guardianID)
	for _, date := range l.indexMembers(ctx, aggIdx) {
		l.del(ctx, l.aggKey(guardianID, date))
	}
	l.del(ctx, aggIdx)

	histIdx := l.idxKey("hist", guardianID)
	for _, member := range l.indexMembers(ctx, histIdx) {
		if from, to, ok := strings.Cut(member, "|"); ok {
			l.del(ctx, l.histKey(guardianID, from, to))
		}
	}
	l.del(ctx, histIdx)

	l.InvalidateBalance(ctx, guardianID)
}

func (l *redisLayer) getJSON(ctx context.Context, key string, dest any) bool {
	raw, err := l.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		l.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		l.log.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		l.del(ctx, key)
		return false
	}
	return true
}

func (l *redisLayer) setJSON(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	raw, err := json.Marshal(value)
	if err != nil {
		l.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := l.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		l.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (l *redisLayer) del(ctx context.Context, keys ...string) {
	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		l.log.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (l *redisLayer) indexAdd(ctx context.Context, idx, member string) {
	if err := l.client.SAdd(ctx, idx, member).Err(); err != nil {
		l.log.Warn("cache index add failed", zap.String("key", idx), zap.Error(err))
	}
}

func (l *redisLayer) indexRemove(ctx context.Context, idx, member string) {
	if err := l.client.SRem(ctx, idx, member).Err(); err != nil {
		l.log.Warn("cache index remove failed", zap.String("key", idx), zap.Error(err))
	}
}

func (l *redisLayer) indexMembers(ctx context.Context, idx string) []string {
	members, err := l.client.SMembers(ctx, idx).Result()
	if err != nil {
		l.log.Warn("cache index read failed", zap.String("key", idx), zap.Error(err))
		return nil
	}
	return members
}

func (l *redisLayer) record(ctx context.Context, cache string, hit bool) {
	if l.metrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	l.metrics.RecordCacheRequest(ctx, cache, result)
}

func (l *redisLayer) aggKey(guardianID snowflake.ID, date string) string {
	return fmt.Sprintf("%s:agg:%d:%s", keyPrefix, guardianID, date)
}

func (l *redisLayer) histKey(guardianID snowflake.ID, from, to string) string {
	return fmt.Sprintf("%s:hist:%d:%s:%s", keyPrefix, guardianID, from, to)
}

func (l *redisLayer) balKey(guardianID snowflake.ID) string {
	return fmt.Sprintf("%s:bal:%d", keyPrefix, guardianID)
}

func (l *redisLayer) recentKey(guardianID snowflake.ID, limit int) string {
	return fmt.Sprintf("%s:recent:%d:%d", keyPrefix, guardianID, limit)
}

func (l *redisLayer) idxKey(kind string, guardianID snowflake.ID) string {
	return fmt.Sprintf("%s:idx:%s:%d", keyPrefix, kind, guardianID)
}
