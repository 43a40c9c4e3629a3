package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/gaiaguardians/walking/internal/config"
	energydomain "github.com/gaiaguardians/walking/internal/energy/domain"
	"github.com/gaiaguardians/walking/internal/observability/metrics"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
)

type historyKey struct {
	from string
	to   string
}

// memoryLayer is the in-process backend. A per-guardian key index makes
// day invalidation exact without scanning the whole cache.
type memoryLayer struct {
	aggregates Cache[string, stepdomain.DailyStepAggregate]
	histories  Cache[string, []stepdomain.DailyStepAggregate]
	balances   Cache[snowflake.ID, int64]
	recents    Cache[string, []energydomain.EnergyTransaction]

	mu          sync.Mutex
	aggDates    map[snowflake.ID]map[string]struct{}
	historyKeys map[snowflake.ID]map[historyKey]struct{}
	recentLimit map[snowflake.ID]map[int]struct{}

	ttl     config.CacheConfig
	metrics *metrics.Metrics
}

func NewMemoryLayer(cfg config.CacheConfig, m *metrics.Metrics) Layer {
	return &memoryLayer{
		aggregates:  NewTTLCache[string, stepdomain.DailyStepAggregate](),
		histories:   NewTTLCache[string, []stepdomain.DailyStepAggregate](),
		balances:    NewTTLCache[snowflake.ID, int64](),
		recents:     NewTTLCache[string, []energydomain.EnergyTransaction](),
		aggDates:    make(map[snowflake.ID]map[string]struct{}),
		historyKeys: make(map[snowflake.ID]map[historyKey]struct{}),
		recentLimit: make(map[snowflake.ID]map[int]struct{}),
		ttl:         cfg,
		metrics:     m,
	}
}

func (l *memoryLayer) GetDailyAggregate(ctx context.Context, guardianID snowflake.ID, date string) (stepdomain.DailyStepAggregate, bool) {
	agg, ok := l.aggregates.Get(aggKey(guardianID, date))
	l.record(ctx, "daily_aggregate", ok)
	return agg, ok
}

func (l *memoryLayer) SetDailyAggregate(_ context.Context, agg stepdomain.DailyStepAggregate) {
	l.aggregates.Set(aggKey(agg.GuardianID, agg.Date), agg, l.ttl.DailyAggregateTTL)
	l.mu.Lock()
	if l.aggDates[agg.GuardianID] == nil {
		l.aggDates[agg.GuardianID] = make(map[string]struct{})
	}
	l.aggDates[agg.GuardianID][agg.Date] = struct{}{}
	l.mu.Unlock()
}

func (l *memoryLayer) GetHistory(ctx context.Context, guardianID snowflake.ID, from, to string) ([]stepdomain.DailyStepAggregate, bool) {
	aggs, ok := l.histories.Get(histKey(guardianID, from, to))
	l.record(ctx, "history", ok)
	return aggs, ok
}

func (l *memoryLayer) SetHistory(_ context.Context, guardianID snowflake.ID, from, to string, aggs []stepdomain.DailyStepAggregate) {
	l.histories.Set(histKey(guardianID, from, to), aggs, l.ttl.HistoryTTL)
	l.mu.Lock()
	if l.historyKeys[guardianID] == nil {
		l.historyKeys[guardianID] = make(map[historyKey]struct{})
	}
	l.historyKeys[guardianID][historyKey{from: from, to: to}] = struct{}{}
	l.mu.Unlock()
}

func (l *memoryLayer) GetBalance(ctx context.Context, guardianID snowflake.ID) (int64, bool) {
	balance, ok := l.balances.Get(guardianID)
	l.record(ctx, "balance", ok)
	return balance, ok
}

func (l *memoryLayer) SetBalance(_ context.Context, guardianID snowflake.ID, balance int64) {
	l.balances.Set(guardianID, balance, l.ttl.BalanceTTL)
}

func (l *memoryLayer) GetRecentTransactions(ctx context.Context, guardianID snowflake.ID, limit int) ([]energydomain.EnergyTransaction, bool) {
	txs, ok := l.recents.Get(recentKey(guardianID, limit))
	l.record(ctx, "recent_transactions", ok)
	return txs, ok
}

func (l *memoryLayer) SetRecentTransactions(_ context.Context, guardianID snowflake.ID, limit int, txs []energydomain.EnergyTransaction) {
	l.recents.Set(recentKey(guardianID, limit), txs, l.ttl.TransactionsTTL)
	l.mu.Lock()
	if l.recentLimit[guardianID] == nil {
		l.recentLimit[guardianID] = make(map[int]struct{})
	}
	l.recentLimit[guardianID][limit] = struct{}{}
	l.mu.Unlock()
}

func (l *memoryLayer) InvalidateDay(_ context.Context, guardianID snowflake.ID, date string) {
	l.aggregates.Delete(aggKey(guardianID, date))

	l.mu.Lock()
	for key := range l.historyKeys[guardianID] {
		if rangeContains(key.from, key.to, date) {
			l.histories.Delete(histKey(guardianID, key.from, key.to))
			delete(l.historyKeys[guardianID], key)
		}
	}
	delete(l.aggDates[guardianID], date)
	l.mu.Unlock()
}

func (l *memoryLayer) InvalidateBalance(_ context.Context, guardianID snowflake.ID) {
	l.balances.Delete(guardianID)

	l.mu.Lock()
	for limit := range l.recentLimit[guardianID] {
		l.recents.Delete(recentKey(guardianID, limit))
	}
	delete(l.recentLimit, guardianID)
	l.mu.Unlock()
}

func (l *memoryLayer) InvalidateGuardian(ctx context.Context, guardianID snowflake.ID) {
	l.mu.Lock()
	for date := range l.aggDates[guardianID] {
		l.aggregates.Delete(aggKey(guardianID, date))
	}
	delete(l.aggDates, guardianID)
	for key := range l.historyKeys[guardianID] {
		l.histories.Delete(histKey(guardianID, key.from, key.to))
	}
	delete(l.historyKeys, guardianID)
	l.mu.Unlock()

	l.InvalidateBalance(ctx, guardianID)
}

func (l *memoryLayer) record(ctx context.Context, cache string, hit bool) {
	if l.metrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	l.metrics.RecordCacheRequest(ctx, cache, result)
}

func aggKey(guardianID snowflake.ID, date string) string {
	return fmt.Sprintf("%d|%s", guardianID, date)
}

func histKey(guardianID snowflake.ID, from, to string) string {
	return strings.Join([]string{guardianID.String(), from, to}, "|")
}

func recentKey(guardianID snowflake.ID, limit int) string {
	return fmt.Sprintf("%d|%d", guardianID, limit)
}
