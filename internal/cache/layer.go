package cache

import (
	"context"

	"github.com/bwmarrin/snowflake"
	energydomain "github.com/gaiaguardians/walking/internal/energy/domain"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
)

// Layer serves aggregate, history, balance, and recent-transaction reads
// with bounded staleness. Invalidation is exact: a new step record removes
// the day's aggregate and every cached history range containing that day;
// a new transaction removes the balance and recent-transaction entries.
//
// The layer never surfaces errors. A backend failure is logged and
// reported as a miss so callers fall through to the authoritative store.
type Layer interface {
	GetDailyAggregate(ctx context.Context, guardianID snowflake.ID, date string) (stepdomain.DailyStepAggregate, bool)
	SetDailyAggregate(ctx context.Context, agg stepdomain.DailyStepAggregate)

	GetHistory(ctx context.Context, guardianID snowflake.ID, from, to string) ([]stepdomain.DailyStepAggregate, bool)
	SetHistory(ctx context.Context, guardianID snowflake.ID, from, to string, aggs []stepdomain.DailyStepAggregate)

	GetBalance(ctx context.Context, guardianID snowflake.ID) (int64, bool)
	SetBalance(ctx context.Context, guardianID snowflake.ID, balance int64)

	GetRecentTransactions(ctx context.Context, guardianID snowflake.ID, limit int) ([]energydomain.EnergyTransaction, bool)
	SetRecentTransactions(ctx context.Context, guardianID snowflake.ID, limit int, txs []energydomain.EnergyTransaction)

	InvalidateDay(ctx context.Context, guardianID snowflake.ID, date string)
	InvalidateBalance(ctx context.Context, guardianID snowflake.ID)
	InvalidateGuardian(ctx context.Context, guardianID snowflake.ID)
}

// rangeContains reports whether date falls inside [from, to]. Dates are
// "2006-01-02" strings, so lexical order is chronological order.
func rangeContains(from, to, date string) bool {
	return from <= date && date <= to
}
