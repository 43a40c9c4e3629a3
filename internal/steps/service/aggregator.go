package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gaiaguardians/walking/internal/cache"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type AggregatorParams struct {
	fx.In

	DB    *gorm.DB
	Repo  stepdomain.Repository
	Cache cache.Layer
}

// Aggregator computes daily step projections from raw records, serving
// reads through the cache layer.
type Aggregator struct {
	db    *gorm.DB
	repo  stepdomain.Repository
	cache cache.Layer
}

func NewAggregator(p AggregatorParams) *Aggregator {
	return &Aggregator{db: p.DB, repo: p.Repo, cache: p.Cache}
}

func (a *Aggregator) AggregateDailySteps(ctx context.Context, guardianID snowflake.ID, day time.Time) (stepdomain.DailyStepAggregate, error) {
	date := stepdomain.DateOf(day)
	if agg, ok := a.cache.GetDailyAggregate(ctx, guardianID, date); ok {
		return agg, nil
	}

	agg, err := a.aggregateFromStore(ctx, guardianID, day)
	if err != nil {
		return stepdomain.DailyStepAggregate{}, err
	}
	a.cache.SetDailyAggregate(ctx, agg)
	return agg, nil
}

// GetStepHistory returns one aggregate per day in [from, to], in date
// order. Days without submissions yield a zero aggregate, never a gap.
func (a *Aggregator) GetStepHistory(ctx context.Context, guardianID snowflake.ID, from, to time.Time) ([]stepdomain.DailyStepAggregate, error) {
	fromStart, _ := stepdomain.DayBounds(from)
	toStart, toEnd := stepdomain.DayBounds(to)
	if toStart.Before(fromStart) {
		return nil, stepdomain.ErrInvalidRange
	}
	if toStart.Sub(fromStart) >= stepdomain.MaxHistoryDays*24*time.Hour {
		return nil, stepdomain.ErrRangeTooLarge
	}

	fromDate := stepdomain.DateOf(fromStart)
	toDate := stepdomain.DateOf(toStart)
	if aggs, ok := a.cache.GetHistory(ctx, guardianID, fromDate, toDate); ok {
		return aggs, nil
	}

	records, err := a.repo.FindByGuardianAndRange(ctx, a.db, guardianID, fromStart, toEnd)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int)
	for _, rec := range records {
		totals[stepdomain.DateOf(rec.RecordedAt)] += rec.StepCount
	}

	var aggs []stepdomain.DailyStepAggregate
	for day := fromStart; !day.After(toStart); day = day.Add(24 * time.Hour) {
		date := stepdomain.DateOf(day)
		aggs = append(aggs, stepdomain.DailyStepAggregate{
			GuardianID: guardianID,
			Date:       date,
			TotalSteps: totals[date],
		})
	}

	a.cache.SetHistory(ctx, guardianID, fromDate, toDate, aggs)
	return aggs, nil
}

func (a *Aggregator) aggregateFromStore(ctx context.Context, guardianID snowflake.ID, day time.Time) (stepdomain.DailyStepAggregate, error) {
	records, err := a.repo.FindByGuardianAndDate(ctx, a.db, guardianID, day)
	if err != nil {
		return stepdomain.DailyStepAggregate{}, err
	}
	var total int
	for _, rec := range records {
		total += rec.StepCount
	}
	return stepdomain.DailyStepAggregate{
		GuardianID: guardianID,
		Date:       stepdomain.DateOf(day),
		TotalSteps: total,
	}, nil
}
