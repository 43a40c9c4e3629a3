package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gaiaguardians/walking/internal/anomaly"
	"github.com/gaiaguardians/walking/internal/cache"
	"github.com/gaiaguardians/walking/internal/clock"
	"github.com/gaiaguardians/walking/internal/config"
	energydomain "github.com/gaiaguardians/walking/internal/energy/domain"
	energyrepo "github.com/gaiaguardians/walking/internal/energy/repository"
	energyservice "github.com/gaiaguardians/walking/internal/energy/service"
	"github.com/gaiaguardians/walking/internal/ratelimit"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	steprepo "github.com/gaiaguardians/walking/internal/steps/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db         *gorm.DB
	genID      *snowflake.Node
	clk        *clock.FakeClock
	stepRepo   stepdomain.Repository
	energyRepo energydomain.Repository
	energySvc  energydomain.Service
	stepSvc    stepdomain.Service
	aggregator *Aggregator
	cache      cache.Layer
}

func newTestEnv(t *testing.T, detector anomaly.Detector) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&stepdomain.StepRecord{}, &energydomain.EnergyTransaction{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	logger := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	limiter := ratelimit.Deps{GuardianLocker: ratelimit.NewMemoryGuardianLocker()}

	cacheLayer := cache.NewMemoryLayer(config.CacheConfig{
		DailyAggregateTTL: 2 * time.Hour,
		HistoryTTL:        time.Hour,
		BalanceTTL:        15 * time.Minute,
		TransactionsTTL:   45 * time.Minute,
	}, nil)

	stepRepo := steprepo.Provide()
	eRepo := energyrepo.Provide()

	energySvc := energyservice.NewService(energyservice.Params{
		DB:        db,
		Log:       logger,
		GenID:     node,
		Clock:     clk,
		Repo:      eRepo,
		StepRepo:  stepRepo,
		Cache:     cacheLayer,
		RateLimit: limiter,
	})

	if detector == nil {
		detector = anomaly.NewSpikeDetector(stepdomain.MaxDailySteps)
	}

	validator := NewValidator(ValidatorParams{
		DB:       db,
		Log:      logger,
		Repo:     stepRepo,
		Detector: detector,
	})

	aggregator := NewAggregator(AggregatorParams{
		DB:    db,
		Repo:  stepRepo,
		Cache: cacheLayer,
	})

	stepSvc := NewService(Params{
		DB:         db,
		Log:        logger,
		GenID:      node,
		Clock:      clk,
		Repo:       stepRepo,
		Validator:  validator,
		Aggregator: aggregator,
		EnergySvc:  energySvc,
		Cache:      cacheLayer,
		RateLimit:  limiter,
	})

	return &testEnv{
		db:         db,
		genID:      node,
		clk:        clk,
		stepRepo:   stepRepo,
		energyRepo: eRepo,
		energySvc:  energySvc,
		stepSvc:    stepSvc,
		aggregator: aggregator,
		cache:      cacheLayer,
	}
}

func TestSubmitSteps_EarnsEnergy(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	result, err := env.stepSvc.SubmitSteps(ctx, stepdomain.SubmitRequest{
		GuardianID: guardianID,
		StepCount:  1000,
	})
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, 1000, result.TotalDailySteps)
	assert.EqualValues(t, 100, result.EnergyEarned)

	txs, err := env.energyRepo.FindByGuardian(ctx, env.db, guardianID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, energydomain.TypeEarned, txs[0].Type)
	assert.EqualValues(t, 100, txs[0].Amount)
	assert.Equal(t, energydomain.SourceSteps, txs[0].Source)

	balance, err := env.energySvc.CurrentBalance(ctx, guardianID)
	require.NoError(t, err)
	assert.EqualValues(t, 100, balance.Value())
}

func TestSubmitSteps_MultipleSameDay(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	first, err := env.stepSvc.SubmitSteps(ctx, stepdomain.SubmitRequest{GuardianID: guardianID, StepCount: 500})
	require.NoError(t, err)
	assert.True(t, first.Accepted)
	assert.Equal(t, 500, first.TotalDailySteps)
	assert.EqualValues(t, 50, first.EnergyEarned)

	env.clk.Advance(30 * time.Minute)

	second, err := env.stepSvc.SubmitSteps(ctx, stepdomain.SubmitRequest{GuardianID: guardianID, StepCount: 750})
	require.NoError(t, err)
	assert.True(t, second.Accepted)
	assert.Equal(t, 1250, second.TotalDailySteps)
	assert.EqualValues(t, 75, second.EnergyEarned)

	records, err := env.stepRepo.FindByGuardianAndDate(ctx, env.db, guardianID, env.clk.Now())
	require.NoError(t, err)
	assert.Len(t, records, 2)

	balance, err := env.energySvc.CurrentBalance(ctx, guardianID)
	require.NoError(t, err)
	assert.EqualValues(t, 125, balance.Value())
}

func TestSubmitSteps_DailyCapAcrossSubmissions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	first, err := env.stepSvc.SubmitSteps(ctx, stepdomain.SubmitRequest{GuardianID: guardianID, StepCount: 30000})
	require.NoError(t, err)
	assert.True(t, first.Accepted)

	second, err := env.stepSvc.SubmitSteps(ctx, stepdomain.SubmitRequest{GuardianID: guardianID, StepCount: 25000})
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.Equal(t, stepdomain.ReasonDailyOverMax, second.Reason)

	// The rejected submission left no trace.
	records, err := env.stepRepo.FindByGuardianAndDate(ctx, env.db, guardianID, env.clk.Now())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSubmitSteps_RejectsInvalidCounts(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	negative, err := env.stepSvc.SubmitSteps(ctx, stepdomain.SubmitRequest{GuardianID: guardianID, StepCount: -1})
	require.NoError(t, err)
	assert.False(t, negative.Accepted)
	assert.Equal(t, stepdomain.ReasonNegative, negative.Reason)

	overMax, err := env.stepSvc.SubmitSteps(ctx, stepdomain.SubmitRequest{GuardianID: guardianID, StepCount: 50001})
	require.NoError(t, err)
	assert.False(t, overMax.Accepted)
	assert.Equal(t, stepdomain.ReasonOverMax, overMax.Reason)
}

func TestSubmitSteps_AnomalousSpike(t *testing.T) {
	env := newTestEnv(t, anomaly.NewSpikeDetector(15000))
	ctx := context.Background()
	guardianID := env.genID.Generate()

	result, err := env.stepSvc.SubmitSteps(ctx, stepdomain.SubmitRequest{GuardianID: guardianID, StepCount: 16000})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, stepdomain.ReasonAnomalous, result.Reason)

	within, err := env.stepSvc.SubmitSteps(ctx, stepdomain.SubmitRequest{GuardianID: guardianID, StepCount: 14000})
	require.NoError(t, err)
	assert.True(t, within.Accepted)
}

func TestSubmitSteps_RateLimited(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	now := env.clk.Now()
	for i := 0; i < MaxSubmissionsPerHour; i++ {
		record := &stepdomain.StepRecord{
			ID:         env.genID.Generate(),
			GuardianID: guardianID,
			StepCount:  10,
			RecordedAt: now.Add(-time.Duration(i) * time.Second),
			CreatedAt:  now,
		}
		require.NoError(t, env.stepRepo.Insert(ctx, env.db, record))
	}

	result, err := env.stepSvc.SubmitSteps(ctx, stepdomain.SubmitRequest{GuardianID: guardianID, StepCount: 100})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, stepdomain.ReasonRateLimited, result.Reason)
}

func TestCountSubmissionsInWindow_WindowBounds(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	now := env.clk.Now()
	for i := 0; i < MaxSubmissionsPerHour; i++ {
		record := &stepdomain.StepRecord{
			ID:         env.genID.Generate(),
			GuardianID: guardianID,
			StepCount:  10,
			RecordedAt: now.Add(-time.Duration(i) * time.Second),
			CreatedAt:  now,
		}
		require.NoError(t, env.stepRepo.Insert(ctx, env.db, record))
	}

	// The newest record sits at exactly the window end and must count.
	count, err := env.stepRepo.CountSubmissionsInWindow(ctx, env.db, guardianID, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.EqualValues(t, MaxSubmissionsPerHour, count)

	// The window start is inclusive too.
	oldest := &stepdomain.StepRecord{
		ID:         env.genID.Generate(),
		GuardianID: guardianID,
		StepCount:  10,
		RecordedAt: now.Add(-time.Hour),
		CreatedAt:  now,
	}
	require.NoError(t, env.stepRepo.Insert(ctx, env.db, oldest))

	count, err = env.stepRepo.CountSubmissionsInWindow(ctx, env.db, guardianID, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.EqualValues(t, MaxSubmissionsPerHour+1, count)
}

func TestConcurrentSubmissions_DailyCapHolds(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	const attempts = 5
	var wg sync.WaitGroup
	results := make([]*stepdomain.SubmitResult, attempts)
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.stepSvc.SubmitSteps(ctx, stepdomain.SubmitRequest{
				GuardianID: guardianID,
				StepCount:  15000,
			})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i, res := range results {
		require.NoError(t, errs[i])
		if res.Accepted {
			accepted++
			continue
		}
		assert.Equal(t, stepdomain.ReasonDailyOverMax, res.Reason)
	}
	assert.Equal(t, 3, accepted)

	records, err := env.stepRepo.FindByGuardianAndDate(ctx, env.db, guardianID, env.clk.Now())
	require.NoError(t, err)
	require.Len(t, records, 3)
	total := 0
	for _, rec := range records {
		total += rec.StepCount
	}
	assert.Equal(t, 45000, total)
}

func TestGetCurrentStepCount_Idempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	_, err := env.stepSvc.SubmitSteps(ctx, stepdomain.SubmitRequest{GuardianID: guardianID, StepCount: 2500})
	require.NoError(t, err)

	first, err := env.stepSvc.GetCurrentStepCount(ctx, guardianID)
	require.NoError(t, err)
	second, err := env.stepSvc.GetCurrentStepCount(ctx, guardianID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2500, first.TotalSteps)
	assert.EqualValues(t, 250, first.AvailableEnergy)
}

func TestGetStepHistory_DenseAndOrdered(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	day1 := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	day3 := time.Date(2024, 3, 14, 18, 30, 0, 0, time.UTC)
	for _, rec := range []*stepdomain.StepRecord{
		{ID: env.genID.Generate(), GuardianID: guardianID, StepCount: 4000, RecordedAt: day1, CreatedAt: day1},
		{ID: env.genID.Generate(), GuardianID: guardianID, StepCount: 1000, RecordedAt: day1.Add(2 * time.Hour), CreatedAt: day1},
		{ID: env.genID.Generate(), GuardianID: guardianID, StepCount: 7000, RecordedAt: day3, CreatedAt: day3},
	} {
		require.NoError(t, env.stepRepo.Insert(ctx, env.db, rec))
	}

	from := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	history, err := env.stepSvc.GetStepHistory(ctx, guardianID, from, to)
	require.NoError(t, err)

	require.Len(t, history, 4)
	assert.Equal(t, "2024-03-12", history[0].Date)
	assert.Equal(t, 5000, history[0].TotalSteps)
	assert.Equal(t, "2024-03-13", history[1].Date)
	assert.Equal(t, 0, history[1].TotalSteps)
	assert.Equal(t, "2024-03-14", history[2].Date)
	assert.Equal(t, 7000, history[2].TotalSteps)
	assert.Equal(t, "2024-03-15", history[3].Date)
	assert.Equal(t, 0, history[3].TotalSteps)
}

func TestGetStepHistory_InvalidRange(t *testing.T) {
	env := newTestEnv(t, nil)
	guardianID := env.genID.Generate()

	from := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err := env.stepSvc.GetStepHistory(context.Background(), guardianID, from, to)
	assert.ErrorIs(t, err, stepdomain.ErrInvalidRange)
}

func TestGetStepHistory_RangeTooLarge(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	_, err := env.stepSvc.GetStepHistory(ctx, guardianID, from, to)
	assert.ErrorIs(t, err, stepdomain.ErrRangeTooLarge)

	// A full leap year is the largest allowed range.
	history, err := env.stepSvc.GetStepHistory(ctx, guardianID,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, history, 366)
}
