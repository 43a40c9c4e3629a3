package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gaiaguardians/walking/internal/cache"
	"github.com/gaiaguardians/walking/internal/clock"
	"github.com/gaiaguardians/walking/internal/config"
	energydomain "github.com/gaiaguardians/walking/internal/energy/domain"
	energyrepo "github.com/gaiaguardians/walking/internal/energy/repository"
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
	db       *gorm.DB
	genID    *snowflake.Node
	clk      *clock.FakeClock
	repo     energydomain.Repository
	stepRepo stepdomain.Repository
	svc      energydomain.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&stepdomain.StepRecord{}, &energydomain.EnergyTransaction{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	repo := energyrepo.Provide()
	stepRepo := steprepo.Provide()

	cacheLayer := cache.NewMemoryLayer(config.CacheConfig{
		DailyAggregateTTL: 2 * time.Hour,
		HistoryTTL:        time.Hour,
		BalanceTTL:        15 * time.Minute,
		TransactionsTTL:   45 * time.Minute,
	}, nil)

	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      repo,
		StepRepo:  stepRepo,
		Cache:     cacheLayer,
		RateLimit: ratelimit.Deps{GuardianLocker: ratelimit.NewMemoryGuardianLocker()},
	})

	return &testEnv{db: db, genID: node, clk: clk, repo: repo, stepRepo: stepRepo, svc: svc}
}

func mustEnergy(t *testing.T, value int64) energydomain.Energy {
	t.Helper()
	e, err := energydomain.NewEnergy(value)
	require.NoError(t, err)
	return e
}

func TestEarnAndBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	tx, err := env.svc.Earn(ctx, guardianID, mustEnergy(t, 100), energydomain.SourceBonus)
	require.NoError(t, err)
	assert.Equal(t, energydomain.TypeEarned, tx.Type)

	balance, err := env.svc.CurrentBalance(ctx, guardianID)
	require.NoError(t, err)
	assert.EqualValues(t, 100, balance.Value())
}

func TestEarn_RejectsZeroAmount(t *testing.T) {
	env := newTestEnv(t)
	guardianID := env.genID.Generate()

	_, err := env.svc.Earn(context.Background(), guardianID, mustEnergy(t, 0), energydomain.SourceBonus)
	assert.ErrorIs(t, err, energydomain.ErrZeroAmount)
}

func TestSpend_Insufficient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	_, err := env.svc.Earn(ctx, guardianID, mustEnergy(t, 50), energydomain.SourceSteps)
	require.NoError(t, err)

	_, err = env.svc.Spend(ctx, guardianID, mustEnergy(t, 100), energydomain.SourceBattle)
	require.Error(t, err)

	var insufficient *energydomain.InsufficientEnergyError
	require.ErrorAs(t, err, &insufficient)
	assert.EqualValues(t, 100, insufficient.Requested)
	assert.EqualValues(t, 50, insufficient.Available)

	balance, err := env.svc.CurrentBalance(ctx, guardianID)
	require.NoError(t, err)
	assert.EqualValues(t, 50, balance.Value())
}

func TestSpend_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	_, err := env.svc.Earn(ctx, guardianID, mustEnergy(t, 100), energydomain.SourceSteps)
	require.NoError(t, err)

	result, err := env.svc.Spend(ctx, guardianID, mustEnergy(t, 40), energydomain.SourceBattle)
	require.NoError(t, err)
	assert.EqualValues(t, 60, result.NewBalance)
	assert.EqualValues(t, 40, result.AmountSpent)
	assert.Equal(t, energydomain.SourceBattle, result.Source)

	balance, err := env.svc.CurrentBalance(ctx, guardianID)
	require.NoError(t, err)
	assert.EqualValues(t, 60, balance.Value())
}

func TestCurrentBalance_ClampsNegativeSum(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	// A spend inserted behind the service's back leaves a negative raw
	// sum; the balance clamps instead of going negative.
	tx, err := energydomain.NewTransaction(env.genID.Generate(), guardianID, energydomain.TypeSpent, mustEnergy(t, 25), energydomain.SourceShop, env.clk.Now())
	require.NoError(t, err)
	tx.CreatedAt = env.clk.Now()
	require.NoError(t, env.repo.Insert(ctx, env.db, tx))

	balance, err := env.svc.CurrentBalance(ctx, guardianID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, balance.Value())
}

func TestConcurrentSpends_NoDoubleSpend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	_, err := env.svc.Earn(ctx, guardianID, mustEnergy(t, 100), energydomain.SourceSteps)
	require.NoError(t, err)

	const attempts = 5
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.svc.Spend(ctx, guardianID, mustEnergy(t, 30), energydomain.SourceBattle)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *energydomain.InsufficientEnergyError
		require.ErrorAs(t, err, &insufficient)
	}
	assert.Equal(t, 3, succeeded)

	balance, err := env.svc.CurrentBalance(ctx, guardianID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, balance.Value())
}

func TestGetBalance_RecentTransactionsAndDailyTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	_, err := env.svc.Earn(ctx, guardianID, mustEnergy(t, 80), energydomain.SourceSteps)
	require.NoError(t, err)
	env.clk.Advance(time.Minute)
	_, err = env.svc.Spend(ctx, guardianID, mustEnergy(t, 30), energydomain.SourceBattle)
	require.NoError(t, err)

	result, err := env.svc.GetBalance(ctx, guardianID)
	require.NoError(t, err)
	assert.EqualValues(t, 50, result.Balance)
	assert.EqualValues(t, 80, result.EarnedToday)
	assert.EqualValues(t, 30, result.SpentToday)
	require.Len(t, result.RecentTransactions, 2)
	// Most recent first.
	assert.Equal(t, energydomain.TypeSpent, result.RecentTransactions[0].Type)

	again, err := env.svc.GetBalance(ctx, guardianID)
	require.NoError(t, err)
	assert.Equal(t, result, again)
}

func TestReconcileDailyEnergy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guardianID := env.genID.Generate()

	now := env.clk.Now()
	for _, count := range []int{120, 230} {
		record := &stepdomain.StepRecord{
			ID:         env.genID.Generate(),
			GuardianID: guardianID,
			StepCount:  count,
			RecordedAt: now,
			CreatedAt:  now,
		}
		require.NoError(t, env.stepRepo.Insert(ctx, env.db, record))
	}

	tx, err := env.svc.ReconcileDailyEnergy(ctx, guardianID, now)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.EqualValues(t, 35, tx.Amount)
	assert.Equal(t, energydomain.SourceSteps, tx.Source)

	// Already caught up: a second pass credits nothing.
	tx, err = env.svc.ReconcileDailyEnergy(ctx, guardianID, now)
	require.NoError(t, err)
	assert.Nil(t, tx)
}
