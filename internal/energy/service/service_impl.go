package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gaiaguardians/walking/internal/cache"
	"github.com/gaiaguardians/walking/internal/clock"
	energydomain "github.com/gaiaguardians/walking/internal/energy/domain"
	obsmetrics "github.com/gaiaguardians/walking/internal/observability/metrics"
	"github.com/gaiaguardians/walking/internal/ratelimit"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultRecentLimit is the number of transactions returned with a balance.
const DefaultRecentLimit = 10

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       energydomain.Repository
	StepRepo   stepdomain.Repository
	Cache      cache.Layer
	RateLimit  ratelimit.Deps
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       energydomain.Repository
	stepRepo   stepdomain.Repository
	cache      cache.Layer
	locker     ratelimit.GuardianLocker
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) energydomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("energy.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		stepRepo:   p.StepRepo,
		cache:      p.Cache,
		locker:     p.RateLimit.GuardianLocker,
		obsMetrics: p.ObsMetrics,
	}
}

// CurrentBalance sums the guardian's ledger and clamps at zero. This is
// the authoritative read: spend decisions always come from here, never
// from the cache.
func (s *Service) CurrentBalance(ctx context.Context, guardianID snowflake.ID) (energydomain.Energy, error) {
	if guardianID <= 0 {
		return energydomain.Energy{}, energydomain.ErrInvalidGuardian
	}
	sum, err := s.repo.SignedSum(ctx, s.db, guardianID)
	if err != nil {
		return energydomain.Energy{}, err
	}
	if sum < 0 {
		s.log.Warn("negative ledger sum clamped",
			zap.Int64("guardian_id", int64(guardianID)),
			zap.Int64("sum", sum),
		)
		sum = 0
	}
	return energydomain.NewEnergy(sum)
}

func (s *Service) GetBalance(ctx context.Context, guardianID snowflake.ID) (*energydomain.BalanceResult, error) {
	if guardianID <= 0 {
		return nil, energydomain.ErrInvalidGuardian
	}

	balance, ok := s.cache.GetBalance(ctx, guardianID)
	if !ok {
		authoritative, err := s.CurrentBalance(ctx, guardianID)
		if err != nil {
			return nil, err
		}
		balance = authoritative.Value()
		s.cache.SetBalance(ctx, guardianID, balance)
	}

	recent, ok := s.cache.GetRecentTransactions(ctx, guardianID, DefaultRecentLimit)
	if !ok {
		var err error
		recent, err = s.repo.FindRecent(ctx, s.db, guardianID, DefaultRecentLimit)
		if err != nil {
			return nil, err
		}
		s.cache.SetRecentTransactions(ctx, guardianID, DefaultRecentLimit, recent)
	}

	earned, spent, err := s.DailyTotals(ctx, guardianID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	return &energydomain.BalanceResult{
		GuardianID:         guardianID,
		Balance:            balance,
		EarnedToday:        earned,
		SpentToday:         spent,
		RecentTransactions: recent,
	}, nil
}

func (s *Service) Earn(ctx context.Context, guardianID snowflake.ID, amount energydomain.Energy, source string) (*energydomain.EnergyTransaction, error) {
	return s.append(ctx, guardianID, energydomain.TypeEarned, amount, source, s.clock.Now())
}

func (s *Service) Spend(ctx context.Context, guardianID snowflake.ID, amount energydomain.Energy, source string) (*energydomain.SpendResult, error) {
	if guardianID <= 0 {
		return nil, energydomain.ErrInvalidGuardian
	}
	if amount.IsZero() {
		return nil, energydomain.ErrZeroAmount
	}

	release, err := s.locker.Acquire(ctx, guardianID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Balance is re-read under the lock so two concurrent spends cannot
	// both pass the sufficiency check.
	balance, err := s.CurrentBalance(ctx, guardianID)
	if err != nil {
		return nil, err
	}
	if balance.Value() < amount.Value() {
		return nil, &energydomain.InsufficientEnergyError{
			Requested: amount.Value(),
			Available: balance.Value(),
		}
	}

	tx, err := s.append(ctx, guardianID, energydomain.TypeSpent, amount, source, s.clock.Now())
	if err != nil {
		return nil, err
	}

	return &energydomain.SpendResult{
		NewBalance:  balance.Value() - amount.Value(),
		AmountSpent: tx.Amount,
		Source:      tx.Source,
	}, nil
}

func (s *Service) DailyTotals(ctx context.Context, guardianID snowflake.ID, day time.Time) (int64, int64, error) {
	dayStart, dayEnd := stepdomain.DayBounds(day)
	earned, err := s.repo.SumByTypeOnDay(ctx, s.db, guardianID, energydomain.TypeEarned, dayStart, dayEnd)
	if err != nil {
		return 0, 0, err
	}
	spent, err := s.repo.SumByTypeOnDay(ctx, s.db, guardianID, energydomain.TypeSpent, dayStart, dayEnd)
	if err != nil {
		return 0, 0, err
	}
	return earned, spent, nil
}

// ReconcileDailyEnergy credits the difference between the energy implied
// by the day's step total and what the ledger already credited from
// steps that day. It is the crediting path after every submission and
// the catch-up when a crash left steps stored but energy not yet
// credited. Returns nil when the ledger is already caught up.
func (s *Service) ReconcileDailyEnergy(ctx context.Context, guardianID snowflake.ID, day time.Time) (*energydomain.EnergyTransaction, error) {
	if guardianID <= 0 {
		return nil, energydomain.ErrInvalidGuardian
	}

	dayStart, dayEnd := stepdomain.DayBounds(day)
	records, err := s.stepRepo.FindByGuardianAndRange(ctx, s.db, guardianID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	var totalSteps int
	for _, rec := range records {
		totalSteps += rec.StepCount
	}

	credited, err := s.repo.SumBySourceOnDay(ctx, s.db, guardianID, energydomain.TypeEarned, energydomain.SourceSteps, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	delta := energydomain.FromSteps(totalSteps).Value() - credited
	if delta <= 0 {
		return nil, nil
	}

	amount, err := energydomain.NewEnergy(delta)
	if err != nil {
		return nil, err
	}

	// The credit is stamped inside the reconciled day so a later
	// reconcile counts it.
	occurredAt := s.clock.Now()
	if occurredAt.Before(dayStart) || !occurredAt.Before(dayEnd) {
		occurredAt = dayEnd.Add(-time.Second)
	}
	return s.append(ctx, guardianID, energydomain.TypeEarned, amount, energydomain.SourceSteps, occurredAt)
}

func (s *Service) append(ctx context.Context, guardianID snowflake.ID, txType string, amount energydomain.Energy, source string, occurredAt time.Time) (*energydomain.EnergyTransaction, error) {
	tx, err := energydomain.NewTransaction(s.genID.Generate(), guardianID, txType, amount, source, occurredAt)
	if err != nil {
		return nil, err
	}
	tx.CreatedAt = s.clock.Now()

	if err := s.repo.Insert(ctx, s.db, tx); err != nil {
		return nil, err
	}

	s.cache.InvalidateBalance(ctx, guardianID)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordEnergyTransaction(ctx, tx.Type, tx.Source)
	}
	s.log.Debug("ledger append",
		zap.Int64("guardian_id", int64(guardianID)),
		zap.String("type", tx.Type),
		zap.Int64("amount", tx.Amount),
		zap.String("source", tx.Source),
	)
	return tx, nil
}
