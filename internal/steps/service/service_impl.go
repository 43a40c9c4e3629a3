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

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       stepdomain.Repository
	Validator  stepdomain.Validator
	Aggregator *Aggregator
	EnergySvc  energydomain.Service
	Cache      cache.Layer
	RateLimit  ratelimit.Deps
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       stepdomain.Repository
	validator  stepdomain.Validator
	aggregator *Aggregator
	energySvc  energydomain.Service
	cache      cache.Layer
	locker     ratelimit.GuardianLocker
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) stepdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("steps.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		validator:  p.Validator,
		aggregator: p.Aggregator,
		energySvc:  p.EnergySvc,
		cache:      p.Cache,
		locker:     p.RateLimit.GuardianLocker,
		obsMetrics: p.ObsMetrics,
	}
}

// SubmitSteps validates and stores one submission, then brings the
// energy ledger up to date with the new daily total. Validation and
// append run under the guardian lock so two concurrent submissions
// cannot jointly pass the daily-cap check.
func (s *Service) SubmitSteps(ctx context.Context, req stepdomain.SubmitRequest) (*stepdomain.SubmitResult, error) {
	if req.GuardianID <= 0 {
		return nil, stepdomain.ErrInvalidGuardian
	}
	if req.RecordedAt.IsZero() {
		req.RecordedAt = s.clock.Now()
	}

	release, err := s.locker.Acquire(ctx, req.GuardianID)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := s.validator.Validate(ctx, req)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return &stepdomain.SubmitResult{Accepted: false, Reason: result.Reason}, nil
	}

	record := &stepdomain.StepRecord{
		ID:         s.genID.Generate(),
		GuardianID: req.GuardianID,
		StepCount:  req.StepCount,
		RecordedAt: req.RecordedAt,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		return nil, err
	}

	date := stepdomain.DateOf(req.RecordedAt)
	s.cache.InvalidateDay(ctx, req.GuardianID, date)

	agg, err := s.aggregator.AggregateDailySteps(ctx, req.GuardianID, req.RecordedAt)
	if err != nil {
		return nil, err
	}

	var earned int64
	tx, err := s.energySvc.ReconcileDailyEnergy(ctx, req.GuardianID, req.RecordedAt)
	if err != nil {
		// The step record is stored; the ledger catches up on the next
		// submission or reconcile pass.
		s.log.Warn("energy credit deferred",
			zap.Int64("guardian_id", int64(req.GuardianID)),
			zap.String("date", date),
			zap.Error(err),
		)
	} else if tx != nil {
		earned = tx.Amount
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordStepSubmission(ctx)
	}
	s.log.Info("steps submitted",
		zap.Int64("guardian_id", int64(req.GuardianID)),
		zap.Int("step_count", req.StepCount),
		zap.Int("daily_total", agg.TotalSteps),
		zap.Int64("energy_earned", earned),
	)

	return &stepdomain.SubmitResult{
		Accepted:        true,
		TotalDailySteps: agg.TotalSteps,
		EnergyEarned:    earned,
	}, nil
}

func (s *Service) GetCurrentStepCount(ctx context.Context, guardianID snowflake.ID) (*stepdomain.CurrentStepCount, error) {
	if guardianID <= 0 {
		return nil, stepdomain.ErrInvalidGuardian
	}

	now := s.clock.Now()
	agg, err := s.aggregator.AggregateDailySteps(ctx, guardianID, now)
	if err != nil {
		return nil, err
	}

	balance, ok := s.cache.GetBalance(ctx, guardianID)
	if !ok {
		available, err := s.energySvc.CurrentBalance(ctx, guardianID)
		if err != nil {
			return nil, err
		}
		balance = available.Value()
		s.cache.SetBalance(ctx, guardianID, balance)
	}

	return &stepdomain.CurrentStepCount{
		GuardianID:      guardianID,
		Date:            agg.Date,
		TotalSteps:      agg.TotalSteps,
		AvailableEnergy: balance,
	}, nil
}

func (s *Service) GetStepHistory(ctx context.Context, guardianID snowflake.ID, from, to time.Time) ([]stepdomain.DailyStepAggregate, error) {
	if guardianID <= 0 {
		return nil, stepdomain.ErrInvalidGuardian
	}
	return s.aggregator.GetStepHistory(ctx, guardianID, from, to)
}
