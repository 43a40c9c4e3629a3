package warm

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gaiaguardians/walking/internal/clock"
	"github.com/gaiaguardians/walking/internal/config"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Config   config.Config
	StepRepo stepdomain.Repository
	StepSvc  stepdomain.Service
}

// Worker periodically pre-populates today's aggregate and the current
// balance for recently active guardians. It runs off the request path
// and takes no request-path locks; warming is an optimization, never
// part of the correctness contract.
type Worker struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	cfg      config.WarmConfig
	stepRepo stepdomain.Repository
	stepSvc  stepdomain.Service
}

func NewWorker(p Params) *Worker {
	return &Worker{
		db:       p.DB,
		log:      p.Log.Named("cache.warm"),
		clock:    p.Clock,
		cfg:      p.Config.Warm,
		stepRepo: p.StepRepo,
		stepSvc:  p.StepSvc,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("cache warm run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) RunOnce(parentCtx context.Context) error {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.Interval)
	defer cancel()

	since := w.clock.Now().Add(-w.cfg.Lookback)
	guardians, err := w.stepRepo.ActiveGuardians(ctx, w.db, since, w.cfg.MaxGuardians)
	if err != nil {
		return err
	}

	warmed := 0
	for _, guardianID := range guardians {
		if err := w.WarmGuardian(ctx, guardianID); err != nil {
			w.log.Warn("guardian warm failed",
				zap.Int64("guardian_id", int64(guardianID)),
				zap.Error(err),
			)
			continue
		}
		warmed++
	}

	w.log.Debug("cache warm pass complete", zap.Int("warmed", warmed))
	return nil
}

// WarmGuardian populates today's aggregate and the current balance by
// driving the same read-through path request handlers use.
func (w *Worker) WarmGuardian(ctx context.Context, guardianID snowflake.ID) error {
	_, err := w.stepSvc.GetCurrentStepCount(ctx, guardianID)
	return err
}
