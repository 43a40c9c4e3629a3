package service

import (
	"context"
	"errors"
	"time"

	"github.com/gaiaguardians/walking/internal/anomaly"
	obsmetrics "github.com/gaiaguardians/walking/internal/observability/metrics"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxSubmissionsPerHour bounds submissions per guardian in any trailing
// sixty-minute window.
const MaxSubmissionsPerHour = 100

type ValidatorParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       stepdomain.Repository
	Detector   anomaly.Detector
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type validator struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       stepdomain.Repository
	detector   anomaly.Detector
	obsMetrics *obsmetrics.Metrics
}

func NewValidator(p ValidatorParams) stepdomain.Validator {
	return &validator{
		db:         p.DB,
		log:        p.Log.Named("steps.validator"),
		repo:       p.Repo,
		detector:   p.Detector,
		obsMetrics: p.ObsMetrics,
	}
}

// Validate runs the ordered checks, short-circuiting on the first
// failure. It never mutates state: persistence belongs to the caller so
// validation can be retried safely.
func (v *validator) Validate(ctx context.Context, req stepdomain.SubmitRequest) (*stepdomain.ValidationResult, error) {
	submitted, err := stepdomain.NewStepCount(req.StepCount)
	if errors.Is(err, stepdomain.ErrNegativeStepCount) {
		return v.reject(ctx, req, "negative", stepdomain.ReasonNegative), nil
	}
	if err != nil {
		return v.reject(ctx, req, "over_max", stepdomain.ReasonOverMax), nil
	}

	records, err := v.repo.FindByGuardianAndDate(ctx, v.db, req.GuardianID, req.RecordedAt)
	if err != nil {
		return nil, err
	}
	var dailyTotal int
	for _, rec := range records {
		dailyTotal += rec.StepCount
	}
	daily, err := stepdomain.NewStepCount(dailyTotal)
	if err == nil {
		_, err = daily.Add(submitted)
	}
	if err != nil {
		return v.reject(ctx, req, "daily_cap", stepdomain.ReasonDailyOverMax), nil
	}

	windowStart := req.RecordedAt.Add(-time.Hour)
	count, err := v.repo.CountSubmissionsInWindow(ctx, v.db, req.GuardianID, windowStart, req.RecordedAt)
	if err != nil {
		return nil, err
	}
	if count >= MaxSubmissionsPerHour {
		return v.reject(ctx, req, "rate_limited", stepdomain.ReasonRateLimited), nil
	}

	anomalous, err := v.detector.IsAnomalous(ctx, req.GuardianID, req.StepCount, req.RecordedAt)
	if err != nil {
		return nil, err
	}
	if anomalous {
		return v.reject(ctx, req, "anomalous", stepdomain.ReasonAnomalous), nil
	}

	if v.obsMetrics != nil {
		v.obsMetrics.RecordStepValidation(ctx, "accepted")
	}
	return stepdomain.Accepted(), nil
}

func (v *validator) reject(ctx context.Context, req stepdomain.SubmitRequest, result, reason string) *stepdomain.ValidationResult {
	if v.obsMetrics != nil {
		v.obsMetrics.RecordStepValidation(ctx, result)
	}
	v.log.Info("submission rejected",
		zap.Int64("guardian_id", int64(req.GuardianID)),
		zap.Int("step_count", req.StepCount),
		zap.String("reason", reason),
	)
	return stepdomain.Rejected(reason)
}
