package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the step tracking surface consumed by the HTTP layer.
type Service interface {
	SubmitSteps(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	GetCurrentStepCount(ctx context.Context, guardianID snowflake.ID) (*CurrentStepCount, error)
	GetStepHistory(ctx context.Context, guardianID snowflake.ID, from, to time.Time) ([]DailyStepAggregate, error)
}

type SubmitRequest struct {
	GuardianID snowflake.ID
	StepCount  int
	RecordedAt time.Time
}

// SubmitResult reports the outcome of a submission. A rejection is a
// business outcome, not an error: Accepted is false and Reason is set.
type SubmitResult struct {
	Accepted        bool   `json:"accepted"`
	Reason          string `json:"reason,omitempty"`
	TotalDailySteps int    `json:"total_daily_steps"`
	EnergyEarned    int64  `json:"energy_earned"`
}

type CurrentStepCount struct {
	GuardianID      snowflake.ID `json:"guardian_id"`
	Date            string       `json:"date"`
	TotalSteps      int          `json:"total_steps"`
	AvailableEnergy int64        `json:"available_energy"`
}

// Rejection reasons surfaced to callers.
const (
	ReasonNegative     = "step count cannot be negative"
	ReasonOverMax      = "step count exceeds daily maximum (50000)"
	ReasonDailyOverMax = "daily step count would exceed maximum allowed (50000)"
	ReasonRateLimited  = "rate limit exceeded"
	ReasonAnomalous    = "step count appears anomalous and requires verification"
)

// Validator runs the ordered submission checks. It has no side effects:
// persistence happens in the caller after acceptance.
type Validator interface {
	Validate(ctx context.Context, req SubmitRequest) (*ValidationResult, error)
}

type ValidationResult struct {
	Valid  bool
	Reason string
}

func Accepted() *ValidationResult {
	return &ValidationResult{Valid: true}
}

func Rejected(reason string) *ValidationResult {
	return &ValidationResult{Valid: false, Reason: reason}
}
