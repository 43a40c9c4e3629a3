package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// MaxDailySteps bounds both a single submission and a guardian's daily total.
const MaxDailySteps = 50000

// MaxHistoryDays bounds a single history query.
const MaxHistoryDays = 366

var (
	ErrNegativeStepCount = errors.New("negative_step_count")
	ErrStepCountTooLarge = errors.New("step_count_too_large")
	ErrInvalidGuardian   = errors.New("invalid_guardian")
	ErrInvalidRange      = errors.New("invalid_range")
	ErrRangeTooLarge     = errors.New("range_too_large")
)

// StepCount is a validated step total, never negative and never above MaxDailySteps.
type StepCount struct {
	value int
}

func NewStepCount(value int) (StepCount, error) {
	if value < 0 {
		return StepCount{}, ErrNegativeStepCount
	}
	if value > MaxDailySteps {
		return StepCount{}, ErrStepCountTooLarge
	}
	return StepCount{value: value}, nil
}

func (s StepCount) Value() int { return s.value }

// Add re-validates the daily bound on the combined total.
func (s StepCount) Add(other StepCount) (StepCount, error) {
	return NewStepCount(s.value + other.value)
}

// StepRecord is one raw step submission. Records are append-only: never
// updated or deleted once stored.
type StepRecord struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	GuardianID snowflake.ID `json:"guardian_id" gorm:"column:guardian_id;not null;index:ix_step_records_guardian_time,priority:1"`
	StepCount  int          `json:"step_count" gorm:"not null"`
	RecordedAt time.Time    `json:"recorded_at" gorm:"not null;index:ix_step_records_guardian_time,priority:2"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (StepRecord) TableName() string { return "step_records" }

// DailyStepAggregate is a projection of StepRecords for one guardian and day.
// It is recomputed from the store; a cached copy is never the source of truth.
type DailyStepAggregate struct {
	GuardianID snowflake.ID `json:"guardian_id"`
	Date       string       `json:"date"`
	TotalSteps int          `json:"total_steps"`
}

// DateOf formats a timestamp as the UTC calendar day used for aggregation keys.
func DateOf(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}

// DayBounds returns the UTC [start, end) window of the day containing ts.
func DayBounds(ts time.Time) (time.Time, time.Time) {
	t := ts.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

func ParseGuardianID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(value)
	if err != nil || id <= 0 {
		return 0, ErrInvalidGuardian
	}
	return id, nil
}
