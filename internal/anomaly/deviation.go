package anomaly

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	"gorm.io/gorm"
)

// DeviationDetector flags a submission when it would push today's total
// above Ratio times the guardian's trailing seven-day average. Guardians
// with no trailing history are never flagged.
type DeviationDetector struct {
	db    *gorm.DB
	repo  stepdomain.Repository
	Ratio float64
}

func NewDeviationDetector(db *gorm.DB, repo stepdomain.Repository, ratio float64) *DeviationDetector {
	if ratio <= 0 {
		ratio = 10
	}
	return &DeviationDetector{db: db, repo: repo, Ratio: ratio}
}

func (d *DeviationDetector) IsAnomalous(ctx context.Context, guardianID snowflake.ID, stepCount int, recordedAt time.Time) (bool, error) {
	dayStart, _ := stepdomain.DayBounds(recordedAt)
	trailingStart := dayStart.Add(-7 * 24 * time.Hour)

	trailing, err := d.repo.FindByGuardianAndRange(ctx, d.db, guardianID, trailingStart, dayStart)
	if err != nil {
		return false, err
	}
	if len(trailing) == 0 {
		return false, nil
	}

	var trailingTotal int
	for _, rec := range trailing {
		trailingTotal += rec.StepCount
	}
	average := float64(trailingTotal) / 7

	today, err := d.repo.FindByGuardianAndDate(ctx, d.db, guardianID, recordedAt)
	if err != nil {
		return false, err
	}
	todayTotal := stepCount
	for _, rec := range today {
		todayTotal += rec.StepCount
	}

	return float64(todayTotal) > d.Ratio*average, nil
}
