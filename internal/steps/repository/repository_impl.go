package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() stepdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *stepdomain.StepRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO step_records (id, guardian_id, step_count, recorded_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		record.ID,
		record.GuardianID,
		record.StepCount,
		record.RecordedAt,
		record.CreatedAt,
	).Error
}

func (r *repo) FindByGuardianAndDate(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, day time.Time) ([]stepdomain.StepRecord, error) {
	start, end := stepdomain.DayBounds(day)
	return r.FindByGuardianAndRange(ctx, db, guardianID, start, end)
}

func (r *repo) FindByGuardianAndRange(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, from, to time.Time) ([]stepdomain.StepRecord, error) {
	var records []stepdomain.StepRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, guardian_id, step_count, recorded_at, created_at
		 FROM step_records
		 WHERE guardian_id = ? AND recorded_at >= ? AND recorded_at < ?
		 ORDER BY recorded_at ASC`,
		guardianID,
		from,
		to,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// CountSubmissionsInWindow counts over a closed interval. The window end
// is the incoming submission's own timestamp, so prior records at that
// exact instant must count.
func (r *repo) CountSubmissionsInWindow(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, windowStart, windowEnd time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM step_records
		 WHERE guardian_id = ? AND recorded_at >= ? AND recorded_at <= ?`,
		guardianID,
		windowStart,
		windowEnd,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) ActiveGuardians(ctx context.Context, db *gorm.DB, since time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT guardian_id FROM step_records
		 WHERE recorded_at >= ?
		 GROUP BY guardian_id
		 ORDER BY MAX(recorded_at) DESC
		 LIMIT ?`,
		since,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
