package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *StepRecord) error
	FindByGuardianAndDate(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, day time.Time) ([]StepRecord, error)
	FindByGuardianAndRange(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, from, to time.Time) ([]StepRecord, error)
	CountSubmissionsInWindow(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, windowStart, windowEnd time.Time) (int64, error)
	ActiveGuardians(ctx context.Context, db *gorm.DB, since time.Time, limit int) ([]snowflake.ID, error)
}
