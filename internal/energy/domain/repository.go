package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *EnergyTransaction) error
	FindByGuardian(ctx context.Context, db *gorm.DB, guardianID snowflake.ID) ([]EnergyTransaction, error)
	FindByGuardianAndRange(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, from, to time.Time) ([]EnergyTransaction, error)
	FindRecent(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, limit int) ([]EnergyTransaction, error)
	SignedSum(ctx context.Context, db *gorm.DB, guardianID snowflake.ID) (int64, error)
	SumByTypeOnDay(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, txType string, dayStart, dayEnd time.Time) (int64, error)
	SumBySourceOnDay(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, txType, source string, dayStart, dayEnd time.Time) (int64, error)
}
