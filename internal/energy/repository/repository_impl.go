package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	energydomain "github.com/gaiaguardians/walking/internal/energy/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() energydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *energydomain.EnergyTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO energy_transactions (id, guardian_id, type, amount, source, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.GuardianID,
		tx.Type,
		tx.Amount,
		tx.Source,
		tx.OccurredAt,
		tx.CreatedAt,
	).Error
}

func (r *repo) FindByGuardian(ctx context.Context, db *gorm.DB, guardianID snowflake.ID) ([]energydomain.EnergyTransaction, error) {
	var txs []energydomain.EnergyTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, guardian_id, type, amount, source, occurred_at, created_at
		 FROM energy_transactions
		 WHERE guardian_id = ?
		 ORDER BY occurred_at ASC`,
		guardianID,
	).Scan(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *repo) FindByGuardianAndRange(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, from, to time.Time) ([]energydomain.EnergyTransaction, error) {
	var txs []energydomain.EnergyTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, guardian_id, type, amount, source, occurred_at, created_at
		 FROM energy_transactions
		 WHERE guardian_id = ? AND occurred_at >= ? AND occurred_at < ?
		 ORDER BY occurred_at ASC`,
		guardianID,
		from,
		to,
	).Scan(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *repo) FindRecent(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, limit int) ([]energydomain.EnergyTransaction, error) {
	var txs []energydomain.EnergyTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, guardian_id, type, amount, source, occurred_at, created_at
		 FROM energy_transactions
		 WHERE guardian_id = ?
		 ORDER BY occurred_at DESC
		 LIMIT ?`,
		guardianID,
		limit,
	).Scan(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *repo) SignedSum(ctx context.Context, db *gorm.DB, guardianID snowflake.ID) (int64, error) {
	var sum int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(CASE WHEN type = 'SPENT' THEN -amount ELSE amount END), 0)
		 FROM energy_transactions
		 WHERE guardian_id = ?`,
		guardianID,
	).Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}

func (r *repo) SumByTypeOnDay(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, txType string, dayStart, dayEnd time.Time) (int64, error) {
	var sum int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM energy_transactions
		 WHERE guardian_id = ? AND type = ?
		   AND occurred_at >= ? AND occurred_at < ?`,
		guardianID,
		txType,
		dayStart,
		dayEnd,
	).Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}

func (r *repo) SumBySourceOnDay(ctx context.Context, db *gorm.DB, guardianID snowflake.ID, txType, source string, dayStart, dayEnd time.Time) (int64, error) {
	var sum int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM energy_transactions
		 WHERE guardian_id = ? AND type = ? AND source = ?
		   AND occurred_at >= ? AND occurred_at < ?`,
		guardianID,
		txType,
		source,
		dayStart,
		dayEnd,
	).Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}
