package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the energy ledger surface.
type Service interface {
	CurrentBalance(ctx context.Context, guardianID snowflake.ID) (Energy, error)
	GetBalance(ctx context.Context, guardianID snowflake.ID) (*BalanceResult, error)
	Earn(ctx context.Context, guardianID snowflake.ID, amount Energy, source string) (*EnergyTransaction, error)
	Spend(ctx context.Context, guardianID snowflake.ID, amount Energy, source string) (*SpendResult, error)
	DailyTotals(ctx context.Context, guardianID snowflake.ID, day time.Time) (earned, spent int64, err error)
	ReconcileDailyEnergy(ctx context.Context, guardianID snowflake.ID, day time.Time) (*EnergyTransaction, error)
}

type BalanceResult struct {
	GuardianID         snowflake.ID        `json:"guardian_id"`
	Balance            int64               `json:"balance"`
	EarnedToday        int64               `json:"earned_today"`
	SpentToday         int64               `json:"spent_today"`
	RecentTransactions []EnergyTransaction `json:"recent_transactions"`
}

type SpendResult struct {
	NewBalance  int64  `json:"new_balance"`
	AmountSpent int64  `json:"amount_spent"`
	Source      string `json:"source"`
}

// InsufficientEnergyError reports a spend rejected against the ledger.
type InsufficientEnergyError struct {
	Requested int64
	Available int64
}

func (e *InsufficientEnergyError) Error() string {
	return fmt.Sprintf("insufficient energy: requested %d, available %d", e.Requested, e.Available)
}
