package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// StepsPerEnergy is the conversion rate: ten steps earn one energy.
const StepsPerEnergy = 10

// MaxSourceLength bounds the free-form source tag.
const MaxSourceLength = 50

// Transaction types.
const (
	TypeEarned = "EARNED"
	TypeSpent  = "SPENT"
)

// Well-known energy sources.
const (
	SourceSteps     = "STEPS"
	SourceBattle    = "BATTLE"
	SourceChallenge = "CHALLENGE"
	SourceShop      = "SHOP"
	SourceBonus     = "BONUS"
)

var (
	ErrNegativeEnergy  = errors.New("negative_energy")
	ErrZeroAmount      = errors.New("zero_amount")
	ErrInvalidSource   = errors.New("invalid_source")
	ErrInvalidGuardian = errors.New("invalid_guardian")
)

// Energy is a validated non-negative amount.
type Energy struct {
	value int64
}

func NewEnergy(value int64) (Energy, error) {
	if value < 0 {
		return Energy{}, ErrNegativeEnergy
	}
	return Energy{value: value}, nil
}

func (e Energy) Value() int64 { return e.value }
func (e Energy) IsZero() bool { return e.value == 0 }

// FromSteps converts a step total to energy. Integer division truncates;
// remainder steps earn nothing until enough accumulate.
func FromSteps(steps int) Energy {
	if steps < 0 {
		return Energy{}
	}
	return Energy{value: int64(steps) / StepsPerEnergy}
}

// NewSource validates a source tag: trimmed, non-empty, at most fifty chars.
func NewSource(raw string) (string, error) {
	source := strings.TrimSpace(raw)
	if source == "" || len(source) > MaxSourceLength {
		return "", ErrInvalidSource
	}
	return source, nil
}

// EnergyTransaction is an immutable ledger entry. The balance is never
// stored: it is always the signed sum of a guardian's transactions.
type EnergyTransaction struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	GuardianID snowflake.ID `json:"guardian_id" gorm:"column:guardian_id;not null;index:ix_energy_tx_guardian_time,priority:1"`
	Type       string       `json:"type" gorm:"type:text;not null"`
	Amount     int64        `json:"amount" gorm:"not null"`
	Source     string       `json:"source" gorm:"type:text;not null"`
	OccurredAt time.Time    `json:"occurred_at" gorm:"not null;index:ix_energy_tx_guardian_time,priority:2"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (EnergyTransaction) TableName() string { return "energy_transactions" }

// NewTransaction validates and builds a ledger entry. Zero amounts are
// rejected here, never silently dropped.
func NewTransaction(id, guardianID snowflake.ID, txType string, amount Energy, source string, occurredAt time.Time) (*EnergyTransaction, error) {
	if guardianID <= 0 {
		return nil, ErrInvalidGuardian
	}
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}
	validSource, err := NewSource(source)
	if err != nil {
		return nil, err
	}
	if txType != TypeEarned && txType != TypeSpent {
		return nil, fmt.Errorf("unknown transaction type %q", txType)
	}
	return &EnergyTransaction{
		ID:         id,
		GuardianID: guardianID,
		Type:       txType,
		Amount:     amount.Value(),
		Source:     validSource,
		OccurredAt: occurredAt,
	}, nil
}

// Signed returns the amount with spend entries negated.
func (t EnergyTransaction) Signed() int64 {
	if t.Type == TypeSpent {
		return -t.Amount
	}
	return t.Amount
}
