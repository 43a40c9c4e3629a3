package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestNewEnergy(t *testing.T) {
	e, err := NewEnergy(125)
	assert.NoError(t, err)
	assert.EqualValues(t, 125, e.Value())

	_, err = NewEnergy(-1)
	assert.ErrorIs(t, err, ErrNegativeEnergy)

	zero, err := NewEnergy(0)
	assert.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestFromSteps(t *testing.T) {
	assert.EqualValues(t, 100, FromSteps(1000).Value())
	assert.EqualValues(t, 0, FromSteps(9).Value())
	assert.EqualValues(t, 1, FromSteps(19).Value())
	assert.EqualValues(t, 0, FromSteps(0).Value())
	assert.EqualValues(t, 0, FromSteps(-50).Value())

	// energy(10k) == k, and conversion never decreases as steps grow.
	prev := int64(-1)
	for steps := 0; steps <= 200; steps++ {
		got := FromSteps(steps).Value()
		assert.GreaterOrEqual(t, got, prev)
		if steps%10 == 0 {
			assert.EqualValues(t, steps/10, got)
		}
		prev = got
	}
}

func TestNewSource(t *testing.T) {
	source, err := NewSource("  BATTLE  ")
	assert.NoError(t, err)
	assert.Equal(t, "BATTLE", source)

	_, err = NewSource("   ")
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = NewSource(strings.Repeat("x", MaxSourceLength+1))
	assert.ErrorIs(t, err, ErrInvalidSource)

	atLimit, err := NewSource(strings.Repeat("x", MaxSourceLength))
	assert.NoError(t, err)
	assert.Len(t, atLimit, MaxSourceLength)
}

func TestNewTransaction(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	guardianID := node.Generate()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	amount, _ := NewEnergy(100)
	tx, err := NewTransaction(node.Generate(), guardianID, TypeEarned, amount, SourceSteps, now)
	assert.NoError(t, err)
	assert.Equal(t, TypeEarned, tx.Type)
	assert.EqualValues(t, 100, tx.Amount)
	assert.EqualValues(t, 100, tx.Signed())

	spent, err := NewTransaction(node.Generate(), guardianID, TypeSpent, amount, SourceBattle, now)
	assert.NoError(t, err)
	assert.EqualValues(t, -100, spent.Signed())

	zero, _ := NewEnergy(0)
	_, err = NewTransaction(node.Generate(), guardianID, TypeEarned, zero, SourceSteps, now)
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = NewTransaction(node.Generate(), 0, TypeEarned, amount, SourceSteps, now)
	assert.ErrorIs(t, err, ErrInvalidGuardian)

	_, err = NewTransaction(node.Generate(), guardianID, "REFUNDED", amount, SourceSteps, now)
	assert.Error(t, err)
}
