package anomaly

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	steprepo "github.com/gaiaguardians/walking/internal/steps/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSpikeDetector(t *testing.T) {
	detector := NewSpikeDetector(15000)
	ctx := context.Background()
	now := time.Now().UTC()

	flagged, err := detector.IsAnomalous(ctx, 1, 15001, now)
	require.NoError(t, err)
	assert.True(t, flagged)

	flagged, err = detector.IsAnomalous(ctx, 1, 15000, now)
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestDeviationDetector(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&stepdomain.StepRecord{}))

	repo := steprepo.Provide()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	ctx := context.Background()
	guardianID := node.Generate()
	today := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	detector := NewDeviationDetector(db, repo, 10)

	// No trailing history: never flagged.
	flagged, err := detector.IsAnomalous(ctx, guardianID, 40000, today)
	require.NoError(t, err)
	assert.False(t, flagged)

	// 7000 steps over the trailing week, an average of 1000 per day.
	for i := 1; i <= 7; i++ {
		record := &stepdomain.StepRecord{
			ID:         node.Generate(),
			GuardianID: guardianID,
			StepCount:  1000,
			RecordedAt: today.Add(-time.Duration(i) * 24 * time.Hour),
			CreatedAt:  today,
		}
		require.NoError(t, repo.Insert(ctx, db, record))
	}

	// 10001 would push today past ten times the trailing average.
	flagged, err = detector.IsAnomalous(ctx, guardianID, 10001, today)
	require.NoError(t, err)
	assert.True(t, flagged)

	flagged, err = detector.IsAnomalous(ctx, guardianID, 9999, today)
	require.NoError(t, err)
	assert.False(t, flagged)
}
