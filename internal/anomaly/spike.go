package anomaly

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SpikeDetector flags any single submission above a fixed threshold.
type SpikeDetector struct {
	Threshold int
}

func NewSpikeDetector(threshold int) *SpikeDetector {
	if threshold <= 0 {
		threshold = 15000
	}
	return &SpikeDetector{Threshold: threshold}
}

func (d *SpikeDetector) IsAnomalous(_ context.Context, _ snowflake.ID, stepCount int, _ time.Time) (bool, error) {
	return stepCount > d.Threshold, nil
}
