package anomaly

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Detector flags a step submission as suspicious given guardian history.
// Implementations observe stored history but never mutate it; the result
// is advisory and consumed by the submission validator.
type Detector interface {
	IsAnomalous(ctx context.Context, guardianID snowflake.ID, stepCount int, recordedAt time.Time) (bool, error)
}
