package anomaly

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gaiaguardians/walking/internal/config"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module wires the configured anomaly detector.
var Module = fx.Module("anomaly",
	fx.Provide(Provide),
)

type noneDetector struct{}

func (noneDetector) IsAnomalous(context.Context, snowflake.ID, int, time.Time) (bool, error) {
	return false, nil
}

func Provide(cfg config.Config, db *gorm.DB, repo stepdomain.Repository) Detector {
	switch cfg.Anomaly.Detector {
	case "deviation":
		return NewDeviationDetector(db, repo, cfg.Anomaly.DeviationRatio)
	case "none":
		return noneDetector{}
	default:
		return NewSpikeDetector(cfg.Anomaly.SpikeThreshold)
	}
}
