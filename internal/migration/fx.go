package migration

import (
	energydomain "github.com/gaiaguardians/walking/internal/energy/domain"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module creates the core tables on startup so the service is usable
// out of the box for local and self-hosted environments.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		return conn.AutoMigrate(
			&stepdomain.StepRecord{},
			&energydomain.EnergyTransaction{},
		)
	}),
)
