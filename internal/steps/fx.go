package steps

import (
	"github.com/gaiaguardians/walking/internal/steps/repository"
	"github.com/gaiaguardians/walking/internal/steps/service"
	"go.uber.org/fx"
)

var Module = fx.Module("steps.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewValidator),
	fx.Provide(service.NewAggregator),
	fx.Provide(service.NewService),
)
