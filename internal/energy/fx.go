package energy

import (
	energyrepo "github.com/gaiaguardians/walking/internal/energy/repository"
	energyservice "github.com/gaiaguardians/walking/internal/energy/service"
	"go.uber.org/fx"
)

// Module wires the energy ledger repository and service.
var Module = fx.Module("energy",
	fx.Provide(
		energyrepo.Provide,
		energyservice.NewService,
	),
)
