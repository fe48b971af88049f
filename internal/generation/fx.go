package generation

import (
	"github.com/inkwise/inkwise/internal/generation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generation",
	fx.Provide(service.NewService),
)
