package transcript

import (
	"github.com/inkwise/inkwise/internal/transcript/repository"
	"github.com/inkwise/inkwise/internal/transcript/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transcript",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
