package user

import (
	"github.com/inkwise/inkwise/internal/user/repository"
	"github.com/inkwise/inkwise/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
