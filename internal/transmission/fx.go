package transmission

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/scambio/internal/transmission/repository"
	"github.com/smallbiznis/scambio/internal/transmission/service"
)

var Module = fx.Module("transmission.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
