package organization

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/scambio/internal/organization/event"
	"github.com/smallbiznis/scambio/internal/organization/repository"
	"github.com/smallbiznis/scambio/internal/organization/service"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(event.NewOutboxPublisher),
	fx.Provide(service.NewService),
)
