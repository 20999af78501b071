package channel

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/scambio/internal/channel/intermediary"
	"github.com/smallbiznis/scambio/internal/channel/mock"
	"github.com/smallbiznis/scambio/internal/channel/sdicoop"
)

var Module = fx.Module("channel",
	fx.Provide(func() *Registry {
		return NewRegistry(
			sdicoop.NewFactory(),
			intermediary.NewFactory(),
			mock.NewFactory(),
		)
	}),
	fx.Provide(NewRetrier),
)
