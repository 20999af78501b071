package reference

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/scambio/internal/cache"
)

var Module = fx.Module("reference.repository",
	fx.Provide(cache.NewReferenceCache),
	fx.Provide(NewRepository),
)
