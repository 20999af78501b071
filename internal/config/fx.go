package config

import (
	"go.uber.org/fx"

	"github.com/joho/godotenv"
)

var Module = fx.Module("config",
	fx.Provide(
		func() Config {
			_ = godotenv.Load()
			return Load()
		},
		NewSDIConfigHolder,
	),
)
