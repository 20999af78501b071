package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/scambio/internal/clock"
	"github.com/smallbiznis/scambio/internal/migration"
	"github.com/smallbiznis/scambio/internal/observability"
	"github.com/smallbiznis/scambio/internal/scheduler"
	"github.com/smallbiznis/scambio/internal/server"
	"github.com/smallbiznis/scambio/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure. config.Module rides inside server.Module.
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		server.Module,

		// Background sweeps and schema management.
		scheduler.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
