package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/scambio/internal/channel"
	"github.com/smallbiznis/scambio/internal/clock"
	"github.com/smallbiznis/scambio/internal/config"
	"github.com/smallbiznis/scambio/internal/document"
	"github.com/smallbiznis/scambio/internal/events"
	"github.com/smallbiznis/scambio/internal/notification"
	"github.com/smallbiznis/scambio/internal/observability"
	"github.com/smallbiznis/scambio/internal/organization"
	"github.com/smallbiznis/scambio/internal/reference"
	"github.com/smallbiznis/scambio/internal/scheduler"
	"github.com/smallbiznis/scambio/internal/signature"
	"github.com/smallbiznis/scambio/internal/transmission"
	"github.com/smallbiznis/scambio/pkg/db"
	"go.uber.org/fx"
)

// The worker runs the lifecycle sweeps without serving HTTP. Cloud
// deployments pair one worker with N stateless API replicas.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services the sweeps drive.
		scheduler.Module,
		events.Module,
		document.Module,
		signature.Module,
		channel.Module,
		notification.Module,
		organization.Module,
		reference.Module,
		transmission.Module,

		// No server module.
		fx.Invoke(StartScheduler),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

// StartScheduler runs the sweep loop in cloud mode, where the scheduler
// module's own lifecycle hook stays disabled. Standalone deployments
// already get the loop from scheduler.Module.
func StartScheduler(lc fx.Lifecycle, cfg config.Config, s *scheduler.Scheduler) {
	if !cfg.IsCloud() {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())

			go s.RunForever(runCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
