// Scheduler-only deployment: runs the disbursement, reconciliation and
// ingestion jobs without the HTTP surface. Use SCHEDULER_ENABLED_JOBS to
// shard jobs across replicas.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/coachkit/settled/internal/clock"
	"github.com/coachkit/settled/internal/commission"
	"github.com/coachkit/settled/internal/config"
	"github.com/coachkit/settled/internal/events"
	"github.com/coachkit/settled/internal/ingest"
	"github.com/coachkit/settled/internal/merchant"
	"github.com/coachkit/settled/internal/migration"
	"github.com/coachkit/settled/internal/notify"
	"github.com/coachkit/settled/internal/observability"
	"github.com/coachkit/settled/internal/processor"
	"github.com/coachkit/settled/internal/reconcile"
	"github.com/coachkit/settled/internal/scheduler"
	"github.com/coachkit/settled/internal/settlement"
	"github.com/coachkit/settled/internal/splitpay"
	"github.com/coachkit/settled/internal/subscription"
	"github.com/coachkit/settled/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		events.Module,
		processor.Module,

		merchant.Module,
		commission.Module,
		splitpay.Module,
		subscription.Module,
		settlement.Module,
		reconcile.Module,
		ingest.Module,
		notify.Module,

		scheduler.Module,
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
