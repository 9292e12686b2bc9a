// Package service schedules and executes split disbursements and recurring
// commission payouts.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/coachkit/settled/internal/clock"
	commissiondomain "github.com/coachkit/settled/internal/commission/domain"
	"github.com/coachkit/settled/internal/config"
	"github.com/coachkit/settled/internal/events"
	"github.com/coachkit/settled/internal/processor"
	settlementdomain "github.com/coachkit/settled/internal/settlement/domain"
	splitpaydomain "github.com/coachkit/settled/internal/splitpay/domain"
	subscriptiondomain "github.com/coachkit/settled/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// claimBatchSize bounds how many due tasks one scheduler run picks up.
const claimBatchSize = 50

// staleClaimAfter is how long a CLAIMED task may sit before a later run
// assumes its worker died and requeues it. Well past the job timeout.
const staleClaimAfter = 15 * time.Minute

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	delay time.Duration
	retry processor.RetryConfig

	client    processor.Client
	taskRepo  settlementdomain.TaskRepository
	subRepo   subscriptiondomain.Repository
	splitRepo splitpaydomain.Repository
	commRepo  commissiondomain.Repository
}

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config

	Client    processor.Client
	Retry     processor.RetryConfig
	TaskRepo  settlementdomain.TaskRepository
	SubRepo   subscriptiondomain.Repository
	SplitRepo splitpaydomain.Repository
	CommRepo  commissiondomain.Repository
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("settlement"),
		genID:     p.GenID,
		clock:     p.Clock,
		delay:     p.Config.DisbursementDelay,
		retry:     p.Retry,
		client:    p.Client,
		taskRepo:  p.TaskRepo,
		subRepo:   p.SubRepo,
		splitRepo: p.SplitRepo,
		commRepo:  p.CommRepo,
	}
}

// Register subscribes the settlement handlers on the event bus.
func (s *Service) Register(bus *events.Bus) {
	bus.Subscribe(events.TagSubscriptionCreated, func(ctx context.Context, ev events.Event) error {
		created, ok := ev.(events.SubscriptionCreated)
		if !ok {
			return fmt.Errorf("settlement: unexpected payload for %s", ev.Tag())
		}
		return s.HandleSubscriptionCreated(ctx, created)
	})
	bus.Subscribe(events.TagPlatformSubscriptionCreated, func(ctx context.Context, ev events.Event) error {
		created, ok := ev.(events.PlatformSubscriptionCreated)
		if !ok {
			return fmt.Errorf("settlement: unexpected payload for %s", ev.Tag())
		}
		return s.HandlePlatformSubscriptionCreated(ctx, created)
	})
	bus.Subscribe(events.TagInvoiceUpdated, func(ctx context.Context, ev events.Event) error {
		updated, ok := ev.(events.InvoiceUpdated)
		if !ok {
			return fmt.Errorf("settlement: unexpected payload for %s", ev.Tag())
		}
		return s.HandleInvoiceUpdated(ctx, updated)
	})
}
