package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/coachkit/settled/internal/clock"
	"github.com/coachkit/settled/internal/events"
	"github.com/coachkit/settled/internal/notify"
	"github.com/coachkit/settled/internal/observability/metrics"
	"github.com/coachkit/settled/internal/processor"
	stripe "github.com/stripe/stripe-go/v82"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type subState struct {
	externalID string
	status     string
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	client   processor.Client
	retry    processor.RetryConfig
	notifier notify.Notifier
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Client   processor.Client
	Retry    processor.RetryConfig
	Notifier notify.Notifier
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("reconcile"),
		genID:    p.GenID,
		clock:    p.Clock,
		client:   p.Client,
		retry:    p.Retry,
		notifier: p.Notifier,
	}
}

// Register subscribes the reconciliation triggers on the event bus.
func (s *Service) Register(bus *events.Bus) {
	rescan := func(ctx context.Context, ev events.Event) error {
		return s.Run(ctx)
	}
	bus.Subscribe(events.TagAppOwnerSubscriptionCreated, rescan)
	bus.Subscribe(events.TagProcessorSubUpdated, rescan)
	bus.Subscribe(events.TagProcessorSubDeleted, func(ctx context.Context, ev events.Event) error {
		deleted, ok := ev.(events.ProcessorSubscriptionDeleted)
		if !ok {
			return fmt.Errorf("reconcile: unexpected payload for %s", ev.Tag())
		}
		return s.HandleSubscriptionDeleted(ctx, deleted)
	})
}

// Run pulls the processor's full subscription list and converges the
// snapshot table on it in one pass.
func (s *Service) Run(ctx context.Context) error {
	truth, err := s.fetchAll(ctx)
	if err != nil {
		return err
	}

	var existing []SubscriptionStateSnapshot
	if err := s.db.WithContext(ctx).Find(&existing).Error; err != nil {
		return err
	}

	if len(existing) == 0 {
		return s.insertAll(ctx, truth)
	}

	known := make(map[string]SubscriptionStateSnapshot, len(existing))
	for _, snap := range existing {
		known[snap.ExternalSubscriptionID] = snap
	}

	var inserts []subState
	var updates []subState
	truthSet := make(map[string]struct{}, len(truth))
	for _, state := range truth {
		truthSet[state.externalID] = struct{}{}
		snap, ok := known[state.externalID]
		switch {
		case !ok:
			inserts = append(inserts, state)
		case snap.SubscriptionStatus != state.status:
			updates = append(updates, state)
		}
	}

	// rows the processor no longer reports are pruned, so one pass converges
	// on the truth set exactly
	var stale []string
	for _, snap := range existing {
		if _, ok := truthSet[snap.ExternalSubscriptionID]; !ok {
			stale = append(stale, snap.ExternalSubscriptionID)
		}
	}
	if len(stale) > 0 {
		err := s.db.WithContext(ctx).
			Where("external_subscription_id IN ?", stale).
			Delete(&SubscriptionStateSnapshot{}).Error
		if err != nil {
			return err
		}
	}

	for _, state := range updates {
		err := s.db.WithContext(ctx).
			Model(&SubscriptionStateSnapshot{}).
			Where("external_subscription_id = ?", state.externalID).
			Updates(map[string]any{
				"subscription_status": state.status,
				"updated_at":          s.clock.Now(),
			}).Error
		if err != nil {
			return err
		}
	}
	if err := s.insertAll(ctx, inserts); err != nil {
		return err
	}

	metrics.Scheduler().AddBatchProcessed("reconcile_snapshots", "subscriptions", len(updates)+len(inserts)+len(stale))
	s.log.Info("snapshot reconciled",
		zap.Int("truth", len(truth)),
		zap.Int("updated", len(updates)),
		zap.Int("inserted", len(inserts)),
		zap.Int("deleted", len(stale)),
	)
	return nil
}

// HandleSubscriptionDeleted runs a reconciliation pass and tells the growth
// team about the cancellation. The notification is best effort.
func (s *Service) HandleSubscriptionDeleted(ctx context.Context, ev events.ProcessorSubscriptionDeleted) error {
	if err := s.Run(ctx); err != nil {
		return err
	}

	customer, err := processor.Do(ctx, s.retry, func() (*stripe.Customer, error) {
		return s.client.GetCustomer(ctx, ev.CustomerID)
	})
	if err != nil {
		s.log.Warn("could not load canceled customer for notification",
			zap.String("customer_id", ev.CustomerID),
			zap.Error(err),
		)
		return nil
	}

	first, last := splitName(customer.Name)
	if err := s.notifier.Notify(ctx, notify.Notification{
		FirstName: first,
		LastName:  last,
		Email:     customer.Email,
		Status:    "canceled",
	}); err != nil {
		s.log.Warn("growth notification failed",
			zap.String("customer_id", ev.CustomerID),
			zap.Error(err),
		)
	}
	return nil
}

func splitName(full string) (first, last string) {
	first = full
	if i := strings.LastIndex(full, " "); i > 0 {
		first, last = full[:i], full[i+1:]
	}
	return first, last
}

type subscriptionPage struct {
	items []*stripe.Subscription
	page  processor.Page
}

func (s *Service) fetchAll(ctx context.Context) ([]subState, error) {
	var out []subState
	cursor := ""
	for {
		q := processor.ListQuery{Limit: processor.DefaultPageSize, StartingAfter: cursor}
		res, err := processor.Do(ctx, s.retry, func() (subscriptionPage, error) {
			items, page, err := s.client.ListSubscriptions(ctx, q)
			return subscriptionPage{items: items, page: page}, err
		})
		if err != nil {
			return nil, err
		}
		for _, sub := range res.items {
			out = append(out, subState{externalID: sub.ID, status: string(sub.Status)})
		}
		if !res.page.HasMore {
			return out, nil
		}
		cursor = res.page.NextCursor
	}
}

func (s *Service) insertAll(ctx context.Context, states []subState) error {
	if len(states) == 0 {
		return nil
	}
	now := s.clock.Now()
	rows := make([]SubscriptionStateSnapshot, 0, len(states))
	for _, state := range states {
		rows = append(rows, SubscriptionStateSnapshot{
			ID:                     s.genID.Generate(),
			ExternalSubscriptionID: state.externalID,
			SubscriptionStatus:     state.status,
			UpdatedAt:              now,
		})
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}
