package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/coachkit/settled/internal/clock"
	"github.com/coachkit/settled/internal/events"
	subscriptiondomain "github.com/coachkit/settled/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository
	bus   *events.Bus
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
	Bus   *events.Bus
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		bus:   p.Bus,
	}
}

// Create implements domain.Service. The row is persisted first, then the
// settlement events fire; event handler failures leave the row in place and
// surface to the caller.
func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (*subscriptiondomain.Subscription, error) {
	now := s.clock.Now()
	subscription := &subscriptiondomain.Subscription{
		ID:                     s.genID.Generate(),
		ExternalSubscriptionID: strings.TrimSpace(req.ExternalSubscriptionID),
		MerchantID:             req.MerchantID,
		ReferredBy:             req.ReferredBy,
		SplitStatus:            subscriptiondomain.SplitStatusNone,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.Insert(ctx, s.db, subscription); err != nil {
		return nil, err
	}

	if err := s.bus.Publish(ctx, events.SubscriptionCreated{
		SubscriptionID:   subscription.ID,
		MerchantID:       req.MerchantID,
		MerchantStripeID: req.MerchantStripeID,
		PlatformSub:      subscription.ExternalSubscriptionID,
		TxnID:            req.TxnID,
		Currency:         req.Currency,
	}); err != nil {
		return nil, err
	}

	if req.ReferredBy != nil {
		anchor := now
		if req.TrialEnd != nil {
			anchor = *req.TrialEnd
		}
		if err := s.bus.Publish(ctx, events.PlatformSubscriptionCreated{
			SubscriptionID: subscription.ID,
			ProfileID:      *req.ReferredBy,
			Anchor:         anchor,
		}); err != nil {
			return nil, err
		}
	}

	return subscription, nil
}

// GetByExternalID implements domain.Service.
func (s *Service) GetByExternalID(ctx context.Context, externalID string) (*subscriptiondomain.Subscription, error) {
	subscription, err := s.repo.FindByExternalID(ctx, s.db, strings.TrimSpace(externalID))
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrNotFound
	}
	return subscription, nil
}
