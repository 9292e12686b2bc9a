package service

import (
	"context"
	"testing"
	"time"

	"github.com/coachkit/settled/internal/events"
	subscriptiondomain "github.com/coachkit/settled/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformSubscriptionCreatedPersistsWindows(t *testing.T) {
	f := setup(t)
	f.addProfile(t, 100, "15") // 3 months, then 9 months
	sub := f.addSubscription(t, 1, "sub_ext_1", 10)

	anchor := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.svc.HandlePlatformSubscriptionCreated(context.Background(), events.PlatformSubscriptionCreated{
		SubscriptionID: sub.ID,
		ProfileID:      100,
		Anchor:         anchor,
	}))

	var got subscriptiondomain.Subscription
	require.NoError(t, f.db.First(&got, "id = ?", sub.ID).Error)
	require.NotNil(t, got.EndFirstCommDate)
	require.NotNil(t, got.EndSecondCommDate)
	assert.Equal(t, time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC), got.EndFirstCommDate.UTC())
	assert.Equal(t, time.Date(2025, time.January, 30, 0, 0, 0, 0, time.UTC), got.EndSecondCommDate.UTC())
	assert.True(t, !got.EndSecondCommDate.Before(*got.EndFirstCommDate))
}

func TestPlatformSubscriptionCreatedMissingProfileIsLoggedNoOp(t *testing.T) {
	f := setup(t)
	sub := f.addSubscription(t, 1, "sub_ext_1", 10)

	require.NoError(t, f.svc.HandlePlatformSubscriptionCreated(context.Background(), events.PlatformSubscriptionCreated{
		SubscriptionID: sub.ID,
		ProfileID:      999,
		Anchor:         f.clk.Now(),
	}))

	var got subscriptiondomain.Subscription
	require.NoError(t, f.db.First(&got, "id = ?", sub.ID).Error)
	assert.Nil(t, got.EndFirstCommDate)
}
