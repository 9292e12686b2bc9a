package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	subscriptiondomain "github.com/coachkit/settled/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&subscriptiondomain.Subscription{}))
	return db
}

func seed(t *testing.T, db *gorm.DB, status subscriptiondomain.SplitStatus) *subscriptiondomain.Subscription {
	t.Helper()
	sub := &subscriptiondomain.Subscription{
		ID:                     1001,
		ExternalSubscriptionID: "sub_ext_1",
		MerchantID:             7,
		SplitStatus:            status,
	}
	require.NoError(t, Provide().Insert(context.Background(), db, sub))
	return sub
}

func TestSplitStatusForwardProgression(t *testing.T) {
	db := setupDB(t)
	sub := seed(t, db, subscriptiondomain.SplitStatusNone)
	r := Provide()

	require.NoError(t, r.UpdateSplitStatus(context.Background(), db, sub.ID, subscriptiondomain.SplitStatusPending))
	require.NoError(t, r.UpdateSplitStatus(context.Background(), db, sub.ID, subscriptiondomain.SplitStatusSuccess))

	got, err := r.FindByID(context.Background(), db, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SplitStatusSuccess, got.SplitStatus)
}

func TestTerminalStatusIsNotReopened(t *testing.T) {
	db := setupDB(t)
	sub := seed(t, db, subscriptiondomain.SplitStatusSuccess)
	r := Provide()

	err := r.UpdateSplitStatus(context.Background(), db, sub.ID, subscriptiondomain.SplitStatusPending)
	assert.ErrorIs(t, err, subscriptiondomain.ErrIllegalTransition)

	err = r.UpdateSplitStatus(context.Background(), db, sub.ID, subscriptiondomain.SplitStatusFailed)
	assert.ErrorIs(t, err, subscriptiondomain.ErrIllegalTransition)
}

func TestSameStatusIsANoOp(t *testing.T) {
	db := setupDB(t)
	sub := seed(t, db, subscriptiondomain.SplitStatusFailed)

	assert.NoError(t, Provide().UpdateSplitStatus(context.Background(), db, sub.ID, subscriptiondomain.SplitStatusFailed))
}

func TestNoneToTerminalIsIllegal(t *testing.T) {
	db := setupDB(t)
	sub := seed(t, db, subscriptiondomain.SplitStatusNone)

	err := Provide().UpdateSplitStatus(context.Background(), db, sub.ID, subscriptiondomain.SplitStatusSuccess)
	assert.ErrorIs(t, err, subscriptiondomain.ErrIllegalTransition)
}

func TestAppendLogJoinsWithNewlines(t *testing.T) {
	db := setupDB(t)
	sub := seed(t, db, subscriptiondomain.SplitStatusNone)
	r := Provide()

	require.NoError(t, r.AppendLog(context.Background(), db, sub.ID, "first line"))
	require.NoError(t, r.AppendLog(context.Background(), db, sub.ID, "second line"))

	got, err := r.FindByID(context.Background(), db, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", got.Logs)
}

func TestInsertDuplicateExternalID(t *testing.T) {
	db := setupDB(t)
	seed(t, db, subscriptiondomain.SplitStatusNone)
	// sqlite AutoMigrate does not add the unique index the migration carries
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX idx_subscriptions_external_id ON subscriptions (external_subscription_id)`,
	).Error)

	err := Provide().Insert(context.Background(), db, &subscriptiondomain.Subscription{
		ID:                     1002,
		ExternalSubscriptionID: "sub_ext_1",
		MerchantID:             7,
		SplitStatus:            subscriptiondomain.SplitStatusNone,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrDuplicateExternal)
}
