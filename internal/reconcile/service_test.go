package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/coachkit/settled/internal/clock"
	"github.com/coachkit/settled/internal/events"
	"github.com/coachkit/settled/internal/notify"
	"github.com/coachkit/settled/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// Manual Mocks

type fakeClient struct {
	processor.Client

	subs      []*stripe.Subscription
	customers map[string]*stripe.Customer
	listCalls int
}

func (f *fakeClient) ListSubscriptions(ctx context.Context, q processor.ListQuery) ([]*stripe.Subscription, processor.Page, error) {
	f.listCalls++
	start := 0
	if q.StartingAfter != "" {
		for i, sub := range f.subs {
			if sub.ID == q.StartingAfter {
				start = i + 1
				break
			}
		}
	}
	end := start + int(q.Limit)
	if end > len(f.subs) {
		end = len(f.subs)
	}
	items := f.subs[start:end]
	page := processor.Page{HasMore: end < len(f.subs)}
	if len(items) > 0 {
		page.NextCursor = items[len(items)-1].ID
	}
	return items, page, nil
}

func (f *fakeClient) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	if c, ok := f.customers[id]; ok {
		return c, nil
	}
	return nil, assert.AnError
}

type fakeNotifier struct {
	sent []notify.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n notify.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

func sub(id, status string) *stripe.Subscription {
	return &stripe.Subscription{ID: id, Status: stripe.SubscriptionStatus(status)}
}

func setup(t *testing.T) (*Service, *gorm.DB, *fakeClient, *fakeNotifier) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&SubscriptionStateSnapshot{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	client := &fakeClient{customers: make(map[string]*stripe.Customer)}
	notifier := &fakeNotifier{}

	svc := &Service{
		db:       db,
		log:      zaptest.NewLogger(t),
		genID:    node,
		clock:    clock.NewFakeClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)),
		client:   client,
		retry:    processor.RetryConfig{MaxRetries: 0, Delay: time.Millisecond},
		notifier: notifier,
	}
	return svc, db, client, notifier
}

func snapshots(t *testing.T, db *gorm.DB) map[string]string {
	t.Helper()
	var rows []SubscriptionStateSnapshot
	require.NoError(t, db.Find(&rows).Error)
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.ExternalSubscriptionID] = row.SubscriptionStatus
	}
	return out
}

func TestEmptySnapshotBulkInsertsEverything(t *testing.T) {
	svc, db, client, _ := setup(t)
	client.subs = []*stripe.Subscription{sub("sub_a", "active"), sub("sub_b", "trialing")}

	require.NoError(t, svc.Run(context.Background()))

	assert.Equal(t, map[string]string{"sub_a": "active", "sub_b": "trialing"}, snapshots(t, db))
}

func TestRunConvergesInOnePass(t *testing.T) {
	svc, db, client, _ := setup(t)
	require.NoError(t, db.Create(&SubscriptionStateSnapshot{
		ID: 1, ExternalSubscriptionID: "sub_a", SubscriptionStatus: "active",
	}).Error)
	require.NoError(t, db.Create(&SubscriptionStateSnapshot{
		ID: 2, ExternalSubscriptionID: "sub_b", SubscriptionStatus: "active",
	}).Error)

	client.subs = []*stripe.Subscription{
		sub("sub_a", "active"),    // unchanged
		sub("sub_b", "past_due"),  // drifted
		sub("sub_c", "trialing"),  // new
	}

	require.NoError(t, svc.Run(context.Background()))

	assert.Equal(t, map[string]string{
		"sub_a": "active",
		"sub_b": "past_due",
		"sub_c": "trialing",
	}, snapshots(t, db))
}

func TestRunPrunesRowsMissingFromTheProcessor(t *testing.T) {
	svc, db, client, _ := setup(t)
	require.NoError(t, db.Create(&SubscriptionStateSnapshot{
		ID: 1, ExternalSubscriptionID: "sub_a", SubscriptionStatus: "active",
	}).Error)
	require.NoError(t, db.Create(&SubscriptionStateSnapshot{
		ID: 2, ExternalSubscriptionID: "sub_gone", SubscriptionStatus: "active",
	}).Error)

	client.subs = []*stripe.Subscription{sub("sub_a", "active")}

	require.NoError(t, svc.Run(context.Background()))

	assert.Equal(t, map[string]string{"sub_a": "active"}, snapshots(t, db))
}

func TestRunPagesThroughTheFullList(t *testing.T) {
	svc, db, client, _ := setup(t)
	for i := 0; i < 250; i++ {
		client.subs = append(client.subs, sub(subID(i), "active"))
	}

	require.NoError(t, svc.Run(context.Background()))

	assert.Len(t, snapshots(t, db), 250)
	assert.Equal(t, 3, client.listCalls) // 100 + 100 + 50
}

func subID(i int) string {
	return "sub_" + string(rune('a'+i/26)) + string(rune('a'+i%26))
}

func TestDeletedSubscriptionNotifiesGrowth(t *testing.T) {
	svc, _, client, notifier := setup(t)
	client.customers["cus_1"] = &stripe.Customer{Name: "Ada Lovelace", Email: "ada@example.com"}

	require.NoError(t, svc.HandleSubscriptionDeleted(context.Background(), events.ProcessorSubscriptionDeleted{
		ExternalSubscriptionID: "sub_a",
		CustomerID:             "cus_1",
	}))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notify.Notification{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Status:    "canceled",
	}, notifier.sent[0])
}

func TestDeletedSubscriptionCustomerLookupFailureIsSwallowed(t *testing.T) {
	svc, _, _, notifier := setup(t)

	require.NoError(t, svc.HandleSubscriptionDeleted(context.Background(), events.ProcessorSubscriptionDeleted{
		ExternalSubscriptionID: "sub_a",
		CustomerID:             "cus_missing",
	}))

	assert.Empty(t, notifier.sent)
}
