package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/AutoMarkt/app/models"
)

func TestService_ReconcileEntitlements(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, newFakeProvider(), nil, Config{ReturnURL: "https://app.example/return"})
	ctx := context.Background()

	dangling := seedUser(t, db, "dangling", "dangling@b.com", models.ROLE_PREMIUM)
	require.NoError(t, db.Model(dangling).Update("active_subscription_id", "sub_gone").Error)

	orphanPremium := seedUser(t, db, "orphan", "orphan@b.com", models.ROLE_PREMIUM)

	drifted := seedUser(t, db, "drifted", "drifted@b.com", models.ROLE_USER)
	_, _, err := repo.UpsertSubscription(ctx, &models.Subscription{ID: "sub_ok", UserID: drifted.ID, Status: models.SubscriptionStatusActive, LastEventAt: t0})
	require.NoError(t, err)
	require.NoError(t, db.Model(drifted).Update("active_subscription_id", "sub_ok").Error)

	lapsed := seedUser(t, db, "lapsed", "lapsed@b.com", models.ROLE_PREMIUM)
	_, _, err = repo.UpsertSubscription(ctx, &models.Subscription{ID: "sub_unpaid", UserID: lapsed.ID, Status: models.SubscriptionStatusUnpaid, LastEventAt: t0})
	require.NoError(t, err)
	require.NoError(t, db.Model(lapsed).Update("active_subscription_id", "sub_unpaid").Error)

	admin := seedUser(t, db, "admin", "admin@b.com", models.ROLE_ADMIN)
	require.NoError(t, db.Model(admin).Update("active_subscription_id", "sub_unpaid").Error)

	report, err := svc.ReconcileEntitlements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, 1, report.PointersCleared)
	assert.Equal(t, 1, report.Promoted)
	assert.Equal(t, 3, report.Demoted)

	u := reloadUser(t, db, dangling.ID)
	assert.Nil(t, u.ActiveSubscriptionID)
	assert.Equal(t, models.ROLE_USER, u.Role)

	assert.Equal(t, models.ROLE_USER, reloadUser(t, db, orphanPremium.ID).Role)
	assert.Equal(t, models.ROLE_PREMIUM, reloadUser(t, db, drifted.ID).Role)
	assert.Equal(t, models.ROLE_USER, reloadUser(t, db, lapsed.ID).Role)

	a := reloadUser(t, db, admin.ID)
	assert.Equal(t, models.ROLE_ADMIN, a.Role)
	assert.Equal(t, "sub_unpaid", *a.ActiveSubscriptionID)

	// second pass finds nothing to repair
	report, err = svc.ReconcileEntitlements(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.PointersCleared+report.Promoted+report.Demoted)
}

func TestService_CollaboratorOperations(t *testing.T) {
	db := setupTestDB(t)
	provider := newFakeProvider()
	provider.addCustomer("cus_1", "a@b.com")
	svc := NewService(NewRepository(db), provider, &recordingNotifier{}, Config{ReturnURL: "https://app.example/return"})
	u := seedUser(t, db, "alice", "a@b.com", models.ROLE_USER)
	ctx := context.Background()

	_, err := svc.GetActiveSubscription(ctx, u.ID)
	assert.True(t, IsType(err, ErrorTypeNotFound))

	payload, header := signedDelivery(t, "evt_1", KindSubscriptionCreated, t0, subscriptionObject("sub_1", "cus_1", "active"))
	outcome, err := svc.HandleWebhook(ctx, "stripe", payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	sub, err := svc.GetActiveSubscription(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ID)

	invoices, err := svc.ListInvoices(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, invoices)

	session, err := svc.CreateCheckoutSession(ctx, u.ID, "price_x")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)

	_, err = svc.RequestCancellation(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub_1"}, provider.canceled)
}
