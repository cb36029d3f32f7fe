package billing

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/AutoMarkt/app/models"
)

func TestCheckout_MissingReturnURL(t *testing.T) {
	db := setupTestDB(t)
	u := seedUser(t, db, "alice", "a@b.com", models.ROLE_USER)
	provider := newFakeProvider()

	_, err := NewCheckoutService(NewRepository(db), provider, "").CreateSession(context.Background(), u.ID, "price_x")
	assert.True(t, IsType(err, ErrorTypeConfiguration), "got %v", err)
	assert.Empty(t, provider.sessions)
}

func TestCheckout_UnlinkedUserUsesEmail(t *testing.T) {
	db := setupTestDB(t)
	u := seedUser(t, db, "alice", "a@b.com", models.ROLE_USER)
	provider := newFakeProvider()

	session, err := NewCheckoutService(NewRepository(db), provider, "https://app.example/billing/return").
		CreateSession(context.Background(), u.ID, "price_x")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.NotEmpty(t, session.ClientSecret)

	require.Len(t, provider.sessions, 1)
	in := provider.sessions[0]
	assert.Equal(t, "price_x", in.PriceID)
	assert.Equal(t, "a@b.com", in.CustomerEmail)
	assert.Empty(t, in.CustomerID)
	assert.Equal(t, "https://app.example/billing/return", in.ReturnURL)
	assert.Equal(t, strconv.FormatUint(uint64(u.ID), 10), in.Metadata[MetadataUserIDKey])

	// checkout never mutates local state
	stored := reloadUser(t, db, u.ID)
	assert.Equal(t, models.ROLE_USER, stored.Role)
	assert.Nil(t, stored.ExternalCustomerID)
}

func TestCheckout_LinkedUserUsesCustomer(t *testing.T) {
	db := setupTestDB(t)
	u := seedUser(t, db, "alice", "a@b.com", models.ROLE_USER)
	require.NoError(t, db.Model(u).Update("external_customer_id", "cus_1").Error)
	provider := newFakeProvider()

	_, err := NewCheckoutService(NewRepository(db), provider, "https://app.example/return").
		CreateSession(context.Background(), u.ID, "price_x")
	require.NoError(t, err)
	require.Len(t, provider.sessions, 1)
	assert.Equal(t, "cus_1", provider.sessions[0].CustomerID)
	assert.Empty(t, provider.sessions[0].CustomerEmail)
}

func TestCheckout_Errors(t *testing.T) {
	db := setupTestDB(t)
	u := seedUser(t, db, "alice", "a@b.com", models.ROLE_USER)
	provider := newFakeProvider()
	svc := NewCheckoutService(NewRepository(db), provider, "https://app.example/return")

	_, err := svc.CreateSession(context.Background(), 4242, "price_x")
	assert.True(t, IsType(err, ErrorTypeNotFound))

	_, err = svc.CreateSession(context.Background(), u.ID, "  ")
	assert.True(t, IsType(err, ErrorTypeBadRequest))

	provider.sessionErr = NewProviderError(nil, "create checkout session failed")
	_, err = svc.CreateSession(context.Background(), u.ID, "price_x")
	assert.True(t, IsType(err, ErrorTypeProviderUnavailable))
}
