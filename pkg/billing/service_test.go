package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscriptionColumns() []string {
	return []string{"id", "user_id", "tier", "status", "current_period_end", "created_at", "updated_at"}
}

func TestTierMaxOwnedOrganizations(t *testing.T) {
	assert.Equal(t, 1, TierFree.MaxOwnedOrganizations())
	assert.Equal(t, 10, TierPaid.MaxOwnedOrganizations())
	// Unknown tiers get the free limit
	assert.Equal(t, 1, Tier("enterprise").MaxOwnedOrganizations())
}

func TestSubscriptionActive(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{
			name: "active within period",
			sub:  Subscription{Status: SubscriptionStatusActive, CurrentPeriodEnd: &future},
			want: true,
		},
		{
			name: "active with no period end",
			sub:  Subscription{Status: SubscriptionStatusActive},
			want: true,
		},
		{
			name: "active but period ended",
			sub:  Subscription{Status: SubscriptionStatusActive, CurrentPeriodEnd: &past},
			want: false,
		},
		{
			name: "canceled",
			sub:  Subscription{Status: SubscriptionStatusCanceled, CurrentPeriodEnd: &future},
			want: false,
		},
		{
			name: "past due",
			sub:  Subscription{Status: SubscriptionStatusPastDue},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.Active(now))
		})
	}
}

func TestGetTierNoSubscription(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, user_id, tier").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns()))

	svc := NewPostgresService(db)
	tier, err := svc.GetTier(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, TierFree, tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTierActivePaid(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	periodEnd := now.Add(30 * 24 * time.Hour)
	mock.ExpectQuery("SELECT id, user_id, tier").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns()).
			AddRow(10, 1, "paid", "active", periodEnd, now, now))

	svc := NewPostgresService(db)
	tier, err := svc.GetTier(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, TierPaid, tier)
}

func TestGetTierExpiredPaidFallsBackToFree(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	periodEnd := now.Add(-time.Hour)
	mock.ExpectQuery("SELECT id, user_id, tier").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns()).
			AddRow(10, 1, "paid", "active", periodEnd, now, now))

	svc := NewPostgresService(db)
	tier, err := svc.GetTier(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, TierFree, tier)
}

func TestGetTierQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, user_id, tier").
		WithArgs(int64(1)).
		WillReturnError(errors.New("connection refused"))

	svc := NewPostgresService(db)
	_, err = svc.GetTier(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get subscription")
}

func TestSetTier(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO subscriptions").
		WithArgs(int64(1), TierPaid, SubscriptionStatusActive).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns()).
			AddRow(10, 1, "paid", "active", nil, now, now))

	svc := NewPostgresService(db)
	sub, err := svc.SetTier(context.Background(), 1, TierPaid)
	require.NoError(t, err)
	assert.Equal(t, TierPaid, sub.Tier)
	assert.Equal(t, SubscriptionStatusActive, sub.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetTierInvalid(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewPostgresService(db)
	_, err = svc.SetTier(context.Background(), 1, Tier("platinum"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tier")
}
