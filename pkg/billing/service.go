// Package billing tracks subscription tiers. The only tier-dependent
// behavior in the service today is the owned-organization limit.
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Service resolves subscription tiers for users
type Service interface {
	// GetTier returns the user's effective tier. Users without an active
	// subscription are on the free tier.
	GetTier(ctx context.Context, userID int64) (Tier, error)

	// GetSubscription returns the user's subscription row, or nil when
	// none exists.
	GetSubscription(ctx context.Context, userID int64) (*Subscription, error)

	// SetTier upserts the user's subscription to the given tier.
	SetTier(ctx context.Context, userID int64, tier Tier) (*Subscription, error)
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db, now: time.Now}
}

// GetTier returns the user's effective tier
func (s *PostgresService) GetTier(ctx context.Context, userID int64) (Tier, error) {
	sub, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub == nil || !sub.Active(s.now().UTC()) {
		return TierFree, nil
	}
	return sub.Tier, nil
}

// GetSubscription returns the user's subscription row, or nil when none exists
func (s *PostgresService) GetSubscription(ctx context.Context, userID int64) (*Subscription, error) {
	query := `
		SELECT id, user_id, tier, status, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
	`
	sub := &Subscription{}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&sub.ID, &sub.UserID, &sub.Tier, &sub.Status,
		&sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

// SetTier upserts the user's subscription to the given tier
func (s *PostgresService) SetTier(ctx context.Context, userID int64, tier Tier) (*Subscription, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("invalid tier: %s", tier)
	}

	query := `
		INSERT INTO subscriptions (user_id, tier, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET tier = EXCLUDED.tier, status = EXCLUDED.status, updated_at = NOW()
		RETURNING id, user_id, tier, status, current_period_end, created_at, updated_at
	`
	sub := &Subscription{}
	err := s.db.QueryRowContext(ctx, query, userID, tier, SubscriptionStatusActive).Scan(
		&sub.ID, &sub.UserID, &sub.Tier, &sub.Status,
		&sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set subscription tier: %w", err)
	}

	return sub, nil
}
