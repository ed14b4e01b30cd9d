package billing

import "time"

// Tier identifies a subscription tier
type Tier string

const (
	// TierFree is the default tier for every user
	TierFree Tier = "free"
	// TierPaid is the paid tier
	TierPaid Tier = "paid"
)

// Valid reports whether the tier is a known tier
func (t Tier) Valid() bool {
	return t == TierFree || t == TierPaid
}

// MaxOwnedOrganizations returns how many organizations a user on this
// tier may administer
func (t Tier) MaxOwnedOrganizations() int {
	if t == TierPaid {
		return 10
	}
	return 1
}

// SubscriptionStatus identifies the lifecycle state of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription is a user's paid subscription record. Users with no
// subscription row are on the free tier.
type Subscription struct {
	ID               int64              `json:"id"`
	UserID           int64              `json:"user_id"`
	Tier             Tier               `json:"tier"`
	Status           SubscriptionStatus `json:"status"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Active reports whether the subscription currently grants its tier
func (s *Subscription) Active(now time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	if s.CurrentPeriodEnd != nil && now.After(*s.CurrentPeriodEnd) {
		return false
	}
	return true
}
