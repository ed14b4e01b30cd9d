package orgs

import (
	"context"

	"github.com/plumbline/plumbline/pkg/billing"
	"github.com/plumbline/plumbline/pkg/observability"
)

// AdminCounter counts a user's ADMIN memberships
type AdminCounter interface {
	CountAdminMemberships(ctx context.Context, userID int64) (int, error)
}

// LimitPolicy decides how many organizations a user may administer,
// based on subscription tier. An ADMIN membership is the proxy for
// "owns this organization".
//
// The two entry points fail in opposite directions on storage errors,
// and the asymmetry is deliberate. RemainingOrganizationSlots feeds
// onboarding UI and must never block a brand-new user on a transient
// read failure, so it reports one free slot. CanCreateOrganization
// gates the actual mutation and must never grant unlimited creation
// under sustained failure, so it propagates the error and the creation
// is denied.
type LimitPolicy struct {
	counter AdminCounter
	billing billing.Service
	logger  *observability.Logger
}

// NewLimitPolicy creates a LimitPolicy
func NewLimitPolicy(counter AdminCounter, billingSvc billing.Service, logger *observability.Logger) *LimitPolicy {
	return &LimitPolicy{
		counter: counter,
		billing: billingSvc,
		logger:  logger,
	}
}

// RemainingOrganizationSlots reports how many more organizations the
// user may found. Never negative, never an error: a failed count reports
// a single free slot.
func (p *LimitPolicy) RemainingOrganizationSlots(ctx context.Context, userID int64) int {
	limit := p.limitFor(ctx, userID)

	count, err := p.counter.CountAdminMemberships(ctx, userID)
	if err != nil {
		p.logger.WithError(err).WithField("user_id", userID).
			Warn("Admin membership count unavailable, reporting one free slot")
		return 1
	}

	remaining := limit - count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanCreateOrganization reports whether founding one more organization
// stays within the user's tier limit. Storage errors propagate, and the
// caller must treat them as denial.
func (p *LimitPolicy) CanCreateOrganization(ctx context.Context, userID int64) (bool, error) {
	limit := p.limitFor(ctx, userID)

	count, err := p.counter.CountAdminMemberships(ctx, userID)
	if err != nil {
		return false, err
	}

	return count < limit, nil
}

// limitFor resolves the user's tier limit. A tier lookup failure falls
// back to the free tier rather than blocking the request.
func (p *LimitPolicy) limitFor(ctx context.Context, userID int64) int {
	tier, err := p.billing.GetTier(ctx, userID)
	if err != nil {
		p.logger.WithError(err).WithField("user_id", userID).
			Warn("Tier lookup failed, assuming free tier")
		tier = billing.TierFree
	}
	return tier.MaxOwnedOrganizations()
}
