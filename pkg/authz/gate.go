// Package authz implements the organization-scoped authorization gate.
//
// All role checks in the HTTP layer go through the single Gate here
// instead of ad hoc membership queries in each handler, so role
// comparison can never drift between routes. The gate is a pure decision
// function: it never mutates state, and it performs no caching. Every
// call re-reads authoritative membership state, so a decision reflects a
// consistent snapshot rather than a stale cache entry. Callers must not
// assume a decision stays valid across a later await point; re-check
// before a sensitive mutation if significant time has passed.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/plumbline/plumbline/pkg/auth"
	"github.com/plumbline/plumbline/pkg/observability"
	"github.com/plumbline/plumbline/pkg/orgs"
)

// Denial reasons. A missing organization and a missing membership
// collapse into the same reason so a response can never leak whether an
// organization exists to someone outside it.
const (
	ReasonNotMember        = "not a member"
	ReasonInsufficientRole = "insufficient role"
)

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool
	Reason  string

	// Membership is the membership the decision was made on, set only
	// when Allowed
	Membership *orgs.Membership
}

// Allow builds an allowed decision
func Allow(m *orgs.Membership) Decision {
	return Decision{Allowed: true, Membership: m}
}

// Deny builds a denied decision
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Gate decides whether a user may act in an organization at a minimum role
type Gate interface {
	Authorize(ctx context.Context, userID, orgID int64, minRole auth.Role) (Decision, error)
}

// MembershipReader is the slice of the orgs service the gate reads from
type MembershipReader interface {
	GetOrganization(ctx context.Context, id int64) (*orgs.Organization, error)
	GetMembership(ctx context.Context, orgID, userID int64) (*orgs.Membership, error)
}

// MembershipGate implements Gate over live membership state
type MembershipGate struct {
	reader  MembershipReader
	metrics *observability.Metrics
}

// NewMembershipGate creates a MembershipGate. Metrics may be nil.
func NewMembershipGate(reader MembershipReader, metrics *observability.Metrics) *MembershipGate {
	return &MembershipGate{reader: reader, metrics: metrics}
}

// Authorize decides whether userID may act in orgID at minRole or above.
// Role sufficiency follows the total order admin > member > viewer.
// Storage failures return an error, never a decision.
func (g *MembershipGate) Authorize(ctx context.Context, userID, orgID int64, minRole auth.Role) (Decision, error) {
	if _, err := g.reader.GetOrganization(ctx, orgID); err != nil {
		if errors.Is(err, orgs.ErrNotFound) {
			return g.observe(Deny(ReasonNotMember)), nil
		}
		return Decision{}, fmt.Errorf("failed to resolve organization: %w", err)
	}

	m, err := g.reader.GetMembership(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, orgs.ErrMemberNotFound) {
			return g.observe(Deny(ReasonNotMember)), nil
		}
		return Decision{}, fmt.Errorf("failed to resolve membership: %w", err)
	}

	if !m.Role.AtLeast(minRole) {
		return g.observe(Deny(ReasonInsufficientRole)), nil
	}

	return g.observe(Allow(m)), nil
}

func (g *MembershipGate) observe(d Decision) Decision {
	if g.metrics != nil {
		g.metrics.ObserveAuthzDecision(d.Allowed, d.Reason)
	}
	return d
}
