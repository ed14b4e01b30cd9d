// Package orgs provides multi-tenant organization and membership management.
//
// # Overview
//
// This package manages organizations (contractors and building-materials
// stores), memberships, invitations, and the tier-based limit on how many
// organizations a user may administer. A Membership row is the sole
// record granting a user access to an organization; every access decision
// traces back to one.
//
// # Membership Model
//
// Each (user, organization) pair has at most one membership, carrying a
// role from the ordered set ADMIN > MEMBER > VIEWER. Founding an
// organization creates the founder's ADMIN membership in the same
// transaction. Removing a membership also clears the user's
// active-organization pointer in every session that points at the
// organization.
//
// # Organization Limits
//
// Free tier: 1 organization administered.
// Paid tier: 10 organizations administered.
//
// The limit counts ADMIN memberships. The read path
// (RemainingOrganizationSlots) fails open to one free slot on storage
// errors; the enforcement path (CanCreateOrganization) fails closed.
//
// # Usage Example
//
// Found an organization:
//
//	org, err := service.CreateOrganization(ctx, userID, &orgs.CreateOrganizationRequest{
//		Name: "Acme Construction",
//		Type: orgs.OrgTypeContractor,
//	})
//
// Invite a member:
//
//	inv, token, err := service.CreateInvitation(ctx, org.ID, "bob@example.com", auth.RoleMember, userID, 7*24*time.Hour)
//
// # Related Packages
//
//   - pkg/auth: Role definitions and ordering
//   - pkg/authz: The authorization gate built on memberships
//   - pkg/billing: Subscription tiers behind the limit policy
package orgs
