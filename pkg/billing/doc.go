// Package billing resolves subscription tiers for users.
//
// # Overview
//
// Every user has an effective tier. Users with no subscription row, or
// whose subscription is canceled or past its period end, are on the free
// tier. The tier controls how many organizations a user may administer:
// one on the free tier, ten on the paid tier.
//
// # Usage Example
//
//	svc := billing.NewPostgresService(db)
//	tier, err := svc.GetTier(ctx, userID)
//	if err != nil {
//		return err
//	}
//	limit := tier.MaxOwnedOrganizations()
//
// # Related Packages
//
//   - pkg/orgs: Enforces the owned-organization limit at creation time
package billing
