// Package api provides the HTTP REST API server for Plumbline.
//
// # Overview
//
// This package implements the HTTP layer over the service packages: user
// registration and login, username claiming, organization and membership
// management, the active-organization selector, and org-scoped projects,
// budgets, and unit-price analyses.
//
// Every organization-scoped endpoint passes through the authorization gate
// before touching storage. Viewers read, members write, admins delete and
// manage membership. The gate is consulted per request; decisions are
// never cached.
//
// # HTTP Contract
//
//   - 401: no valid session
//   - 403: not a member, or member below the required role. Unknown and
//     soft-deleted organizations produce this same denial, so a response
//     never reveals whether an organization exists to someone outside it
//   - 404: resource inside the caller's organization does not exist
//   - 400: validation failures, with per-field messages
//   - 409: duplicate email, username, or membership
//   - 500: generic message only, details go to the log
//
// # Key Types
//
// Server is the main API server:
//
//	server := api.NewServer(api.Deps{...})
//	http.ListenAndServe(":8080", server)
//
// # Related Packages
//
//   - pkg/authz: the membership-based authorization gate
//   - pkg/middleware: session, org resolution, rate limiting
//   - pkg/orgs, pkg/projects, pkg/username: the domain services
package api
