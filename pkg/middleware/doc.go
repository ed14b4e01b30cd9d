// Package middleware provides HTTP middleware for the API server.
//
// # Overview
//
// The middleware chain, outermost first:
//
//  1. RequestIDMiddleware assigns a correlation id to every request.
//  2. RateLimitMiddleware enforces shared per-caller limits via Redis.
//  3. SessionMiddleware resolves the bearer token to a user and session.
//  4. OrgContextMiddleware resolves the org path parameter to an entity.
//
// Authorization is NOT middleware. Resolving an organization onto the
// context says nothing about whether the caller may touch it; handlers
// must pass through the authz gate for every organization-scoped
// operation.
//
// # Usage Example
//
//	r := mux.NewRouter()
//	r.Use(middleware.RequestIDMiddleware)
//	r.Use(rateLimit.Handler)
//	api := r.PathPrefix("/api/v1").Subrouter()
//	api.Use(sessionMW.Handler)
//	api.Use(orgMW.Handler)
//
// # Related Packages
//
//   - pkg/authz: the per-operation authorization gate
//   - pkg/session: Redis-backed session storage
//   - pkg/contextkeys: shared context key definitions
package middleware
