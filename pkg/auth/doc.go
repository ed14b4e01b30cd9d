// Package auth defines the identity model shared across Plumbline:
// users, organization roles, and session tokens.
//
// Roles form a strict total order (admin > member > viewer) checked with
// Role.AtLeast. Access decisions themselves live in pkg/authz; this package
// only supplies the vocabulary.
//
// Session tokens are opaque random values; only their SHA256 hash is stored.
package auth
