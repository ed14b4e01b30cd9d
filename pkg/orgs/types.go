package orgs

import (
	"errors"
	"time"

	"github.com/plumbline/plumbline/pkg/auth"
)

// Typed errors so the HTTP layer can map failures to status codes
// without string matching
var (
	// ErrNotFound is returned when an organization does not exist or has
	// been deleted
	ErrNotFound = errors.New("organization not found")

	// ErrAlreadyMember is returned when adding a user who already has a
	// membership in the organization
	ErrAlreadyMember = errors.New("user is already a member")

	// ErrMemberNotFound is returned when a membership lookup misses
	ErrMemberNotFound = errors.New("member not found")

	// ErrInvitationNotFound is returned for unknown or already-accepted
	// invitation tokens
	ErrInvitationNotFound = errors.New("invitation not found")

	// ErrInvitationExpired is returned for invitations past their expiry
	ErrInvitationExpired = errors.New("invitation expired")

	// ErrLimitReached is returned when creating an organization would
	// exceed the user's tier limit
	ErrLimitReached = errors.New("organization limit reached")
)

// OrgType identifies what kind of business an organization is
type OrgType string

const (
	// OrgTypeContractor is a construction contractor
	OrgTypeContractor OrgType = "contractor"
	// OrgTypeStore is a building-materials store
	OrgTypeStore OrgType = "store"
)

// Valid reports whether the type is a known organization type
func (t OrgType) Valid() bool {
	return t == OrgTypeContractor || t == OrgTypeStore
}

// Organization is a tenant boundary. All projects, budgets, and analyses
// belong to exactly one organization.
type Organization struct {
	ID        int64                  `json:"id"`
	Name      string                 `json:"name"`
	Slug      string                 `json:"slug"`
	Type      OrgType                `json:"type"`
	Settings  map[string]interface{} `json:"settings,omitempty"`
	CreatedBy int64                  `json:"created_by"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	DeletedAt *time.Time             `json:"-"`
}

// Membership links a user to an organization with a role. It is the sole
// record granting access: no other entity may grant it.
type Membership struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	UserID         int64     `json:"user_id"`
	Role           auth.Role `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Member is a membership joined with its user's identity, for listing
type Member struct {
	UserID   int64     `json:"user_id"`
	Username *string   `json:"username,omitempty"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name,omitempty"`
	Role     auth.Role `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// UserOrganization is an organization joined with the user's role in it
type UserOrganization struct {
	Organization
	Role auth.Role `json:"role"`
}

// Invitation is a pending offer of membership. Only the SHA-256 hash of
// the invitation token is stored.
type Invitation struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	Email          string     `json:"email"`
	Role           auth.Role  `json:"role"`
	TokenHash      string     `json:"-"`
	InvitedBy      *int64     `json:"invited_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
}

// Expired reports whether the invitation is past its expiry
func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// CreateOrganizationRequest carries the fields for founding an organization
type CreateOrganizationRequest struct {
	Name string  `json:"name"`
	Type OrgType `json:"type"`
}

// UpdateOrganizationRequest carries the mutable organization fields.
// Settings replaces the whole settings document when present.
type UpdateOrganizationRequest struct {
	Name     *string                `json:"name,omitempty"`
	Type     *OrgType               `json:"type,omitempty"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}
