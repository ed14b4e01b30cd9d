package auth

import "time"

// User represents an account in the system
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username,omitempty"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// HasUsername reports whether the account has claimed a username.
// Usernames are assigned at most once and never change after that.
func (u *User) HasUsername() bool {
	return u.Username != ""
}

// Role represents organization-level roles, ordered by privilege
type Role string

const (
	RoleAdmin  Role = "admin"  // Full control, can invite and remove members
	RoleMember Role = "member" // Can create and edit budgets and projects
	RoleViewer Role = "viewer" // Read-only access
)

// roleRank maps roles onto the total order admin > member > viewer.
// Unknown roles rank below viewer so they never satisfy a requirement.
var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleMember: 2,
	RoleAdmin:  3,
}

// Valid reports whether r is one of the defined roles
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r satisfies a minimum required role
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// Session represents a logged-in browser or API session
type Session struct {
	Token       string     `json:"-"` // Never serialized to clients in full
	UserID      int64      `json:"user_id"`
	ActiveOrgID *int64     `json:"active_org_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
}

// Expired reports whether the session is past its expiry
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Context holds the authenticated identity for a request.
// The session provider is trusted as-is: handlers never re-verify
// credentials, only membership and role.
type Context struct {
	User    *User
	Session *Session
}

// ActiveOrgID returns the session's active organization, or 0 when none is set
func (c *Context) ActiveOrgID() int64 {
	if c == nil || c.Session == nil || c.Session.ActiveOrgID == nil {
		return 0
	}
	return *c.Session.ActiveOrgID
}
