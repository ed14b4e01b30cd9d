package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/plumbline/plumbline/pkg/auth"
)

// GetMembership returns the membership for (orgID, userID), or
// ErrMemberNotFound. There is at most one membership per pair.
func (s *PostgresService) GetMembership(ctx context.Context, orgID, userID int64) (*Membership, error) {
	query := `
		SELECT id, organization_id, user_id, role, created_at, updated_at
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`
	m := &Membership{}
	err := s.db.QueryRowContext(ctx, query, orgID, userID).Scan(
		&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return m, nil
}

// AddMember adds a user to an organization with the given role. Returns
// ErrAlreadyMember if a membership already exists.
func (s *PostgresService) AddMember(ctx context.Context, orgID, userID int64, role auth.Role) (*Membership, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role: %s", role)
	}

	query := `
		INSERT INTO organization_members (organization_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, user_id) DO NOTHING
		RETURNING id, organization_id, user_id, role, created_at, updated_at
	`
	m := &Membership{}
	err := s.db.QueryRowContext(ctx, query, orgID, userID, role).Scan(
		&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		// DO NOTHING swallowed the insert: the membership already exists
		return nil, ErrAlreadyMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	return m, nil
}

// UpdateMemberRole changes a member's role
func (s *PostgresService) UpdateMemberRole(ctx context.Context, orgID, userID int64, role auth.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role: %s", role)
	}

	query := `
		UPDATE organization_members SET role = $1, updated_at = NOW()
		WHERE organization_id = $2 AND user_id = $3
	`
	result, err := s.db.ExecContext(ctx, query, role, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrMemberNotFound
	}

	return nil
}

// RemoveMember deletes a user's membership. Every session of that user
// pointing at this organization has its active-organization pointer
// cleared, so access ends immediately rather than at next login.
func (s *PostgresService) RemoveMember(ctx context.Context, orgID, userID int64) error {
	query := `DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	result, err := s.db.ExecContext(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrMemberNotFound
	}

	if s.sessions != nil {
		if err := s.sessions.ClearActiveOrgForUser(ctx, userID, orgID); err != nil {
			return fmt.Errorf("failed to clear active organization: %w", err)
		}
	}

	return nil
}

// ListMembers returns all members of an organization with their identity
func (s *PostgresService) ListMembers(ctx context.Context, orgID int64) ([]*Member, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT u.id, u.username, u.email, COALESCE(u.full_name, ''), m.role, m.created_at
		FROM organization_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.created_at
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.UserID, &m.Username, &m.Email, &m.FullName, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return members, nil
}

// CountAdminMemberships counts how many organizations the user
// administers. Feeds the tier-limit policy.
func (s *PostgresService) CountAdminMemberships(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM organization_members m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1 AND m.role = $2 AND o.deleted_at IS NULL
	`, userID, auth.RoleAdmin).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count admin memberships: %w", err)
	}

	return count, nil
}
