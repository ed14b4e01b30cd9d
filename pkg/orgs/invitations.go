package orgs

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/plumbline/plumbline/pkg/auth"
)

// CreateInvitation issues an invitation to join an organization with a
// role. Re-inviting the same email replaces the previous invitation and
// its token. Returns the invitation and the one-time token; only the
// token's hash is stored.
func (s *PostgresService) CreateInvitation(ctx context.Context, orgID int64, email string, role auth.Role, invitedBy int64, ttl time.Duration) (*Invitation, string, error) {
	if !role.Valid() {
		return nil, "", fmt.Errorf("invalid role: %s", role)
	}

	token, err := generateInvitationToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	tokenHash := hashInvitationToken(token)

	now := s.now().UTC()
	inv := &Invitation{
		OrganizationID: orgID,
		Email:          strings.ToLower(strings.TrimSpace(email)),
		Role:           role,
		TokenHash:      tokenHash,
		InvitedBy:      &invitedBy,
		ExpiresAt:      now.Add(ttl),
	}

	query := `
		INSERT INTO invitations (organization_id, email, role, token_hash, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (organization_id, email) DO UPDATE
		SET role = EXCLUDED.role, token_hash = EXCLUDED.token_hash,
		    invited_by = EXCLUDED.invited_by, expires_at = EXCLUDED.expires_at,
		    accepted_at = NULL, created_at = NOW()
		RETURNING id, created_at
	`
	err = s.db.QueryRowContext(ctx, query,
		inv.OrganizationID, inv.Email, inv.Role, inv.TokenHash, invitedBy, inv.ExpiresAt,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create invitation: %w", err)
	}

	return inv, token, nil
}

// GetInvitationByToken resolves a token to its live invitation. Expired
// invitations return ErrInvitationExpired; accepted or unknown tokens
// return ErrInvitationNotFound.
func (s *PostgresService) GetInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	inv, err := s.getInvitation(ctx, hashInvitationToken(token))
	if err != nil {
		return nil, err
	}

	if inv.AcceptedAt != nil {
		return nil, ErrInvitationNotFound
	}
	if inv.Expired(s.now().UTC()) {
		return nil, ErrInvitationExpired
	}

	return inv, nil
}

func (s *PostgresService) getInvitation(ctx context.Context, tokenHash string) (*Invitation, error) {
	query := `
		SELECT id, organization_id, email, role, token_hash, invited_by, created_at, expires_at, accepted_at
		FROM invitations
		WHERE token_hash = $1
	`
	inv := &Invitation{}
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.TokenHash,
		&inv.InvitedBy, &inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	return inv, nil
}

// AcceptInvitation redeems a token for a membership. The membership
// insert and the accepted-at mark commit together.
func (s *PostgresService) AcceptInvitation(ctx context.Context, token string, userID int64) (*Membership, error) {
	inv, err := s.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	// The organization must still exist
	if _, err := s.GetOrganization(ctx, inv.OrganizationID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	m := &Membership{}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO organization_members (organization_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, user_id) DO NOTHING
		RETURNING id, organization_id, user_id, role, created_at, updated_at
	`, inv.OrganizationID, userID, inv.Role).Scan(
		&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAlreadyMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE invitations SET accepted_at = NOW() WHERE id = $1", inv.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit acceptance: %w", err)
	}

	return m, nil
}

// ListInvitations returns pending invitations for an organization
func (s *PostgresService) ListInvitations(ctx context.Context, orgID int64) ([]*Invitation, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT id, organization_id, email, role, token_hash, invited_by, created_at, expires_at, accepted_at
		FROM invitations
		WHERE organization_id = $1 AND accepted_at IS NULL AND expires_at > NOW()
		ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv := &Invitation{}
		if err := rows.Scan(
			&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.TokenHash,
			&inv.InvitedBy, &inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invitations: %w", err)
	}

	return invitations, nil
}

// RevokeInvitation deletes a pending invitation
func (s *PostgresService) RevokeInvitation(ctx context.Context, orgID, invitationID int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM invitations WHERE id = $1 AND organization_id = $2 AND accepted_at IS NULL",
		invitationID, orgID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrInvitationNotFound
	}

	return nil
}

// DeleteExpiredInvitations removes unaccepted invitations past their
// expiry. Run periodically by the janitor.
func (s *PostgresService) DeleteExpiredInvitations(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM invitations WHERE accepted_at IS NULL AND expires_at < NOW()",
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

func generateInvitationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashInvitationToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
