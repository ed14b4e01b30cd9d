package orgs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/plumbline/plumbline/pkg/auth"
)

// ActiveOrgClearer drops active-organization pointers from a user's
// sessions. Implemented by the session store.
type ActiveOrgClearer interface {
	ClearActiveOrgForUser(ctx context.Context, userID, orgID int64) error
}

// ReadPool hands out a connection for stale-tolerant reads. Implemented
// by the storage connection manager, which round-robins across replicas
// and falls back to the primary when none are configured.
type ReadPool interface {
	Replica() *sql.DB
}

// PostgresService implements organization and membership storage over
// PostgreSQL
type PostgresService struct {
	db       *sql.DB
	reads    ReadPool
	sessions ActiveOrgClearer
	limits   *LimitPolicy
	now      func() time.Time
}

// NewPostgresService creates a new PostgresService. The limit policy is
// attached afterwards with SetLimitPolicy because the policy counts
// memberships through this same service.
func NewPostgresService(db *sql.DB, sessions ActiveOrgClearer) *PostgresService {
	return &PostgresService{
		db:       db,
		sessions: sessions,
		now:      time.Now,
	}
}

// SetLimitPolicy attaches the tier-limit policy enforced at creation time
func (s *PostgresService) SetLimitPolicy(limits *LimitPolicy) {
	s.limits = limits
}

// SetReadPool routes listing reads through read replicas. Membership and
// organization lookups that feed authorization decisions stay on the
// primary: a denial must reflect authoritative state, and replica lag
// would hold a revoked member's access open.
func (s *PostgresService) SetReadPool(reads ReadPool) {
	s.reads = reads
}

func (s *PostgresService) reader() *sql.DB {
	if s.reads != nil {
		return s.reads.Replica()
	}
	return s.db
}

// CreateOrganization founds an organization. The founder gets an ADMIN
// membership in the same transaction; an organization never exists
// without at least one admin.
func (s *PostgresService) CreateOrganization(ctx context.Context, userID int64, req *CreateOrganizationRequest) (*Organization, error) {
	if s.limits != nil {
		allowed, err := s.limits.CanCreateOrganization(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check organization limit: %w", err)
		}
		if !allowed {
			return nil, ErrLimitReached
		}
	}

	org := &Organization{
		Name:      req.Name,
		Type:      req.Type,
		CreatedBy: userID,
	}
	if org.Type == "" {
		org.Type = OrgTypeContractor
	}

	// Slugs are unique. The candidate is probed before any transaction is
	// opened: a failed INSERT aborts its transaction, so the retry for the
	// next suffix has to run in a fresh one. The unique constraint stays
	// the backstop for the probe-to-insert race.
	base := generateSlug(org.Name)
	for attempt := 0; attempt <= maxSlugAttempts; attempt++ {
		slug := base
		if attempt > 0 {
			slug = fmt.Sprintf("%s-%d", base, attempt)
		}

		taken, err := s.slugTaken(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("failed to probe slug %q: %w", slug, err)
		}
		if taken {
			continue
		}

		err = s.insertOrganization(ctx, org, slug, userID)
		if err == nil {
			return org, nil
		}

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Lost the race for this slug; try the next suffix
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("failed to allocate a slug for %q", org.Name)
}

const maxSlugAttempts = 10

func (s *PostgresService) slugTaken(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM organizations WHERE slug = $1)
	`, slug).Scan(&exists)
	return exists, err
}

func (s *PostgresService) insertOrganization(ctx context.Context, org *Organization, slug string, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO organizations (name, slug, org_type, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, slug, created_at, updated_at
	`, org.Name, slug, org.Type, userID).
		Scan(&org.ID, &org.Slug, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO organization_members (organization_id, user_id, role)
		VALUES ($1, $2, $3)
	`, org.ID, userID, auth.RoleAdmin); err != nil {
		return fmt.Errorf("failed to create founding membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit organization: %w", err)
	}

	return nil
}

// GetOrganization retrieves an organization by ID. Deleted organizations
// are not found.
func (s *PostgresService) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	return s.getOrganization(ctx, "id = $1", id)
}

// GetOrganizationBySlug retrieves an organization by slug
func (s *PostgresService) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	return s.getOrganization(ctx, "slug = $1", slug)
}

func (s *PostgresService) getOrganization(ctx context.Context, where string, arg interface{}) (*Organization, error) {
	query := fmt.Sprintf(`
		SELECT id, name, slug, org_type, settings, created_by, created_at, updated_at
		FROM organizations
		WHERE %s AND deleted_at IS NULL
	`, where)

	org := &Organization{}
	var settings []byte
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&org.ID, &org.Name, &org.Slug, &org.Type, &settings, &org.CreatedBy,
		&org.CreatedAt, &org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &org.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode organization settings: %w", err)
		}
	}

	return org, nil
}

// UpdateOrganization updates mutable organization fields
func (s *PostgresService) UpdateOrganization(ctx context.Context, id int64, req *UpdateOrganizationRequest) (*Organization, error) {
	setClauses := []string{"updated_at = NOW()"}
	args := []interface{}{}
	argIdx := 1

	if req.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *req.Name)
		argIdx++
	}
	if req.Type != nil {
		setClauses = append(setClauses, fmt.Sprintf("org_type = $%d", argIdx))
		args = append(args, *req.Type)
		argIdx++
	}
	if req.Settings != nil {
		encoded, err := json.Marshal(req.Settings)
		if err != nil {
			return nil, fmt.Errorf("failed to encode organization settings: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("settings = $%d", argIdx))
		args = append(args, encoded)
		argIdx++
	}

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE organizations SET %s
		WHERE id = $%d AND deleted_at IS NULL
	`, strings.Join(setClauses, ", "), argIdx)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	return s.GetOrganization(ctx, id)
}

// DeleteOrganization soft-deletes an organization. Memberships stay in
// place so the row can be restored, but lookups stop resolving it, which
// makes every authorization check against it deny.
func (s *PostgresService) DeleteOrganization(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE organizations SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListOrganizationsForUser returns every live organization the user
// belongs to, with their role
func (s *PostgresService) ListOrganizationsForUser(ctx context.Context, userID int64) ([]*UserOrganization, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT o.id, o.name, o.slug, o.org_type, o.created_by, o.created_at, o.updated_at, m.role
		FROM organizations o
		JOIN organization_members m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND o.deleted_at IS NULL
		ORDER BY o.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var result []*UserOrganization
	for rows.Next() {
		uo := &UserOrganization{}
		if err := rows.Scan(
			&uo.ID, &uo.Name, &uo.Slug, &uo.Type, &uo.CreatedBy,
			&uo.CreatedAt, &uo.UpdatedAt, &uo.Role,
		); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		result = append(result, uo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}

	return result, nil
}

// generateSlug derives a URL-safe slug from an organization name
func generateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "org"
	}
	if len(slug) > 100 {
		slug = slug[:100]
	}
	return slug
}
