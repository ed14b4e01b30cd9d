// Package projects manages construction projects, budgets, line items,
// and unit-price analyses. Every row is scoped to an organization, and
// every query carries the organization ID so one tenant can never see
// another's data even with a guessed row ID.
package projects

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ReadPool hands out a connection for stale-tolerant reads. Implemented
// by the storage connection manager.
type ReadPool interface {
	Replica() *sql.DB
}

// PostgresService implements project storage over PostgreSQL
type PostgresService struct {
	db    *sql.DB
	reads ReadPool
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// SetReadPool routes listing reads through read replicas. Single-row
// lookups stay on the primary so an update's read-back sees its own
// write.
func (s *PostgresService) SetReadPool(reads ReadPool) {
	s.reads = reads
}

func (s *PostgresService) reader() *sql.DB {
	if s.reads != nil {
		return s.reads.Replica()
	}
	return s.db
}

// CreateProject creates a project in the organization
func (s *PostgresService) CreateProject(ctx context.Context, orgID, userID int64, req *CreateProjectRequest) (*Project, error) {
	p := &Project{
		OrganizationID: orgID,
		Name:           req.Name,
		Description:    req.Description,
		Status:         ProjectStatusActive,
		CreatedBy:      userID,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (organization_id, name, description, status, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, orgID, p.Name, p.Description, p.Status, userID).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return p, nil
}

// GetProject retrieves a project by ID within the organization
func (s *PostgresService) GetProject(ctx context.Context, orgID, projectID int64) (*Project, error) {
	p := &Project{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, COALESCE(description, ''), status, created_by, created_at, updated_at
		FROM projects
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, projectID, orgID).Scan(
		&p.ID, &p.OrganizationID, &p.Name, &p.Description, &p.Status,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return p, nil
}

// ListProjects returns the organization's live projects
func (s *PostgresService) ListProjects(ctx context.Context, orgID int64) ([]*Project, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT id, organization_id, name, COALESCE(description, ''), status, created_by, created_at, updated_at
		FROM projects
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var result []*Project
	for rows.Next() {
		p := &Project{}
		if err := rows.Scan(
			&p.ID, &p.OrganizationID, &p.Name, &p.Description, &p.Status,
			&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}

	return result, nil
}

// UpdateProject updates mutable project fields
func (s *PostgresService) UpdateProject(ctx context.Context, orgID, projectID int64, req *UpdateProjectRequest) (*Project, error) {
	setClauses := []string{"updated_at = NOW()"}
	args := []interface{}{}
	argIdx := 1

	if req.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *req.Name)
		argIdx++
	}
	if req.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argIdx))
		args = append(args, *req.Description)
		argIdx++
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, fmt.Errorf("invalid project status: %s", *req.Status)
		}
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *req.Status)
		argIdx++
	}

	args = append(args, projectID, orgID)
	query := fmt.Sprintf(`
		UPDATE projects SET %s
		WHERE id = $%d AND organization_id = $%d AND deleted_at IS NULL
	`, strings.Join(setClauses, ", "), argIdx, argIdx+1)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	return s.GetProject(ctx, orgID, projectID)
}

// DeleteProject soft-deletes a project
func (s *PostgresService) DeleteProject(ctx context.Context, orgID, projectID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, projectID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
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
