package projects

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// CreateAnalysis creates a unit-price analysis. Codes are unique within
// an organization; a duplicate yields ErrCodeConflict.
func (s *PostgresService) CreateAnalysis(ctx context.Context, orgID, userID int64, req *AnalysisRequest) (*UnitPriceAnalysis, error) {
	a := &UnitPriceAnalysis{
		OrganizationID: orgID,
		Code:           strings.TrimSpace(req.Code),
		Description:    req.Description,
		Unit:           req.Unit,
		Components:     req.Components,
		CreatedBy:      userID,
	}
	a.TotalPrice = a.ComputeTotal()

	componentsJSON, err := json.Marshal(a.Components)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal components: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO unit_price_analyses (organization_id, code, description, unit, total_price, components, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, orgID, a.Code, a.Description, a.Unit, a.TotalPrice, componentsJSON, userID).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrCodeConflict
		}
		return nil, fmt.Errorf("failed to create analysis: %w", err)
	}

	return a, nil
}

// GetAnalysis retrieves an analysis within the organization
func (s *PostgresService) GetAnalysis(ctx context.Context, orgID, analysisID int64) (*UnitPriceAnalysis, error) {
	a := &UnitPriceAnalysis{}
	var componentsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, code, description, COALESCE(unit, ''), total_price, components, created_by, created_at, updated_at
		FROM unit_price_analyses
		WHERE id = $1 AND organization_id = $2
	`, analysisID, orgID).Scan(
		&a.ID, &a.OrganizationID, &a.Code, &a.Description, &a.Unit,
		&a.TotalPrice, &componentsJSON, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	if err := json.Unmarshal(componentsJSON, &a.Components); err != nil {
		return nil, fmt.Errorf("failed to unmarshal components: %w", err)
	}

	return a, nil
}

// ListAnalyses returns the organization's analyses ordered by code
func (s *PostgresService) ListAnalyses(ctx context.Context, orgID int64) ([]*UnitPriceAnalysis, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT id, organization_id, code, description, COALESCE(unit, ''), total_price, components, created_by, created_at, updated_at
		FROM unit_price_analyses
		WHERE organization_id = $1
		ORDER BY code
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var result []*UnitPriceAnalysis
	for rows.Next() {
		a := &UnitPriceAnalysis{}
		var componentsJSON []byte
		if err := rows.Scan(
			&a.ID, &a.OrganizationID, &a.Code, &a.Description, &a.Unit,
			&a.TotalPrice, &componentsJSON, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		if err := json.Unmarshal(componentsJSON, &a.Components); err != nil {
			return nil, fmt.Errorf("failed to unmarshal components: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}

	return result, nil
}

// UpdateAnalysis replaces an analysis's content and recomputes its total
func (s *PostgresService) UpdateAnalysis(ctx context.Context, orgID, analysisID int64, req *AnalysisRequest) (*UnitPriceAnalysis, error) {
	a := &UnitPriceAnalysis{
		ID:             analysisID,
		OrganizationID: orgID,
		Code:           strings.TrimSpace(req.Code),
		Description:    req.Description,
		Unit:           req.Unit,
		Components:     req.Components,
	}
	a.TotalPrice = a.ComputeTotal()

	componentsJSON, err := json.Marshal(a.Components)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal components: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		UPDATE unit_price_analyses
		SET code = $1, description = $2, unit = $3, total_price = $4, components = $5, updated_at = NOW()
		WHERE id = $6 AND organization_id = $7
		RETURNING created_by, created_at, updated_at
	`, a.Code, a.Description, a.Unit, a.TotalPrice, componentsJSON, analysisID, orgID).
		Scan(&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrCodeConflict
		}
		return nil, fmt.Errorf("failed to update analysis: %w", err)
	}

	return a, nil
}

// DeleteAnalysis removes an analysis
func (s *PostgresService) DeleteAnalysis(ctx context.Context, orgID, analysisID int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM unit_price_analyses WHERE id = $1 AND organization_id = $2", analysisID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
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
