package projects

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateBudget creates a budget under a project. The project must belong
// to the organization.
func (s *PostgresService) CreateBudget(ctx context.Context, orgID, projectID, userID int64, req *CreateBudgetRequest) (*Budget, error) {
	if _, err := s.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	b := &Budget{
		ProjectID: projectID,
		Name:      req.Name,
		Currency:  currency,
		CreatedBy: userID,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO budgets (project_id, name, currency, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, projectID, b.Name, currency, userID).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create budget: %w", err)
	}

	return b, nil
}

// GetBudget retrieves a budget with its computed total. The join through
// projects keeps the read inside the organization boundary.
func (s *PostgresService) GetBudget(ctx context.Context, orgID, budgetID int64) (*Budget, error) {
	b := &Budget{}
	err := s.db.QueryRowContext(ctx, `
		SELECT b.id, b.project_id, b.name, b.currency, b.created_by, b.created_at, b.updated_at,
		       COALESCE((SELECT SUM(quantity * unit_price) FROM budget_items WHERE budget_id = b.id), 0)
		FROM budgets b
		JOIN projects p ON p.id = b.project_id
		WHERE b.id = $1 AND p.organization_id = $2 AND p.deleted_at IS NULL
	`, budgetID, orgID).Scan(
		&b.ID, &b.ProjectID, &b.Name, &b.Currency, &b.CreatedBy,
		&b.CreatedAt, &b.UpdatedAt, &b.Total,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}

	return b, nil
}

// ListBudgets returns a project's budgets with computed totals
func (s *PostgresService) ListBudgets(ctx context.Context, orgID, projectID int64) ([]*Budget, error) {
	if _, err := s.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}

	rows, err := s.reader().QueryContext(ctx, `
		SELECT b.id, b.project_id, b.name, b.currency, b.created_by, b.created_at, b.updated_at,
		       COALESCE((SELECT SUM(quantity * unit_price) FROM budget_items WHERE budget_id = b.id), 0)
		FROM budgets b
		WHERE b.project_id = $1
		ORDER BY b.created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	var result []*Budget
	for rows.Next() {
		b := &Budget{}
		if err := rows.Scan(
			&b.ID, &b.ProjectID, &b.Name, &b.Currency, &b.CreatedBy,
			&b.CreatedAt, &b.UpdatedAt, &b.Total,
		); err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate budgets: %w", err)
	}

	return result, nil
}

// DeleteBudget removes a budget and its items
func (s *PostgresService) DeleteBudget(ctx context.Context, orgID, budgetID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM budgets b
		USING projects p
		WHERE b.id = $1 AND b.project_id = p.id AND p.organization_id = $2
	`, budgetID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete budget: %w", err)
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

// AddBudgetItem appends a line item to a budget
func (s *PostgresService) AddBudgetItem(ctx context.Context, orgID, budgetID int64, req *BudgetItemRequest) (*BudgetItem, error) {
	if _, err := s.GetBudget(ctx, orgID, budgetID); err != nil {
		return nil, err
	}

	item := &BudgetItem{
		BudgetID:    budgetID,
		Description: req.Description,
		Unit:        req.Unit,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		Position:    req.Position,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO budget_items (budget_id, description, unit, quantity, unit_price, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, budgetID, item.Description, item.Unit, item.Quantity, item.UnitPrice, item.Position).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add budget item: %w", err)
	}

	return item, nil
}

// ListBudgetItems returns a budget's items in position order
func (s *PostgresService) ListBudgetItems(ctx context.Context, orgID, budgetID int64) ([]*BudgetItem, error) {
	if _, err := s.GetBudget(ctx, orgID, budgetID); err != nil {
		return nil, err
	}

	rows, err := s.reader().QueryContext(ctx, `
		SELECT id, budget_id, description, COALESCE(unit, ''), quantity, unit_price, position, created_at, updated_at
		FROM budget_items
		WHERE budget_id = $1
		ORDER BY position, id
	`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget items: %w", err)
	}
	defer rows.Close()

	var items []*BudgetItem
	for rows.Next() {
		item := &BudgetItem{}
		if err := rows.Scan(
			&item.ID, &item.BudgetID, &item.Description, &item.Unit,
			&item.Quantity, &item.UnitPrice, &item.Position,
			&item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan budget item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate budget items: %w", err)
	}

	return items, nil
}

// UpdateBudgetItem replaces a line item's fields
func (s *PostgresService) UpdateBudgetItem(ctx context.Context, orgID, budgetID, itemID int64, req *BudgetItemRequest) (*BudgetItem, error) {
	if _, err := s.GetBudget(ctx, orgID, budgetID); err != nil {
		return nil, err
	}

	item := &BudgetItem{
		ID:          itemID,
		BudgetID:    budgetID,
		Description: req.Description,
		Unit:        req.Unit,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		Position:    req.Position,
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE budget_items
		SET description = $1, unit = $2, quantity = $3, unit_price = $4, position = $5, updated_at = NOW()
		WHERE id = $6 AND budget_id = $7
		RETURNING created_at, updated_at
	`, item.Description, item.Unit, item.Quantity, item.UnitPrice, item.Position, itemID, budgetID).
		Scan(&item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update budget item: %w", err)
	}

	return item, nil
}

// DeleteBudgetItem removes a line item
func (s *PostgresService) DeleteBudgetItem(ctx context.Context, orgID, budgetID, itemID int64) error {
	if _, err := s.GetBudget(ctx, orgID, budgetID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM budget_items WHERE id = $1 AND budget_id = $2", itemID, budgetID)
	if err != nil {
		return fmt.Errorf("failed to delete budget item: %w", err)
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
