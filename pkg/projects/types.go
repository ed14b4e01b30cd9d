package projects

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a project, budget, item, or analysis
	// does not exist within the requesting organization
	ErrNotFound = errors.New("not found")

	// ErrCodeConflict is returned when creating an analysis with a code
	// already used in the organization
	ErrCodeConflict = errors.New("analysis code already in use")
)

// ProjectStatus tracks the lifecycle of a project
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusOnHold   ProjectStatus = "on_hold"
	ProjectStatusFinished ProjectStatus = "finished"
)

// Valid reports whether the status is known
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusActive, ProjectStatusOnHold, ProjectStatusFinished:
		return true
	}
	return false
}

// Project is a construction project owned by one organization
type Project struct {
	ID             int64         `json:"id"`
	OrganizationID int64         `json:"organization_id"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	Status         ProjectStatus `json:"status"`
	CreatedBy      int64         `json:"created_by"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	DeletedAt      *time.Time    `json:"-"`
}

// Budget is a costed bill of quantities for a project
type Budget struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Total is quantity*unit_price summed over items, computed on read
	Total float64 `json:"total"`
}

// BudgetItem is one line of a budget
type BudgetItem struct {
	ID          int64     `json:"id"`
	BudgetID    int64     `json:"budget_id"`
	Description string    `json:"description"`
	Unit        string    `json:"unit,omitempty"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LineTotal is the item's contribution to the budget total
func (i *BudgetItem) LineTotal() float64 {
	return i.Quantity * i.UnitPrice
}

// AnalysisComponent is one input of a unit-price analysis (material,
// labor, or equipment share of producing one unit of work)
type AnalysisComponent struct {
	Description string  `json:"description"`
	Unit        string  `json:"unit,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// UnitPriceAnalysis decomposes the price of one unit of work into its
// components. Codes are unique within an organization.
type UnitPriceAnalysis struct {
	ID             int64               `json:"id"`
	OrganizationID int64               `json:"organization_id"`
	Code           string              `json:"code"`
	Description    string              `json:"description"`
	Unit           string              `json:"unit,omitempty"`
	TotalPrice     float64             `json:"total_price"`
	Components     []AnalysisComponent `json:"components"`
	CreatedBy      int64               `json:"created_by"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// ComputeTotal sums component quantity*unit_price
func (a *UnitPriceAnalysis) ComputeTotal() float64 {
	var total float64
	for _, c := range a.Components {
		total += c.Quantity * c.UnitPrice
	}
	return total
}

// CreateProjectRequest carries fields for creating a project
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateProjectRequest carries the mutable project fields
type UpdateProjectRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Status      *ProjectStatus `json:"status,omitempty"`
}

// CreateBudgetRequest carries fields for creating a budget
type CreateBudgetRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency,omitempty"`
}

// BudgetItemRequest carries fields for creating or updating a line item
type BudgetItemRequest struct {
	Description string  `json:"description"`
	Unit        string  `json:"unit,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Position    int     `json:"position"`
}

// AnalysisRequest carries fields for creating or updating an analysis
type AnalysisRequest struct {
	Code        string              `json:"code"`
	Description string              `json:"description"`
	Unit        string              `json:"unit,omitempty"`
	Components  []AnalysisComponent `json:"components"`
}
