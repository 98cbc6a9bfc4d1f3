// Package assignment manages subcontractor assignments: budget-checked
// creation, completion-driven status transitions and the one-shot rating
// that feeds the supplier trust ledger.
package assignment

import (
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// Assignment lifecycle statuses.
type Status string

const (
	StatusPlanned    Status = "PLANNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Budget statuses. Warning never blocks an assignment.
type BudgetStatus string

const (
	BudgetOnTrack BudgetStatus = "ON_TRACK"
	BudgetWarning BudgetStatus = "WARNING"
)

// Assignment links a supplier to a project. Rating fields are writable
// exactly once, after the assignment completed.
type Assignment struct {
	shared.DocMeta
	ProjectID            uuid.UUID
	SupplierID           uuid.UUID
	Description          string
	EstimatedCost        float64
	ActualCost           *float64
	Status               Status
	CompletionPercentage float64
	BudgetStatus         BudgetStatus

	QualityRating       *float64
	TimelinessRating    *float64
	CommunicationRating *float64
	PriceRating         *float64
	RatedBy             uuid.UUID
	RatedAt             *time.Time
}

// Rated reports whether the one-shot rating has been recorded.
func (a Assignment) Rated() bool {
	return a.RatedAt != nil
}
