package assignment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const assignmentColumns = `id, revision, version, project_id, supplier_id, description, estimated_cost, actual_cost,
status, completion_percentage, budget_status,
quality_rating, timeliness_rating, communication_rating, price_rating, rated_by, rated_at,
created_by, created_at, modified_by, modified_at`

// Get returns one assignment by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Assignment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id=$1`, id)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, shared.NotFoundf("assignment %s not found", id)
		}
		return Assignment{}, err
	}
	return a, nil
}

// Create inserts a new assignment.
func (r *Repository) Create(ctx context.Context, a Assignment) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO assignments (`+assignmentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		a.ID, a.Revision, a.Version, a.ProjectID, a.SupplierID, a.Description, a.EstimatedCost, a.ActualCost,
		string(a.Status), a.CompletionPercentage, string(a.BudgetStatus),
		a.QualityRating, a.TimelinessRating, a.CommunicationRating, a.PriceRating, nullableUUID(a.RatedBy), a.RatedAt,
		a.CreatedBy, a.CreatedAt, a.ModifiedBy, a.ModifiedAt)
	return err
}

// Update persists the assignment guarded by the expected revision.
func (r *Repository) Update(ctx context.Context, a Assignment, expectedRevision uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE assignments SET
revision=$2, version=$3, project_id=$4, supplier_id=$5, description=$6, estimated_cost=$7, actual_cost=$8,
status=$9, completion_percentage=$10, budget_status=$11,
quality_rating=$12, timeliness_rating=$13, communication_rating=$14, price_rating=$15, rated_by=$16, rated_at=$17,
modified_by=$18, modified_at=$19
WHERE id=$1 AND revision=$20`,
		a.ID, a.Revision, a.Version, a.ProjectID, a.SupplierID, a.Description, a.EstimatedCost, a.ActualCost,
		string(a.Status), a.CompletionPercentage, string(a.BudgetStatus),
		a.QualityRating, a.TimelinessRating, a.CommunicationRating, a.PriceRating, nullableUUID(a.RatedBy), a.RatedAt,
		a.ModifiedBy, a.ModifiedAt, expectedRevision)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, a.ID)
	}
	return nil
}

func (r *Repository) staleOrMissing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT true FROM assignments WHERE id=$1`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.NotFoundf("assignment %s not found", id)
		}
		return err
	}
	return shared.Conflictf("assignment %s was modified concurrently", id)
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var a Assignment
	var status, budgetStatus string
	var ratedBy *uuid.UUID
	err := row.Scan(&a.ID, &a.Revision, &a.Version, &a.ProjectID, &a.SupplierID, &a.Description, &a.EstimatedCost, &a.ActualCost,
		&status, &a.CompletionPercentage, &budgetStatus,
		&a.QualityRating, &a.TimelinessRating, &a.CommunicationRating, &a.PriceRating, &ratedBy, &a.RatedAt,
		&a.CreatedBy, &a.CreatedAt, &a.ModifiedBy, &a.ModifiedAt)
	if err != nil {
		return Assignment{}, err
	}
	a.Status = Status(status)
	a.BudgetStatus = BudgetStatus(budgetStatus)
	if ratedBy != nil {
		a.RatedBy = *ratedBy
	}
	return a, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
