package masterdata

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// Repository provides PostgreSQL backed read access.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetProject returns a project by id.
func (r *Repository) GetProject(ctx context.Context, id uuid.UUID) (Project, error) {
	var p Project
	err := r.pool.QueryRow(ctx, `SELECT id, name, budget, actual_total_cost, created_at, updated_at
FROM projects WHERE id=$1`, id).Scan(&p.ID, &p.Name, &p.Budget, &p.ActualTotalCost, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, shared.NotFoundf("project %s not found", id)
		}
		return Project{}, err
	}
	return p, nil
}

// GetOffer returns an offer with its line items by id.
func (r *Repository) GetOffer(ctx context.Context, id uuid.UUID) (Offer, error) {
	var o Offer
	var lineItems []byte
	err := r.pool.QueryRow(ctx, `SELECT id, number, customer_id, status, line_items, subtotal,
discount_percent, discount_amount, tax_rate, tax_amount, total, currency, created_at, updated_at
FROM offers WHERE id=$1`, id).Scan(&o.ID, &o.Number, &o.CustomerID, &o.Status, &lineItems, &o.Subtotal,
		&o.DiscountPercent, &o.DiscountAmount, &o.TaxRate, &o.TaxAmount, &o.Total, &o.Currency, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, shared.NotFoundf("offer %s not found", id)
		}
		return Offer{}, err
	}
	if len(lineItems) > 0 {
		if err := json.Unmarshal(lineItems, &o.LineItems); err != nil {
			return Offer{}, err
		}
	}
	return o, nil
}
