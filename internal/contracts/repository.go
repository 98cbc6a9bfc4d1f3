package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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

const contractColumns = `id, revision, version, number, offer_id, customer_id, project_id, status,
line_items, subtotal, discount_percent, discount_amount, tax_rate, tax_amount, total, currency,
finalized, signed_at, signed_by, notes, rendered_document_url,
created_by, created_at, modified_by, modified_at`

// GetContract returns one contract by id.
func (r *Repository) GetContract(ctx context.Context, id uuid.UUID) (Contract, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id=$1`, id)
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, shared.NotFoundf("contract %s not found", id)
		}
		return Contract{}, err
	}
	return c, nil
}

// FindContractByOffer returns the contract linked to an offer, if any.
func (r *Repository) FindContractByOffer(ctx context.Context, offerID uuid.UUID) (Contract, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE offer_id=$1`, offerID)
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, false, nil
		}
		return Contract{}, false, err
	}
	return c, true, nil
}

// CreateContract inserts a new contract.
func (r *Repository) CreateContract(ctx context.Context, c Contract) error {
	items, err := json.Marshal(c.LineItems)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO contracts (`+contractColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`,
		c.ID, c.Revision, c.Version, c.Number, nullableUUID(c.OfferID), nullableUUID(c.CustomerID), nullableUUID(c.ProjectID), string(c.Status),
		items, c.Subtotal, c.DiscountPercent, c.DiscountAmount, c.TaxRate, c.TaxAmount, c.Total, c.Currency,
		c.Finalized, c.SignedAt, c.SignedBy, c.Notes, c.RenderedDocumentURL,
		c.CreatedBy, c.CreatedAt, c.ModifiedBy, c.ModifiedAt)
	return err
}

// UpdateContract persists the contract guarded by the expected revision.
func (r *Repository) UpdateContract(ctx context.Context, c Contract, expectedRevision uuid.UUID) error {
	items, err := json.Marshal(c.LineItems)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE contracts SET
revision=$2, version=$3, number=$4, offer_id=$5, customer_id=$6, project_id=$7, status=$8,
line_items=$9, subtotal=$10, discount_percent=$11, discount_amount=$12, tax_rate=$13, tax_amount=$14, total=$15, currency=$16,
finalized=$17, signed_at=$18, signed_by=$19, notes=$20, rendered_document_url=$21,
modified_by=$22, modified_at=$23
WHERE id=$1 AND revision=$24`,
		c.ID, c.Revision, c.Version, c.Number, nullableUUID(c.OfferID), nullableUUID(c.CustomerID), nullableUUID(c.ProjectID), string(c.Status),
		items, c.Subtotal, c.DiscountPercent, c.DiscountAmount, c.TaxRate, c.TaxAmount, c.Total, c.Currency,
		c.Finalized, c.SignedAt, c.SignedBy, c.Notes, c.RenderedDocumentURL,
		c.ModifiedBy, c.ModifiedAt, expectedRevision)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, "contracts", "contract", c.ID)
	}
	return nil
}

// DeleteContract removes a draft contract guarded by the expected revision.
func (r *Repository) DeleteContract(ctx context.Context, id uuid.UUID, expectedRevision uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM contracts WHERE id=$1 AND revision=$2`, id, expectedRevision)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, "contracts", "contract", id)
	}
	return nil
}

const supplierContractColumns = `id, revision, version, number, supplier_id, project_id, contract_value, currency, status,
approved_by, approved_at, signed_by_us, signed_by_supplier, signed_date, payment_schedule, notes, rendered_document_url,
created_by, created_at, modified_by, modified_at`

// GetSupplierContract returns one supplier contract by id.
func (r *Repository) GetSupplierContract(ctx context.Context, id uuid.UUID) (SupplierContract, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+supplierContractColumns+` FROM supplier_contracts WHERE id=$1`, id)
	sc, err := scanSupplierContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SupplierContract{}, shared.NotFoundf("supplier contract %s not found", id)
		}
		return SupplierContract{}, err
	}
	return sc, nil
}

// CreateSupplierContract inserts a new supplier contract.
func (r *Repository) CreateSupplierContract(ctx context.Context, sc SupplierContract) error {
	schedule, err := json.Marshal(sc.PaymentSchedule)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO supplier_contracts (`+supplierContractColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		sc.ID, sc.Revision, sc.Version, sc.Number, sc.SupplierID, nullableUUID(sc.ProjectID), sc.ContractValue, sc.Currency, string(sc.Status),
		nullableUUID(sc.ApprovedBy), sc.ApprovedAt, sc.SignedByUs, sc.SignedBySupplier, sc.SignedDate, schedule, sc.Notes, sc.RenderedDocumentURL,
		sc.CreatedBy, sc.CreatedAt, sc.ModifiedBy, sc.ModifiedAt)
	return err
}

// UpdateSupplierContract persists the supplier contract guarded by the
// expected revision.
func (r *Repository) UpdateSupplierContract(ctx context.Context, sc SupplierContract, expectedRevision uuid.UUID) error {
	schedule, err := json.Marshal(sc.PaymentSchedule)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE supplier_contracts SET
revision=$2, version=$3, number=$4, supplier_id=$5, project_id=$6, contract_value=$7, currency=$8, status=$9,
approved_by=$10, approved_at=$11, signed_by_us=$12, signed_by_supplier=$13, signed_date=$14, payment_schedule=$15, notes=$16, rendered_document_url=$17,
modified_by=$18, modified_at=$19
WHERE id=$1 AND revision=$20`,
		sc.ID, sc.Revision, sc.Version, sc.Number, sc.SupplierID, nullableUUID(sc.ProjectID), sc.ContractValue, sc.Currency, string(sc.Status),
		nullableUUID(sc.ApprovedBy), sc.ApprovedAt, sc.SignedByUs, sc.SignedBySupplier, sc.SignedDate, schedule, sc.Notes, sc.RenderedDocumentURL,
		sc.ModifiedBy, sc.ModifiedAt, expectedRevision)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, "supplier_contracts", "supplier contract", sc.ID)
	}
	return nil
}

// StoreDocument stores rendered PDF bytes and returns a retrieval URL.
func (r *Repository) StoreDocument(ctx context.Context, entity string, id uuid.UUID, pdf []byte) (string, error) {
	docID := uuid.New()
	_, err := r.pool.Exec(ctx, `INSERT INTO rendered_documents (id, entity, entity_id, content, created_at)
VALUES ($1,$2,$3,$4,$5)`, docID, entity, id, pdf, time.Now())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/documents/%s", docID), nil
}

func (r *Repository) staleOrMissing(ctx context.Context, table, label string, id uuid.UUID) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT true FROM `+table+` WHERE id=$1`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.NotFoundf("%s %s not found", label, id)
		}
		return err
	}
	return shared.Conflictf("%s %s was modified concurrently", label, id)
}

func scanContract(row pgx.Row) (Contract, error) {
	var c Contract
	var status string
	var items []byte
	var offerID, customerID, projectID *uuid.UUID
	err := row.Scan(&c.ID, &c.Revision, &c.Version, &c.Number, &offerID, &customerID, &projectID, &status,
		&items, &c.Subtotal, &c.DiscountPercent, &c.DiscountAmount, &c.TaxRate, &c.TaxAmount, &c.Total, &c.Currency,
		&c.Finalized, &c.SignedAt, &c.SignedBy, &c.Notes, &c.RenderedDocumentURL,
		&c.CreatedBy, &c.CreatedAt, &c.ModifiedBy, &c.ModifiedAt)
	if err != nil {
		return Contract{}, err
	}
	c.Status = Status(status)
	if offerID != nil {
		c.OfferID = *offerID
	}
	if customerID != nil {
		c.CustomerID = *customerID
	}
	if projectID != nil {
		c.ProjectID = *projectID
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &c.LineItems); err != nil {
			return Contract{}, err
		}
	}
	return c, nil
}

func scanSupplierContract(row pgx.Row) (SupplierContract, error) {
	var sc SupplierContract
	var status string
	var schedule []byte
	var projectID, approvedBy *uuid.UUID
	err := row.Scan(&sc.ID, &sc.Revision, &sc.Version, &sc.Number, &sc.SupplierID, &projectID, &sc.ContractValue, &sc.Currency, &status,
		&approvedBy, &sc.ApprovedAt, &sc.SignedByUs, &sc.SignedBySupplier, &sc.SignedDate, &schedule, &sc.Notes, &sc.RenderedDocumentURL,
		&sc.CreatedBy, &sc.CreatedAt, &sc.ModifiedBy, &sc.ModifiedAt)
	if err != nil {
		return SupplierContract{}, err
	}
	sc.Status = SupplierContractStatus(status)
	if projectID != nil {
		sc.ProjectID = *projectID
	}
	if approvedBy != nil {
		sc.ApprovedBy = *approvedBy
	}
	if len(schedule) > 0 {
		if err := json.Unmarshal(schedule, &sc.PaymentSchedule); err != nil {
			return SupplierContract{}, err
		}
	}
	return sc, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
