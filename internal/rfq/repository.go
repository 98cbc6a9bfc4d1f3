package rfq

import (
	"context"
	"encoding/json"
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

const rfqColumns = `id, revision, version, number, title, description, project_id, status,
invited_supplier_ids, quotes, deadline, notes, awarded_supplier_id, awarded_quote_id,
created_by, created_at, modified_by, modified_at`

// Get returns one RFQ by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (RFQ, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+rfqColumns+` FROM rfqs WHERE id=$1`, id)
	doc, err := scanRFQ(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RFQ{}, shared.NotFoundf("RFQ %s not found", id)
		}
		return RFQ{}, err
	}
	return doc, nil
}

// Create inserts a new RFQ.
func (r *Repository) Create(ctx context.Context, doc RFQ) error {
	invited, quotes, err := marshalLists(doc)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO rfqs (`+rfqColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		doc.ID, doc.Revision, doc.Version, doc.Number, doc.Title, doc.Description, nullableUUID(doc.ProjectID), string(doc.Status),
		invited, quotes, doc.Deadline, doc.Notes, nullableUUID(doc.AwardedSupplierID), nullableUUID(doc.AwardedQuoteID),
		doc.CreatedBy, doc.CreatedAt, doc.ModifiedBy, doc.ModifiedAt)
	return err
}

// Update persists the RFQ guarded by the expected revision.
func (r *Repository) Update(ctx context.Context, doc RFQ, expectedRevision uuid.UUID) error {
	invited, quotes, err := marshalLists(doc)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE rfqs SET
revision=$2, version=$3, number=$4, title=$5, description=$6, project_id=$7, status=$8,
invited_supplier_ids=$9, quotes=$10, deadline=$11, notes=$12, awarded_supplier_id=$13, awarded_quote_id=$14,
modified_by=$15, modified_at=$16
WHERE id=$1 AND revision=$17`,
		doc.ID, doc.Revision, doc.Version, doc.Number, doc.Title, doc.Description, nullableUUID(doc.ProjectID), string(doc.Status),
		invited, quotes, doc.Deadline, doc.Notes, nullableUUID(doc.AwardedSupplierID), nullableUUID(doc.AwardedQuoteID),
		doc.ModifiedBy, doc.ModifiedAt, expectedRevision)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, doc.ID)
	}
	return nil
}

func (r *Repository) staleOrMissing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT true FROM rfqs WHERE id=$1`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.NotFoundf("RFQ %s not found", id)
		}
		return err
	}
	return shared.Conflictf("RFQ %s was modified concurrently", id)
}

func marshalLists(doc RFQ) (invited, quotes []byte, err error) {
	invited, err = json.Marshal(doc.InvitedSupplierIDs)
	if err != nil {
		return nil, nil, err
	}
	quotes, err = json.Marshal(doc.Quotes)
	if err != nil {
		return nil, nil, err
	}
	return invited, quotes, nil
}

func scanRFQ(row pgx.Row) (RFQ, error) {
	var doc RFQ
	var status string
	var invited, quotes []byte
	var projectID, awardedSupplierID, awardedQuoteID *uuid.UUID
	err := row.Scan(&doc.ID, &doc.Revision, &doc.Version, &doc.Number, &doc.Title, &doc.Description, &projectID, &status,
		&invited, &quotes, &doc.Deadline, &doc.Notes, &awardedSupplierID, &awardedQuoteID,
		&doc.CreatedBy, &doc.CreatedAt, &doc.ModifiedBy, &doc.ModifiedAt)
	if err != nil {
		return RFQ{}, err
	}
	doc.Status = Status(status)
	if projectID != nil {
		doc.ProjectID = *projectID
	}
	if awardedSupplierID != nil {
		doc.AwardedSupplierID = *awardedSupplierID
	}
	if awardedQuoteID != nil {
		doc.AwardedQuoteID = *awardedQuoteID
	}
	if len(invited) > 0 {
		if err := json.Unmarshal(invited, &doc.InvitedSupplierIDs); err != nil {
			return RFQ{}, err
		}
	}
	if len(quotes) > 0 {
		if err := json.Unmarshal(quotes, &doc.Quotes); err != nil {
			return RFQ{}, err
		}
	}
	return doc, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
