package suppliers

import (
	"context"
	"errors"
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

const supplierColumns = `id, revision, version, code, name, email, status, active_project_count,
rating_overall, rating_quality, rating_reliability, rating_communication, rating_price_value,
review_count, rating_updated_at,
approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
blacklisted_by, blacklisted_at, blacklist_reason,
created_by, created_at, modified_by, modified_at`

// Get returns one supplier by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Supplier, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id=$1`, id)
	sup, err := scanSupplier(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, shared.NotFoundf("supplier %s not found", id)
		}
		return Supplier{}, err
	}
	return sup, nil
}

// Create inserts a new supplier.
func (r *Repository) Create(ctx context.Context, s Supplier) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO suppliers (`+supplierColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)`,
		s.ID, s.Revision, s.Version, s.Code, s.Name, s.Email, string(s.Status), s.ActiveProjectCount,
		s.Rating.Overall, s.Rating.Quality, s.Rating.Reliability, s.Rating.Communication, s.Rating.PriceValue,
		s.Rating.ReviewCount, nullableTime(s.Rating.LastUpdated),
		nullableUUID(s.ApprovedBy), s.ApprovedAt, nullableUUID(s.RejectedBy), s.RejectedAt, s.RejectionReason,
		nullableUUID(s.BlacklistedBy), s.BlacklistedAt, s.BlacklistReason,
		s.CreatedBy, s.CreatedAt, s.ModifiedBy, s.ModifiedAt)
	return err
}

// Update persists the supplier guarded by the expected revision. A stale
// revision on an existing row yields a Conflict, never a silent overwrite.
func (r *Repository) Update(ctx context.Context, s Supplier, expectedRevision uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE suppliers SET
revision=$2, version=$3, code=$4, name=$5, email=$6, status=$7, active_project_count=$8,
rating_overall=$9, rating_quality=$10, rating_reliability=$11, rating_communication=$12, rating_price_value=$13,
review_count=$14, rating_updated_at=$15,
approved_by=$16, approved_at=$17, rejected_by=$18, rejected_at=$19, rejection_reason=$20,
blacklisted_by=$21, blacklisted_at=$22, blacklist_reason=$23,
modified_by=$24, modified_at=$25
WHERE id=$1 AND revision=$26`,
		s.ID, s.Revision, s.Version, s.Code, s.Name, s.Email, string(s.Status), s.ActiveProjectCount,
		s.Rating.Overall, s.Rating.Quality, s.Rating.Reliability, s.Rating.Communication, s.Rating.PriceValue,
		s.Rating.ReviewCount, nullableTime(s.Rating.LastUpdated),
		nullableUUID(s.ApprovedBy), s.ApprovedAt, nullableUUID(s.RejectedBy), s.RejectedAt, s.RejectionReason,
		nullableUUID(s.BlacklistedBy), s.BlacklistedAt, s.BlacklistReason,
		s.ModifiedBy, s.ModifiedAt, expectedRevision)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, s.ID)
	}
	return nil
}

// AppendRatingEntry inserts one immutable history row.
func (r *Repository) AppendRatingEntry(ctx context.Context, e RatingEntry) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO supplier_ratings
(id, supplier_id, quality, reliability, communication, price_value, overall, feedback, rated_by, rated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.SupplierID, e.Dims.Quality, e.Dims.Reliability, e.Dims.Communication, e.Dims.PriceValue,
		e.Overall, e.Feedback, e.RatedBy, e.RatedAt)
	return err
}

// ListRatingHistory returns the most recent history entries, newest first.
func (r *Repository) ListRatingHistory(ctx context.Context, supplierID uuid.UUID, limit int) ([]RatingEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT id, supplier_id, quality, reliability, communication, price_value, overall, feedback, rated_by, rated_at
FROM supplier_ratings WHERE supplier_id=$1 ORDER BY rated_at DESC LIMIT $2`, supplierID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []RatingEntry
	for rows.Next() {
		var e RatingEntry
		if err := rows.Scan(&e.ID, &e.SupplierID, &e.Dims.Quality, &e.Dims.Reliability, &e.Dims.Communication,
			&e.Dims.PriceValue, &e.Overall, &e.Feedback, &e.RatedBy, &e.RatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *Repository) staleOrMissing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT true FROM suppliers WHERE id=$1`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.NotFoundf("supplier %s not found", id)
		}
		return err
	}
	return shared.Conflictf("supplier %s was modified concurrently", id)
}

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	var status string
	var approvedBy, rejectedBy, blacklistedBy *uuid.UUID
	var ratingUpdated *time.Time
	err := row.Scan(&s.ID, &s.Revision, &s.Version, &s.Code, &s.Name, &s.Email, &status, &s.ActiveProjectCount,
		&s.Rating.Overall, &s.Rating.Quality, &s.Rating.Reliability, &s.Rating.Communication, &s.Rating.PriceValue,
		&s.Rating.ReviewCount, &ratingUpdated,
		&approvedBy, &s.ApprovedAt, &rejectedBy, &s.RejectedAt, &s.RejectionReason,
		&blacklistedBy, &s.BlacklistedAt, &s.BlacklistReason,
		&s.CreatedBy, &s.CreatedAt, &s.ModifiedBy, &s.ModifiedAt)
	if err != nil {
		return Supplier{}, err
	}
	s.Status = Status(status)
	if approvedBy != nil {
		s.ApprovedBy = *approvedBy
	}
	if rejectedBy != nil {
		s.RejectedBy = *rejectedBy
	}
	if blacklistedBy != nil {
		s.BlacklistedBy = *blacklistedBy
	}
	if ratingUpdated != nil {
		s.Rating.LastUpdated = *ratingUpdated
	}
	return s, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
