package suppliers

import (
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// Supplier lifecycle statuses.
type Status string

const (
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusActive          Status = "ACTIVE"
	StatusInactive        Status = "INACTIVE"
	StatusBlacklisted     Status = "BLACKLISTED"
	StatusRejected        Status = "REJECTED"
)

// Rating aggregates incremental means per dimension plus the review count.
type Rating struct {
	Overall       float64
	Quality       float64
	Reliability   float64
	Communication float64
	PriceValue    float64
	ReviewCount   int
	LastUpdated   time.Time
}

// RatingDims is one incoming review across the four scored dimensions.
type RatingDims struct {
	Quality       float64
	Reliability   float64
	Communication float64
	PriceValue    float64
}

// RatingEntry is one immutable row of the append-only ratings history.
type RatingEntry struct {
	ID         uuid.UUID
	SupplierID uuid.UUID
	Dims       RatingDims
	Overall    float64
	Feedback   string
	RatedBy    uuid.UUID
	RatedAt    time.Time
}

// Supplier domain model. Status, ActiveProjectCount and Rating are owned by
// this package; other modules mutate them only through the Service API.
type Supplier struct {
	shared.DocMeta
	Code               string
	Name               string
	Email              string
	Status             Status
	ActiveProjectCount int
	Rating             Rating

	ApprovedBy      uuid.UUID
	ApprovedAt      *time.Time
	RejectedBy      uuid.UUID
	RejectedAt      *time.Time
	RejectionReason string
	BlacklistedBy   uuid.UUID
	BlacklistedAt   *time.Time
	BlacklistReason string
}
