// Package masterdata exposes read-only directories for the entities the
// lifecycle engines look up but never own: projects and offers.
package masterdata

import (
	"time"

	"github.com/google/uuid"
)

// Project carries the budget figures used by assignment checks.
type Project struct {
	ID              uuid.UUID
	Name            string
	Budget          float64
	ActualTotalCost float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RemainingBudget returns budget minus actual cost to date.
func (p Project) RemainingBudget() float64 {
	return p.Budget - p.ActualTotalCost
}

// Offer statuses relevant to contract creation.
const (
	OfferStatusDraft    = "draft"
	OfferStatusSent     = "sent"
	OfferStatusAccepted = "accepted"
	OfferStatusRejected = "rejected"
)

// OfferLineItem is a single priced position on an offer.
type OfferLineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalPrice  float64 `json:"total_price"`
}

// Offer is the sales-side document an accepted contract is created from.
type Offer struct {
	ID              uuid.UUID
	Number          string
	CustomerID      uuid.UUID
	Status          string
	LineItems       []OfferLineItem
	Subtotal        float64
	DiscountPercent float64
	DiscountAmount  float64
	TaxRate         float64
	TaxAmount       float64
	Total           float64
	Currency        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
