// Package rfq implements the request-for-quote workflow: draft, supplier
// fan-out, quote intake and the award that hands over to the contracts
// module.
package rfq

import (
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// RFQ lifecycle statuses.
type Status string

const (
	StatusDraft          Status = "DRAFT"
	StatusSent           Status = "SENT"
	StatusQuotesReceived Status = "QUOTES_RECEIVED"
	StatusAwarded        Status = "AWARDED"
	StatusCancelled      Status = "CANCELLED"
)

// Quote statuses. Every received quote flips to exactly one of Awarded or
// Rejected at award time.
type QuoteStatus string

const (
	QuoteReceived QuoteStatus = "RECEIVED"
	QuoteAwarded  QuoteStatus = "AWARDED"
	QuoteRejected QuoteStatus = "REJECTED"
)

// SupplierQuote is one supplier's bid on an RFQ. Quotes are append-only;
// only their status flips at award time.
type SupplierQuote struct {
	ID           uuid.UUID   `json:"id"`
	SupplierID   uuid.UUID   `json:"supplier_id"`
	QuotedPrice  float64     `json:"quoted_price"`
	DeliveryDays int         `json:"delivery_days"`
	ValidUntil   *time.Time  `json:"valid_until,omitempty"`
	Status       QuoteStatus `json:"status"`
	ReceivedAt   time.Time   `json:"received_at"`
}

// RFQ is a request-for-quote document.
type RFQ struct {
	shared.DocMeta
	Number             string
	Title              string
	Description        string
	ProjectID          uuid.UUID
	Status             Status
	InvitedSupplierIDs []uuid.UUID
	Quotes             []SupplierQuote
	Deadline           *time.Time
	Notes              string
	AwardedSupplierID  uuid.UUID
	AwardedQuoteID     uuid.UUID
}

// QuoteByID returns the quote with the given id.
func (r RFQ) QuoteByID(id uuid.UUID) (SupplierQuote, bool) {
	for _, q := range r.Quotes {
		if q.ID == id {
			return q, true
		}
	}
	return SupplierQuote{}, false
}
