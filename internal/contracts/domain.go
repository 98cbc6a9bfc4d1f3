package contracts

import (
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// Contract lifecycle statuses.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusSigned     Status = "signed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Supplier contract lifecycle statuses.
type SupplierContractStatus string

const (
	SCStatusDraft           SupplierContractStatus = "draft"
	SCStatusPendingApproval SupplierContractStatus = "pending_approval"
	SCStatusSentToSupplier  SupplierContractStatus = "sent_to_supplier"
	SCStatusSigned          SupplierContractStatus = "signed"
	SCStatusCompleted       SupplierContractStatus = "completed"
	SCStatusCancelled       SupplierContractStatus = "cancelled"
)

// LineItem is a priced contract position. TotalPrice is derived, never set
// by callers.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalPrice  float64 `json:"total_price"`
}

// Contract is the customer-facing contract document. Once signed (or
// finalized) the field set freezes except for the statutory allow-list.
type Contract struct {
	shared.DocMeta
	Number              string
	OfferID             uuid.UUID
	CustomerID          uuid.UUID
	ProjectID           uuid.UUID
	Status              Status
	LineItems           []LineItem
	Subtotal            float64
	DiscountPercent     float64
	DiscountAmount      float64
	TaxRate             float64
	TaxAmount           float64
	Total               float64
	Currency            string
	Finalized           bool
	SignedAt            *time.Time
	SignedBy            string
	Notes               string
	RenderedDocumentURL string
}

// PaymentMilestone statuses.
const (
	MilestoneOpen     = "open"
	MilestoneInvoiced = "invoiced"
	MilestonePaid     = "paid"
)

// PaymentMilestone is one entry of a supplier contract's payment schedule.
type PaymentMilestone struct {
	Description string  `json:"description"`
	Percentage  float64 `json:"percentage"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`
}

// SupplierContract is the purchasing-side contract with a supplier. High
// value contracts cannot leave draft/pending_approval without a management
// approver.
type SupplierContract struct {
	shared.DocMeta
	Number              string
	SupplierID          uuid.UUID
	ProjectID           uuid.UUID
	ContractValue       float64
	Currency            string
	Status              SupplierContractStatus
	ApprovedBy          uuid.UUID
	ApprovedAt          *time.Time
	SignedByUs          bool
	SignedBySupplier    bool
	SignedDate          *time.Time
	PaymentSchedule     []PaymentMilestone
	Notes               string
	RenderedDocumentURL string
}
