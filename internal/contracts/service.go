package contracts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-erp/internal/masterdata"
	"github.com/vantage-erp/vantage-erp/internal/notify"
	"github.com/vantage-erp/vantage-erp/internal/policy"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// DefaultApprovalThreshold is the contract value at or above which a
// management approver is required.
const DefaultApprovalThreshold = 50_000.0

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	GetContract(ctx context.Context, id uuid.UUID) (Contract, error)
	FindContractByOffer(ctx context.Context, offerID uuid.UUID) (Contract, bool, error)
	CreateContract(ctx context.Context, c Contract) error
	UpdateContract(ctx context.Context, c Contract, expectedRevision uuid.UUID) error
	DeleteContract(ctx context.Context, id uuid.UUID, expectedRevision uuid.UUID) error
	GetSupplierContract(ctx context.Context, id uuid.UUID) (SupplierContract, error)
	CreateSupplierContract(ctx context.Context, sc SupplierContract) error
	UpdateSupplierContract(ctx context.Context, sc SupplierContract, expectedRevision uuid.UUID) error
	StoreDocument(ctx context.Context, entity string, id uuid.UUID, pdf []byte) (string, error)
}

// OfferDirectory is the read-only lookup for source offers.
type OfferDirectory interface {
	GetOffer(ctx context.Context, id uuid.UUID) (masterdata.Offer, error)
}

// Renderer turns HTML into PDF bytes.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics counts signed contracts for dashboards.
type Metrics interface {
	CountContractSigned()
}

// Service owns the Contract and SupplierContract state machines.
type Service struct {
	repo              RepositoryPort
	offers            OfferDirectory
	renderer          Renderer
	notifier          notify.Notifier
	audit             AuditPort
	approvals         *shared.ApprovalRecorder
	metrics           Metrics
	logger            *slog.Logger
	approvalThreshold float64
}

// SetMetrics attaches an optional metrics sink.
func (s *Service) SetMetrics(m Metrics) {
	s.metrics = m
}

// NewService constructs the contract service.
func NewService(repo RepositoryPort, offers OfferDirectory, renderer Renderer, notifier notify.Notifier, audit AuditPort, approvals *shared.ApprovalRecorder, logger *slog.Logger, approvalThreshold float64) *Service {
	if approvalThreshold <= 0 {
		approvalThreshold = DefaultApprovalThreshold
	}
	return &Service{repo: repo, offers: offers, renderer: renderer, notifier: notifier, audit: audit, approvals: approvals, logger: logger, approvalThreshold: approvalThreshold}
}

// LineItemInput is a caller-supplied contract position.
type LineItemInput struct {
	Description string
	Quantity    float64
	UnitPrice   float64
}

// CreateInput describes a manually created contract.
type CreateInput struct {
	Number          string
	CustomerID      uuid.UUID
	ProjectID       uuid.UUID
	LineItems       []LineItemInput
	DiscountPercent float64
	TaxRate         float64
	Currency        string
	Notes           string
}

// Create computes the financial figures from the line items and persists a
// draft contract.
func (s *Service) Create(ctx context.Context, input CreateInput, actor shared.Identity) (Contract, error) {
	if len(input.LineItems) == 0 {
		return Contract{}, &shared.Error{Kind: shared.KindBadRequest, Msg: "contract requires at least one line item", Fields: []string{"lineItems"}}
	}
	items := make([]LineItem, len(input.LineItems))
	for i, in := range input.LineItems {
		if in.Quantity <= 0 || in.UnitPrice < 0 {
			return Contract{}, &shared.Error{Kind: shared.KindBadRequest, Msg: "line items require positive quantity and non-negative unit price", Fields: []string{"lineItems"}}
		}
		items[i] = LineItem{Description: in.Description, Quantity: in.Quantity, UnitPrice: in.UnitPrice}
	}
	totals := ComputeTotals(items, input.DiscountPercent, input.TaxRate)
	now := time.Now()
	c := Contract{
		DocMeta:         shared.NewDocMeta(actor.ActorID, now),
		Number:          input.Number,
		CustomerID:      input.CustomerID,
		ProjectID:       input.ProjectID,
		Status:          StatusDraft,
		LineItems:       totals.LineItems,
		Subtotal:        totals.Subtotal,
		DiscountPercent: input.DiscountPercent,
		DiscountAmount:  totals.DiscountAmount,
		TaxRate:         input.TaxRate,
		TaxAmount:       totals.TaxAmount,
		Total:           totals.Total,
		Currency:        defaultString(input.Currency, "EUR"),
		Notes:           input.Notes,
	}
	if c.Number == "" {
		c.Number = generateNumber("CT")
	}
	if err := s.repo.CreateContract(ctx, c); err != nil {
		return Contract{}, err
	}
	s.recordAudit(ctx, actor, "CONTRACT_CREATE", "contract", c.ID, map[string]any{"number": c.Number, "total": c.Total})
	return c, nil
}

// CreateFromOffer copies line items and financial figures verbatim from an
// accepted offer. An offer can back at most one contract; a second call
// yields a Conflict pointing at the existing contract.
func (s *Service) CreateFromOffer(ctx context.Context, offerID uuid.UUID, actor shared.Identity) (Contract, error) {
	offer, err := s.offers.GetOffer(ctx, offerID)
	if err != nil {
		return Contract{}, err
	}
	if offer.Status != masterdata.OfferStatusAccepted {
		return Contract{}, &shared.Error{
			Kind:    shared.KindBadRequest,
			Msg:     "offer must be accepted before a contract can be created",
			Current: offer.Status,
			Allowed: []string{masterdata.OfferStatusAccepted},
		}
	}
	existing, found, err := s.repo.FindContractByOffer(ctx, offerID)
	if err != nil {
		return Contract{}, err
	}
	if found {
		return Contract{}, &shared.Error{
			Kind:  shared.KindConflict,
			Msg:   fmt.Sprintf("offer %s is already linked to contract %s", offer.Number, existing.Number),
			RefID: existing.ID.String(),
		}
	}
	items := make([]LineItem, len(offer.LineItems))
	for i, li := range offer.LineItems {
		items[i] = LineItem{Description: li.Description, Quantity: li.Quantity, UnitPrice: li.UnitPrice, TotalPrice: li.TotalPrice}
	}
	now := time.Now()
	c := Contract{
		DocMeta:         shared.NewDocMeta(actor.ActorID, now),
		Number:          generateNumber("CT"),
		OfferID:         offer.ID,
		CustomerID:      offer.CustomerID,
		Status:          StatusDraft,
		LineItems:       items,
		Subtotal:        offer.Subtotal,
		DiscountPercent: offer.DiscountPercent,
		DiscountAmount:  offer.DiscountAmount,
		TaxRate:         offer.TaxRate,
		TaxAmount:       offer.TaxAmount,
		Total:           offer.Total,
		Currency:        defaultString(offer.Currency, "EUR"),
	}
	if err := s.repo.CreateContract(ctx, c); err != nil {
		return Contract{}, err
	}
	s.recordAudit(ctx, actor, "CONTRACT_CREATE_FROM_OFFER", "contract", c.ID, map[string]any{"number": c.Number, "offer": offer.Number})
	return c, nil
}

// Get returns one contract.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Contract, error) {
	return s.repo.GetContract(ctx, id)
}

// UpdateInput is a sparse patch; nil pointers leave the field untouched.
type UpdateInput struct {
	Number              *string
	CustomerID          *uuid.UUID
	ProjectID           *uuid.UUID
	Status              *Status
	SignedBy            *string
	Notes               *string
	RenderedDocumentURL *string
	LineItems           []LineItemInput
	DiscountPercent     *float64
	TaxRate             *float64
	Currency            *string
}

func (p UpdateInput) fields() []string {
	var out []string
	add := func(cond bool, name string) {
		if cond {
			out = append(out, name)
		}
	}
	add(p.Number != nil, "number")
	add(p.CustomerID != nil, "customerId")
	add(p.ProjectID != nil, "projectId")
	add(p.Status != nil, "status")
	add(p.SignedBy != nil, "signedBy")
	add(p.Notes != nil, "notes")
	add(p.RenderedDocumentURL != nil, "renderedDocumentUrl")
	add(p.LineItems != nil, "lineItems")
	add(p.DiscountPercent != nil, "discountPercent")
	add(p.TaxRate != nil, "taxRate")
	add(p.Currency != nil, "currency")
	return out
}

// Update applies a patch under the retention rules. Signing is a two-step
// commit: the status/signature write is persisted first, then the contract
// is re-marked immutable with a second write.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch UpdateInput, actor shared.Identity) (Contract, error) {
	c, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return Contract{}, err
	}

	if policy.IsImmutable(policy.DocContract, string(c.Status), c.Finalized) {
		var offending []string
		for _, f := range patch.fields() {
			if !policy.IsFieldAllowedWhileImmutable(policy.DocContract, f) {
				offending = append(offending, f)
			}
		}
		if len(offending) > 0 {
			return Contract{}, &shared.Error{
				Kind:    shared.KindForbidden,
				Msg:     "contract is immutable; only the retention allow-list may change",
				Fields:  offending,
				Allowed: policy.AllowedFieldsWhileImmutable(policy.DocContract),
			}
		}
	}

	signing := false
	if patch.Status != nil && *patch.Status != c.Status {
		if !policy.IsTransitionAllowed(policy.DocContract, string(c.Status), string(*patch.Status)) {
			return Contract{}, &shared.Error{
				Kind:    shared.KindBadRequest,
				Msg:     fmt.Sprintf("contract cannot move from %s to %s", c.Status, *patch.Status),
				Current: string(c.Status),
				Allowed: policy.AllowedTargets(policy.DocContract, string(c.Status)),
			}
		}
		if *patch.Status == StatusSigned {
			if patch.SignedBy == nil || strings.TrimSpace(*patch.SignedBy) == "" {
				return Contract{}, &shared.Error{Kind: shared.KindBadRequest, Msg: "signedBy is required when signing a contract", Fields: []string{"signedBy"}}
			}
			signing = true
		}
	}

	expected := c.Revision
	now := time.Now()
	applyContractPatch(&c, patch)
	if signing {
		c.SignedAt = &now
		c.SignedBy = *patch.SignedBy
	}
	if patch.LineItems != nil || patch.DiscountPercent != nil || patch.TaxRate != nil {
		totals := ComputeTotals(c.LineItems, c.DiscountPercent, c.TaxRate)
		c.LineItems = totals.LineItems
		c.Subtotal = totals.Subtotal
		c.DiscountAmount = totals.DiscountAmount
		c.TaxAmount = totals.TaxAmount
		c.Total = totals.Total
	}
	c.Touch(actor.ActorID, now)
	if err := s.repo.UpdateContract(ctx, c, expected); err != nil {
		return Contract{}, err
	}
	s.recordAudit(ctx, actor, "CONTRACT_UPDATE", "contract", c.ID, map[string]any{"fields": patch.fields()})

	if signing {
		expected = c.Revision
		c.Finalized = true
		c.Touch(actor.ActorID, time.Now())
		if err := s.repo.UpdateContract(ctx, c, expected); err != nil {
			return Contract{}, err
		}
		s.recordAudit(ctx, actor, "CONTRACT_FINALIZE", "contract", c.ID, map[string]any{"signed_by": c.SignedBy})
		if s.metrics != nil {
			s.metrics.CountContractSigned()
		}
	}
	return c, nil
}

// Delete removes a contract. Draft is the only deletable state; everything
// later is under statutory retention.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor shared.Identity) error {
	c, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != StatusDraft {
		return &shared.Error{
			Kind:    shared.KindForbidden,
			Msg:     "only draft contracts can be deleted",
			Current: string(c.Status),
			Allowed: []string{string(StatusDraft)},
		}
	}
	if err := s.repo.DeleteContract(ctx, id, c.Revision); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "CONTRACT_DELETE", "contract", c.ID, map[string]any{"number": c.Number})
	return nil
}

// GenerateDocument renders the contract to PDF, stores it, and records the
// document URL on the contract.
func (s *Service) GenerateDocument(ctx context.Context, id uuid.UUID, actor shared.Identity) ([]byte, error) {
	c, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	pdf, err := s.renderer.RenderHTML(ctx, contractHTML(c))
	if err != nil {
		return nil, fmt.Errorf("contracts: render document: %w", err)
	}
	url, err := s.repo.StoreDocument(ctx, "contract", c.ID, pdf)
	if err != nil {
		return nil, err
	}
	expected := c.Revision
	c.RenderedDocumentURL = url
	c.Touch(actor.ActorID, time.Now())
	if err := s.repo.UpdateContract(ctx, c, expected); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "CONTRACT_RENDER", "contract", c.ID, map[string]any{"url": url})
	return pdf, nil
}

// SendDocument renders the contract and mails it to the recipient.
func (s *Service) SendDocument(ctx context.Context, id uuid.UUID, recipient string, actor shared.Identity) error {
	c, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(recipient) == "" {
		return &shared.Error{Kind: shared.KindBadRequest, Msg: "recipient is required", Fields: []string{"recipient"}}
	}
	pdf, err := s.renderer.RenderHTML(ctx, contractHTML(c))
	if err != nil {
		return fmt.Errorf("contracts: render document: %w", err)
	}
	msg := notify.Message{
		To:       recipient,
		Subject:  fmt.Sprintf("Contract %s", c.Number),
		TextBody: fmt.Sprintf("Please find attached contract %s over %s.", c.Number, formatAmount(c.Total, c.Currency)),
		Attachments: []notify.Attachment{
			{Filename: fmt.Sprintf("contract-%s.pdf", c.Number), MIMEType: "application/pdf", Content: pdf},
		},
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "CONTRACT_SEND", "contract", c.ID, map[string]any{"recipient": recipient})
	return nil
}

func applyContractPatch(c *Contract, p UpdateInput) {
	if p.Number != nil {
		c.Number = *p.Number
	}
	if p.CustomerID != nil {
		c.CustomerID = *p.CustomerID
	}
	if p.ProjectID != nil {
		c.ProjectID = *p.ProjectID
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	if p.RenderedDocumentURL != nil {
		c.RenderedDocumentURL = *p.RenderedDocumentURL
	}
	if p.LineItems != nil {
		items := make([]LineItem, len(p.LineItems))
		for i, in := range p.LineItems {
			items[i] = LineItem{Description: in.Description, Quantity: in.Quantity, UnitPrice: in.UnitPrice}
		}
		c.LineItems = items
	}
	if p.DiscountPercent != nil {
		c.DiscountPercent = *p.DiscountPercent
	}
	if p.TaxRate != nil {
		c.TaxRate = *p.TaxRate
	}
	if p.Currency != nil {
		c.Currency = *p.Currency
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Identity, action, entity string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ActorID, Action: action, Entity: entity, EntityID: id.String(), Meta: meta})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
