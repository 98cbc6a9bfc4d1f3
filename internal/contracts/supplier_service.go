package contracts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-erp/internal/notify"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// SupplierContractInput describes a new supplier contract.
type SupplierContractInput struct {
	Number          string
	SupplierID      uuid.UUID
	ProjectID       uuid.UUID
	ContractValue   float64
	Currency        string
	PaymentSchedule []PaymentMilestone
	Notes           string
}

// CreateSupplierContract persists a draft supplier contract. Milestone
// amounts are derived from their percentages of the contract value.
func (s *Service) CreateSupplierContract(ctx context.Context, input SupplierContractInput, actor shared.Identity) (SupplierContract, error) {
	if input.SupplierID == uuid.Nil {
		return SupplierContract{}, &shared.Error{Kind: shared.KindBadRequest, Msg: "supplierId is required", Fields: []string{"supplierId"}}
	}
	if input.ContractValue <= 0 {
		return SupplierContract{}, &shared.Error{Kind: shared.KindBadRequest, Msg: "contract value must be positive", Fields: []string{"contractValue"}}
	}
	var pctSum float64
	for _, m := range input.PaymentSchedule {
		pctSum += m.Percentage
	}
	if len(input.PaymentSchedule) > 0 && round2(pctSum) != 100 {
		return SupplierContract{}, &shared.Error{Kind: shared.KindBadRequest, Msg: "payment schedule percentages must sum to 100", Fields: []string{"paymentSchedule"}}
	}
	now := time.Now()
	sc := SupplierContract{
		DocMeta:         shared.NewDocMeta(actor.ActorID, now),
		Number:          input.Number,
		SupplierID:      input.SupplierID,
		ProjectID:       input.ProjectID,
		ContractValue:   input.ContractValue,
		Currency:        defaultString(input.Currency, "EUR"),
		Status:          SCStatusDraft,
		PaymentSchedule: ScheduleAmounts(input.ContractValue, input.PaymentSchedule),
		Notes:           input.Notes,
	}
	if sc.Number == "" {
		sc.Number = generateNumber("SC")
	}
	if err := s.repo.CreateSupplierContract(ctx, sc); err != nil {
		return SupplierContract{}, err
	}
	s.recordAudit(ctx, actor, "SUPPLIER_CONTRACT_CREATE", "supplier_contract", sc.ID, map[string]any{"number": sc.Number, "value": sc.ContractValue})
	return sc, nil
}

// GetSupplierContract returns one supplier contract.
func (s *Service) GetSupplierContract(ctx context.Context, id uuid.UUID) (SupplierContract, error) {
	return s.repo.GetSupplierContract(ctx, id)
}

// ApproveSupplierContract advances a draft or pending contract. At or above
// the approval threshold only a management approver can release it; a
// non-management call from draft parks the contract in pending_approval,
// and a second non-management call is refused rather than self-approved.
func (s *Service) ApproveSupplierContract(ctx context.Context, id uuid.UUID, actor shared.Identity) (SupplierContract, error) {
	sc, err := s.repo.GetSupplierContract(ctx, id)
	if err != nil {
		return SupplierContract{}, err
	}
	if sc.Status != SCStatusDraft && sc.Status != SCStatusPendingApproval {
		return SupplierContract{}, &shared.Error{
			Kind:    shared.KindBadRequest,
			Msg:     "supplier contract can only be approved from draft or pending_approval",
			Current: string(sc.Status),
			Allowed: []string{string(SCStatusDraft), string(SCStatusPendingApproval)},
		}
	}
	now := time.Now()
	expected := sc.Revision
	if sc.ContractValue >= s.approvalThreshold && !actor.HasRole(shared.RoleManagement) {
		if sc.Status == SCStatusPendingApproval {
			return SupplierContract{}, &shared.Error{
				Kind: shared.KindForbidden,
				Msg:  fmt.Sprintf("contracts of %s or more require a %s approver", formatAmount(s.approvalThreshold, sc.Currency), shared.RoleManagement),
			}
		}
		sc.Status = SCStatusPendingApproval
		sc.Touch(actor.ActorID, now)
		if err := s.repo.UpdateSupplierContract(ctx, sc, expected); err != nil {
			return SupplierContract{}, err
		}
		if s.approvals != nil {
			_ = s.approvals.EnsureSubmit(ctx, "SUPPLIER_CONTRACT", sc.ID, actor.ActorID, fmt.Sprintf("supplier contract %s submitted for approval", sc.Number))
		}
		s.recordAudit(ctx, actor, "SUPPLIER_CONTRACT_SUBMIT", "supplier_contract", sc.ID, map[string]any{"number": sc.Number})
		return sc, nil
	}
	sc.Status = SCStatusSentToSupplier
	sc.ApprovedBy = actor.ActorID
	sc.ApprovedAt = &now
	sc.Touch(actor.ActorID, now)
	if err := s.repo.UpdateSupplierContract(ctx, sc, expected); err != nil {
		return SupplierContract{}, err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: "SUPPLIER_CONTRACT", RefID: sc.ID, ActorID: actor.ActorID, Action: shared.ApprovalApprove, Note: fmt.Sprintf("supplier contract %s approved", sc.Number)})
	}
	s.recordAudit(ctx, actor, "SUPPLIER_CONTRACT_APPROVE", "supplier_contract", sc.ID, map[string]any{"number": sc.Number})
	return sc, nil
}

// SignSupplierContract marks the contract as signed by both sides. The
// reference workflow deliberately carries no status precondition here; a
// contract signed on paper is recorded whatever state the record was in.
func (s *Service) SignSupplierContract(ctx context.Context, id uuid.UUID, actor shared.Identity) (SupplierContract, error) {
	sc, err := s.repo.GetSupplierContract(ctx, id)
	if err != nil {
		return SupplierContract{}, err
	}
	now := time.Now()
	expected := sc.Revision
	sc.Status = SCStatusSigned
	sc.SignedByUs = true
	sc.SignedBySupplier = true
	sc.SignedDate = &now
	sc.Touch(actor.ActorID, now)
	if err := s.repo.UpdateSupplierContract(ctx, sc, expected); err != nil {
		return SupplierContract{}, err
	}
	s.recordAudit(ctx, actor, "SUPPLIER_CONTRACT_SIGN", "supplier_contract", sc.ID, map[string]any{"number": sc.Number})
	return sc, nil
}

// GenerateSupplierContractDocument renders the supplier contract to PDF and
// stores it.
func (s *Service) GenerateSupplierContractDocument(ctx context.Context, id uuid.UUID, actor shared.Identity) ([]byte, error) {
	sc, err := s.repo.GetSupplierContract(ctx, id)
	if err != nil {
		return nil, err
	}
	pdf, err := s.renderer.RenderHTML(ctx, supplierContractHTML(sc))
	if err != nil {
		return nil, fmt.Errorf("contracts: render supplier contract: %w", err)
	}
	url, err := s.repo.StoreDocument(ctx, "supplier_contract", sc.ID, pdf)
	if err != nil {
		return nil, err
	}
	expected := sc.Revision
	sc.RenderedDocumentURL = url
	sc.Touch(actor.ActorID, time.Now())
	if err := s.repo.UpdateSupplierContract(ctx, sc, expected); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "SUPPLIER_CONTRACT_RENDER", "supplier_contract", sc.ID, map[string]any{"url": url})
	return pdf, nil
}

// SendSupplierContractDocument renders the supplier contract and mails it.
func (s *Service) SendSupplierContractDocument(ctx context.Context, id uuid.UUID, recipient string, actor shared.Identity) error {
	sc, err := s.repo.GetSupplierContract(ctx, id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(recipient) == "" {
		return &shared.Error{Kind: shared.KindBadRequest, Msg: "recipient is required", Fields: []string{"recipient"}}
	}
	pdf, err := s.renderer.RenderHTML(ctx, supplierContractHTML(sc))
	if err != nil {
		return fmt.Errorf("contracts: render supplier contract: %w", err)
	}
	msg := notify.Message{
		To:       recipient,
		Subject:  fmt.Sprintf("Supplier contract %s", sc.Number),
		TextBody: fmt.Sprintf("Please find attached supplier contract %s over %s.", sc.Number, formatAmount(sc.ContractValue, sc.Currency)),
		Attachments: []notify.Attachment{
			{Filename: fmt.Sprintf("supplier-contract-%s.pdf", sc.Number), MIMEType: "application/pdf", Content: pdf},
		},
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "SUPPLIER_CONTRACT_SEND", "supplier_contract", sc.ID, map[string]any{"recipient": recipient})
	return nil
}
