package rfq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-erp/internal/contracts"
	"github.com/vantage-erp/vantage-erp/internal/notify"
	"github.com/vantage-erp/vantage-erp/internal/policy"
	"github.com/vantage-erp/vantage-erp/internal/shared"
	"github.com/vantage-erp/vantage-erp/internal/suppliers"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (RFQ, error)
	Create(ctx context.Context, r RFQ) error
	Update(ctx context.Context, r RFQ, expectedRevision uuid.UUID) error
}

// SupplierDirectory resolves invited suppliers for the send fan-out.
type SupplierDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (suppliers.Supplier, error)
}

// ContractCreator is the contracts-module entry point the award hands the
// winning quote to.
type ContractCreator interface {
	CreateSupplierContract(ctx context.Context, input contracts.SupplierContractInput, actor shared.Identity) (contracts.SupplierContract, error)
}

// Renderer turns HTML into PDF bytes.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// IdempotencyPort claims one-shot keys for the award's contract step.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Reconciler schedules a retry of a failed contract-creation step.
type Reconciler interface {
	ScheduleAwardRetry(ctx context.Context, rfqID uuid.UUID) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics counts awards for dashboards.
type Metrics interface {
	CountAward()
}

// Service owns the RFQ state machine.
type Service struct {
	repo        RepositoryPort
	supplierDir SupplierDirectory
	contracts   ContractCreator
	renderer    Renderer
	notifier    notify.Notifier
	idem        IdempotencyPort
	reconciler  Reconciler
	audit       AuditPort
	metrics     Metrics
	logger      *slog.Logger
}

// SetMetrics attaches an optional metrics sink.
func (s *Service) SetMetrics(m Metrics) {
	s.metrics = m
}

// NewService constructs the RFQ service.
func NewService(repo RepositoryPort, supplierDir SupplierDirectory, contractCreator ContractCreator, renderer Renderer, notifier notify.Notifier, idem IdempotencyPort, reconciler Reconciler, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		supplierDir: supplierDir,
		contracts:   contractCreator,
		renderer:    renderer,
		notifier:    notifier,
		idem:        idem,
		reconciler:  reconciler,
		audit:       audit,
		logger:      logger,
	}
}

// CreateInput describes a new RFQ.
type CreateInput struct {
	Number             string
	Title              string
	Description        string
	ProjectID          uuid.UUID
	InvitedSupplierIDs []uuid.UUID
	Deadline           *time.Time
	Notes              string
}

// Create persists a draft RFQ with an empty quote list.
func (s *Service) Create(ctx context.Context, input CreateInput, actor shared.Identity) (RFQ, error) {
	if input.Title == "" {
		return RFQ{}, &shared.Error{Kind: shared.KindBadRequest, Msg: "title is required", Fields: []string{"title"}}
	}
	if len(input.InvitedSupplierIDs) == 0 {
		return RFQ{}, &shared.Error{Kind: shared.KindBadRequest, Msg: "at least one supplier must be invited", Fields: []string{"invitedSupplierIds"}}
	}
	now := time.Now()
	r := RFQ{
		DocMeta:            shared.NewDocMeta(actor.ActorID, now),
		Number:             input.Number,
		Title:              input.Title,
		Description:        input.Description,
		ProjectID:          input.ProjectID,
		Status:             StatusDraft,
		InvitedSupplierIDs: input.InvitedSupplierIDs,
		Quotes:             []SupplierQuote{},
		Deadline:           input.Deadline,
		Notes:              input.Notes,
	}
	if r.Number == "" {
		r.Number = generateNumber("RFQ")
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return RFQ{}, err
	}
	s.recordAudit(ctx, actor, "RFQ_CREATE", r.ID, map[string]any{"number": r.Number, "invited": len(r.InvitedSupplierIDs)})
	return r, nil
}

// Get returns one RFQ.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (RFQ, error) {
	return s.repo.Get(ctx, id)
}

// DeliveryOutcome reports one supplier's share of the send fan-out.
type DeliveryOutcome struct {
	SupplierID uuid.UUID `json:"supplier_id"`
	Email      string    `json:"email,omitempty"`
	Delivered  bool      `json:"delivered"`
	Error      string    `json:"error,omitempty"`
}

// Send renders the RFQ once and mails it to every invited supplier. A
// failure for one supplier never aborts delivery to the rest; the RFQ moves
// to SENT whatever the individual outcomes were.
func (s *Service) Send(ctx context.Context, id uuid.UUID, actor shared.Identity) (RFQ, []DeliveryOutcome, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return RFQ{}, nil, err
	}
	if r.Status != StatusDraft {
		return RFQ{}, nil, &shared.Error{
			Kind:    shared.KindBadRequest,
			Msg:     "only draft RFQs can be sent",
			Current: string(r.Status),
			Allowed: []string{string(StatusDraft)},
		}
	}
	// A render failure is not fatal: the mails go out without the
	// attachment and the RFQ still moves to SENT.
	pdf, err := s.renderer.RenderHTML(ctx, rfqHTML(r))
	if err != nil {
		pdf = nil
		s.logger.Warn("rfq render failed, sending without attachment", slog.String("rfq", r.Number), slog.Any("error", err))
	}

	outcomes := make([]DeliveryOutcome, 0, len(r.InvitedSupplierIDs))
	for _, supplierID := range r.InvitedSupplierIDs {
		outcome := DeliveryOutcome{SupplierID: supplierID}
		sup, err := s.supplierDir.Get(ctx, supplierID)
		if err != nil {
			outcome.Error = err.Error()
			s.logger.Warn("rfq delivery skipped", slog.String("rfq", r.Number), slog.String("supplier_id", supplierID.String()), slog.Any("error", err))
			outcomes = append(outcomes, outcome)
			continue
		}
		outcome.Email = sup.Email
		msg := notify.Message{
			To:       sup.Email,
			Subject:  fmt.Sprintf("Request for quote %s: %s", r.Number, r.Title),
			TextBody: fmt.Sprintf("Dear %s,\n\nplease find attached request for quote %s. %s", sup.Name, r.Number, deadlineLine(r)),
		}
		if pdf != nil {
			msg.Attachments = []notify.Attachment{
				{Filename: fmt.Sprintf("rfq-%s.pdf", r.Number), MIMEType: "application/pdf", Content: pdf},
			}
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			outcome.Error = err.Error()
			s.logger.Warn("rfq delivery failed", slog.String("rfq", r.Number), slog.String("supplier", sup.Name), slog.Any("error", err))
			outcomes = append(outcomes, outcome)
			continue
		}
		outcome.Delivered = true
		outcomes = append(outcomes, outcome)
	}

	expected := r.Revision
	r.Status = StatusSent
	r.Touch(actor.ActorID, time.Now())
	if err := s.repo.Update(ctx, r, expected); err != nil {
		return RFQ{}, outcomes, err
	}
	s.recordAudit(ctx, actor, "RFQ_SEND", r.ID, map[string]any{"number": r.Number, "deliveries": len(outcomes)})
	return r, outcomes, nil
}

// QuoteInput is one incoming supplier bid.
type QuoteInput struct {
	SupplierID   uuid.UUID
	QuotedPrice  float64
	DeliveryDays int
	ValidUntil   *time.Time
}

// RecordQuote appends a bid and moves the RFQ to QUOTES_RECEIVED. The
// status write is idempotent; recording a second quote leaves the status
// where it is.
func (s *Service) RecordQuote(ctx context.Context, id uuid.UUID, input QuoteInput, actor shared.Identity) (RFQ, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return RFQ{}, err
	}
	if r.Status == StatusAwarded || r.Status == StatusCancelled {
		return RFQ{}, &shared.Error{
			Kind:    shared.KindBadRequest,
			Msg:     "quotes cannot be recorded on an awarded or cancelled RFQ",
			Current: string(r.Status),
			Allowed: []string{string(StatusDraft), string(StatusSent), string(StatusQuotesReceived)},
		}
	}
	if input.SupplierID == uuid.Nil {
		return RFQ{}, &shared.Error{Kind: shared.KindBadRequest, Msg: "supplierId is required", Fields: []string{"supplierId"}}
	}
	if input.QuotedPrice <= 0 {
		return RFQ{}, &shared.Error{Kind: shared.KindBadRequest, Msg: "quoted price must be positive", Fields: []string{"quotedPrice"}}
	}
	quote := SupplierQuote{
		ID:           uuid.New(),
		SupplierID:   input.SupplierID,
		QuotedPrice:  input.QuotedPrice,
		DeliveryDays: input.DeliveryDays,
		ValidUntil:   input.ValidUntil,
		Status:       QuoteReceived,
		ReceivedAt:   time.Now(),
	}
	expected := r.Revision
	r.Quotes = append(r.Quotes, quote)
	r.Status = StatusQuotesReceived
	r.Touch(actor.ActorID, time.Now())
	if err := s.repo.Update(ctx, r, expected); err != nil {
		return RFQ{}, err
	}
	s.recordAudit(ctx, actor, "RFQ_RECORD_QUOTE", r.ID, map[string]any{"number": r.Number, "supplier_id": input.SupplierID.String(), "price": input.QuotedPrice})
	return r, nil
}

// AwardQuote marks one quote as the winner, every other as rejected, and
// freezes the RFQ. The follow-up contract creation is a second write guarded
// by an idempotency key; if it fails the award stands and a reconciliation
// task retries the contract step.
func (s *Service) AwardQuote(ctx context.Context, id, quoteID uuid.UUID, actor shared.Identity) (RFQ, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return RFQ{}, err
	}
	quote, ok := r.QuoteByID(quoteID)
	if !ok {
		return RFQ{}, shared.NotFoundf("quote %s not found on RFQ %s", quoteID, r.Number)
	}
	if r.Status == StatusAwarded {
		if r.AwardedQuoteID == quoteID {
			// Re-award of the winner is a no-op, never a double award.
			return r, nil
		}
		return RFQ{}, &shared.Error{
			Kind:    shared.KindBadRequest,
			Msg:     fmt.Sprintf("RFQ %s is already awarded to another quote", r.Number),
			Current: string(r.Status),
			RefID:   r.AwardedQuoteID.String(),
		}
	}
	if !policy.IsTransitionAllowed(policy.DocRFQ, string(r.Status), string(StatusAwarded)) {
		return RFQ{}, &shared.Error{
			Kind:    shared.KindBadRequest,
			Msg:     fmt.Sprintf("RFQ cannot move from %s to %s", r.Status, StatusAwarded),
			Current: string(r.Status),
			Allowed: policy.AllowedTargets(policy.DocRFQ, string(r.Status)),
		}
	}

	expected := r.Revision
	for i := range r.Quotes {
		if r.Quotes[i].ID == quoteID {
			r.Quotes[i].Status = QuoteAwarded
		} else {
			r.Quotes[i].Status = QuoteRejected
		}
	}
	r.Status = StatusAwarded
	r.AwardedSupplierID = quote.SupplierID
	r.AwardedQuoteID = quote.ID
	r.Touch(actor.ActorID, time.Now())
	if err := s.repo.Update(ctx, r, expected); err != nil {
		return RFQ{}, err
	}
	s.recordAudit(ctx, actor, "RFQ_AWARD", r.ID, map[string]any{"number": r.Number, "supplier_id": quote.SupplierID.String(), "price": quote.QuotedPrice})
	if s.metrics != nil {
		s.metrics.CountAward()
	}

	if err := s.createAwardContract(ctx, r, quote, actor); err != nil {
		// The award itself stands; the contract step is retried out of band.
		s.logger.Error("award contract step failed",
			slog.String("rfq", r.Number),
			slog.Any("error", err))
		if s.reconciler != nil {
			if rerr := s.reconciler.ScheduleAwardRetry(ctx, r.ID); rerr != nil {
				s.logger.Error("schedule award retry", slog.String("rfq", r.Number), slog.Any("error", rerr))
			}
		}
	}
	return r, nil
}

// FinishAward re-runs the contract-creation step of an already awarded RFQ.
// Called by the reconciliation worker; a completed step is a no-op.
func (s *Service) FinishAward(ctx context.Context, rfqID uuid.UUID) error {
	r, err := s.repo.Get(ctx, rfqID)
	if err != nil {
		return err
	}
	if r.Status != StatusAwarded {
		return nil
	}
	quote, ok := r.QuoteByID(r.AwardedQuoteID)
	if !ok {
		return fmt.Errorf("rfq: awarded quote %s missing on %s", r.AwardedQuoteID, r.Number)
	}
	actor := shared.Identity{ActorID: r.ModifiedBy}
	return s.createAwardContract(ctx, r, quote, actor)
}

// createAwardContract claims the per-RFQ idempotency key and creates the
// supplier contract for the winning quote. A claimed key means the contract
// already exists and the step no-ops.
func (s *Service) createAwardContract(ctx context.Context, r RFQ, quote SupplierQuote, actor shared.Identity) error {
	key := "CONTRACT:" + r.ID.String()
	if err := s.idem.CheckAndInsert(ctx, key, "RFQ"); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return nil
		}
		return err
	}
	input := contracts.SupplierContractInput{
		SupplierID:    quote.SupplierID,
		ProjectID:     r.ProjectID,
		ContractValue: quote.QuotedPrice,
		Notes:         fmt.Sprintf("Awarded from %s (%s)", r.Number, r.Title),
	}
	if _, err := s.contracts.CreateSupplierContract(ctx, input, actor); err != nil {
		// Release the key so the retry can claim it again.
		if derr := s.idem.Delete(ctx, key); derr != nil {
			s.logger.Error("release idempotency key", slog.String("key", key), slog.Any("error", derr))
		}
		return err
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Identity, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ActorID, Action: action, Entity: "rfq", EntityID: id.String(), Meta: meta})
}

func deadlineLine(r RFQ) string {
	if r.Deadline == nil {
		return ""
	}
	return fmt.Sprintf("Quotes are due by %s.", r.Deadline.Format("2006-01-02"))
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
