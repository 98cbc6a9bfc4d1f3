package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-erp/internal/masterdata"
	"github.com/vantage-erp/vantage-erp/internal/policy"
	"github.com/vantage-erp/vantage-erp/internal/shared"
	"github.com/vantage-erp/vantage-erp/internal/suppliers"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (Assignment, error)
	Create(ctx context.Context, a Assignment) error
	Update(ctx context.Context, a Assignment, expectedRevision uuid.UUID) error
}

// Ledger is the supplier trust ledger surface this module is allowed to
// touch. Supplier state is never written directly.
type Ledger interface {
	RequireActive(ctx context.Context, id uuid.UUID) (suppliers.Supplier, error)
	IncrementActiveProjects(ctx context.Context, id uuid.UUID, actor shared.Identity) error
	DecrementActiveProjects(ctx context.Context, id uuid.UUID, actor shared.Identity) error
	SubmitRating(ctx context.Context, id uuid.UUID, dims suppliers.RatingDims, feedback string, actor shared.Identity) (suppliers.Supplier, error)
}

// ProjectDirectory resolves project budget figures.
type ProjectDirectory interface {
	GetProject(ctx context.Context, id uuid.UUID) (masterdata.Project, error)
}

// IdempotencyPort claims one-shot keys for the completion decrement.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the assignment state machine.
type Service struct {
	repo     RepositoryPort
	ledger   Ledger
	projects ProjectDirectory
	idem     IdempotencyPort
	audit    AuditPort
	logger   *slog.Logger
}

// NewService constructs the assignment service.
func NewService(repo RepositoryPort, ledger Ledger, projects ProjectDirectory, idem IdempotencyPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, ledger: ledger, projects: projects, idem: idem, audit: audit, logger: logger}
}

// AssignInput describes a new assignment.
type AssignInput struct {
	ProjectID     uuid.UUID
	SupplierID    uuid.UUID
	Description   string
	EstimatedCost float64
}

// Assign creates a planned assignment for an active supplier. An estimated
// cost above the remaining project budget flags a warning but never blocks.
func (s *Service) Assign(ctx context.Context, input AssignInput, actor shared.Identity) (Assignment, error) {
	if input.EstimatedCost <= 0 {
		return Assignment{}, &shared.Error{Kind: shared.KindBadRequest, Msg: "estimated cost must be positive", Fields: []string{"estimatedCost"}}
	}
	sup, err := s.ledger.RequireActive(ctx, input.SupplierID)
	if err != nil {
		return Assignment{}, err
	}
	project, err := s.projects.GetProject(ctx, input.ProjectID)
	if err != nil {
		return Assignment{}, err
	}

	budgetStatus := BudgetOnTrack
	remaining := project.RemainingBudget()
	if input.EstimatedCost > remaining {
		budgetStatus = BudgetWarning
		s.logger.Warn("assignment exceeds remaining budget",
			slog.String("project", project.Name),
			slog.Float64("estimated_cost", input.EstimatedCost),
			slog.Float64("remaining_budget", remaining))
	}

	now := time.Now()
	a := Assignment{
		DocMeta:              shared.NewDocMeta(actor.ActorID, now),
		ProjectID:            input.ProjectID,
		SupplierID:           input.SupplierID,
		Description:          input.Description,
		EstimatedCost:        input.EstimatedCost,
		Status:               StatusPlanned,
		CompletionPercentage: 0,
		BudgetStatus:         budgetStatus,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return Assignment{}, err
	}
	if err := s.ledger.IncrementActiveProjects(ctx, sup.ID, actor); err != nil {
		s.logger.Error("increment active projects",
			slog.String("supplier_id", sup.ID.String()),
			slog.Any("error", err))
	}
	s.recordAudit(ctx, actor, "ASSIGNMENT_CREATE", a.ID, map[string]any{"supplier_id": sup.ID.String(), "budget_status": string(budgetStatus)})
	return a, nil
}

// Get returns one assignment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Assignment, error) {
	return s.repo.Get(ctx, id)
}

// UpdateInput is a sparse patch; nil pointers leave the field untouched.
type UpdateInput struct {
	Description          *string
	EstimatedCost        *float64
	ActualCost           *float64
	CompletionPercentage *float64
	Status               *Status
}

// Update merges the patch and re-derives the status from the effective
// completion percentage. The first arrival at COMPLETED decrements the
// supplier's active project counter exactly once.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch UpdateInput, actor shared.Identity) (Assignment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	priorStatus := a.Status

	completion := a.CompletionPercentage
	if patch.CompletionPercentage != nil {
		completion = *patch.CompletionPercentage
	}
	if completion < 0 || completion > 100 {
		return Assignment{}, &shared.Error{Kind: shared.KindBadRequest, Msg: "completion percentage must be between 0 and 100", Fields: []string{"completionPercentage"}}
	}

	status := a.Status
	if patch.Status != nil && *patch.Status != a.Status {
		if !policy.IsTransitionAllowed(policy.DocAssignment, string(a.Status), string(*patch.Status)) {
			return Assignment{}, &shared.Error{
				Kind:    shared.KindBadRequest,
				Msg:     fmt.Sprintf("assignment cannot move from %s to %s", a.Status, *patch.Status),
				Current: string(a.Status),
				Allowed: policy.AllowedTargets(policy.DocAssignment, string(a.Status)),
			}
		}
		status = *patch.Status
	}

	// Progress overrides a stale status, completion overrides everything.
	if completion > 0 && completion < 100 && status == StatusPlanned {
		status = StatusInProgress
	}
	if completion == 100 && status != StatusCompleted {
		status = StatusCompleted
	}

	expected := a.Revision
	if patch.Description != nil {
		a.Description = *patch.Description
	}
	if patch.EstimatedCost != nil {
		a.EstimatedCost = *patch.EstimatedCost
	}
	if patch.ActualCost != nil {
		a.ActualCost = patch.ActualCost
	}
	a.CompletionPercentage = completion
	a.Status = status
	a.Touch(actor.ActorID, time.Now())
	if err := s.repo.Update(ctx, a, expected); err != nil {
		return Assignment{}, err
	}
	s.recordAudit(ctx, actor, "ASSIGNMENT_UPDATE", a.ID, map[string]any{"status": string(status), "completion": completion})

	if status == StatusCompleted && priorStatus != StatusCompleted {
		s.decrementOnce(ctx, a, actor)
	}
	return a, nil
}

// decrementOnce performs the completion-side counter decrement behind an
// idempotency key, so a retried update cannot decrement twice.
func (s *Service) decrementOnce(ctx context.Context, a Assignment, actor shared.Identity) {
	key := "ASSIGN-DONE:" + a.ID.String()
	if err := s.idem.CheckAndInsert(ctx, key, "ASSIGNMENT"); err != nil {
		if !errors.Is(err, shared.ErrIdempotencyConflict) {
			s.logger.Error("claim completion key", slog.String("key", key), slog.Any("error", err))
		}
		return
	}
	if err := s.ledger.DecrementActiveProjects(ctx, a.SupplierID, actor); err != nil {
		// Release the key; the next completion write retries the decrement.
		if derr := s.idem.Delete(ctx, key); derr != nil {
			s.logger.Error("release completion key", slog.String("key", key), slog.Any("error", derr))
		}
		s.logger.Error("decrement active projects",
			slog.String("supplier_id", a.SupplierID.String()),
			slog.Any("error", err))
	}
}

// RateInput carries the three caller-scored dimensions.
type RateInput struct {
	Quality       float64
	Timeliness    float64
	Communication float64
	Feedback      string
}

// Rate records the one-shot assignment rating and feeds it into the
// supplier trust ledger. The price dimension is derived from the cost
// ratio, not scored by the caller.
func (s *Service) Rate(ctx context.Context, id uuid.UUID, input RateInput, actor shared.Identity) (Assignment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if a.Status != StatusCompleted {
		return Assignment{}, &shared.Error{
			Kind:    shared.KindBadRequest,
			Msg:     "only completed assignments can be rated",
			Current: string(a.Status),
			Allowed: []string{string(StatusCompleted)},
		}
	}
	if a.Rated() {
		return Assignment{}, &shared.Error{Kind: shared.KindConflict, Msg: "assignment has already been rated", RefID: a.ID.String()}
	}
	for name, v := range map[string]float64{"quality": input.Quality, "timeliness": input.Timeliness, "communication": input.Communication} {
		if v < 1 || v > 5 {
			return Assignment{}, &shared.Error{Kind: shared.KindBadRequest, Msg: "ratings must be between 1 and 5", Fields: []string{name}}
		}
	}

	priceRating := priceRatingFor(a)
	now := time.Now()
	expected := a.Revision
	a.QualityRating = &input.Quality
	a.TimelinessRating = &input.Timeliness
	a.CommunicationRating = &input.Communication
	a.PriceRating = &priceRating
	a.RatedBy = actor.ActorID
	a.RatedAt = &now
	a.Touch(actor.ActorID, now)
	if err := s.repo.Update(ctx, a, expected); err != nil {
		return Assignment{}, err
	}

	dims := suppliers.RatingDims{
		Quality:       input.Quality,
		Reliability:   input.Timeliness,
		Communication: input.Communication,
		PriceValue:    priceRating,
	}
	if _, err := s.ledger.SubmitRating(ctx, a.SupplierID, dims, input.Feedback, actor); err != nil {
		s.logger.Error("submit supplier rating",
			slog.String("supplier_id", a.SupplierID.String()),
			slog.Any("error", err))
	}
	s.recordAudit(ctx, actor, "ASSIGNMENT_RATE", a.ID, map[string]any{"price_rating": priceRating})
	return a, nil
}

// priceRatingFor scores cost discipline: on or under estimate scores 5, up
// to ten percent over scores 4, everything else 3. A missing actual cost
// defaults to the neutral 3.
func priceRatingFor(a Assignment) float64 {
	if a.ActualCost == nil || a.EstimatedCost <= 0 {
		return 3
	}
	ratio := *a.ActualCost / a.EstimatedCost
	switch {
	case ratio <= 1.0:
		return 5
	case ratio <= 1.10:
		return 4
	default:
		return 3
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Identity, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ActorID, Action: action, Entity: "assignment", EntityID: id.String(), Meta: meta})
}
