package suppliers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-erp/internal/notify"
	"github.com/vantage-erp/vantage-erp/internal/policy"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// Overall rating weights per dimension.
const (
	weightQuality       = 0.3
	weightReliability   = 0.3
	weightCommunication = 0.2
	weightPriceValue    = 0.2
)

// lowRatingThreshold triggers an operational alert when the aggregate
// overall rating falls below it.
const lowRatingThreshold = 3.0

// minBlacklistReasonLen is the minimum trimmed length of a blacklist reason.
const minBlacklistReasonLen = 20

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (Supplier, error)
	Create(ctx context.Context, s Supplier) error
	Update(ctx context.Context, s Supplier, expectedRevision uuid.UUID) error
	AppendRatingEntry(ctx context.Context, entry RatingEntry) error
	ListRatingHistory(ctx context.Context, supplierID uuid.UUID, limit int) ([]RatingEntry, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the supplier trust ledger: approval lifecycle, blacklist
// rules, active-project counting and incremental rating aggregation.
type Service struct {
	repo       RepositoryPort
	notifier   notify.Notifier
	audit      AuditPort
	approvals  *shared.ApprovalRecorder
	alerts     *AlertGate
	metrics    Metrics
	logger     *slog.Logger
	opsMailbox string
}

// Metrics counts raised low-rating alerts for dashboards.
type Metrics interface {
	CountLowRatingAlert()
}

// SetMetrics attaches an optional metrics sink.
func (s *Service) SetMetrics(m Metrics) {
	s.metrics = m
}

// NewService constructs the supplier service.
func NewService(repo RepositoryPort, notifier notify.Notifier, audit AuditPort, approvals *shared.ApprovalRecorder, alerts *AlertGate, logger *slog.Logger, opsMailbox string) *Service {
	return &Service{repo: repo, notifier: notifier, audit: audit, approvals: approvals, alerts: alerts, logger: logger, opsMailbox: opsMailbox}
}

// CreateInput describes a new supplier registration.
type CreateInput struct {
	Code  string
	Name  string
	Email string
}

// Create registers a supplier awaiting approval.
func (s *Service) Create(ctx context.Context, input CreateInput, actor shared.Identity) (Supplier, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Supplier{}, shared.BadRequestf("supplier name is required")
	}
	now := time.Now()
	sup := Supplier{
		DocMeta: shared.NewDocMeta(actor.ActorID, now),
		Code:    input.Code,
		Name:    input.Name,
		Email:   input.Email,
		Status:  StatusPendingApproval,
	}
	if sup.Code == "" {
		sup.Code = fmt.Sprintf("SUP-%d", now.UnixNano())
	}
	if err := s.repo.Create(ctx, sup); err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, actor, "SUPPLIER_CREATE", sup.ID, map[string]any{"code": sup.Code})
	return sup, nil
}

// Get returns one supplier.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Supplier, error) {
	return s.repo.Get(ctx, id)
}

// Approve moves a pending supplier to ACTIVE and notifies operations.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actor shared.Identity) (Supplier, error) {
	sup, err := s.repo.Get(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	if err := s.requireTransition(sup, StatusActive); err != nil {
		return Supplier{}, err
	}
	now := time.Now()
	expected := sup.Revision
	sup.Status = StatusActive
	sup.ApprovedBy = actor.ActorID
	sup.ApprovedAt = &now
	sup.Touch(actor.ActorID, now)
	if err := s.repo.Update(ctx, sup, expected); err != nil {
		return Supplier{}, err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: "SUPPLIER", RefID: sup.ID, ActorID: actor.ActorID, Action: shared.ApprovalApprove, Note: fmt.Sprintf("supplier %s approved", sup.Code)})
	}
	s.notifyOps(ctx, fmt.Sprintf("Supplier %s approved", sup.Name),
		fmt.Sprintf("Supplier %s (%s) was approved by %s and is now active.", sup.Name, sup.Code, actor.Email))
	s.recordAudit(ctx, actor, "SUPPLIER_APPROVE", sup.ID, map[string]any{"code": sup.Code})
	return sup, nil
}

// Reject declines a pending supplier.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actor shared.Identity, reason string) (Supplier, error) {
	sup, err := s.repo.Get(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	if err := s.requireTransition(sup, StatusRejected); err != nil {
		return Supplier{}, err
	}
	now := time.Now()
	expected := sup.Revision
	sup.Status = StatusRejected
	sup.RejectedBy = actor.ActorID
	sup.RejectedAt = &now
	sup.RejectionReason = reason
	sup.Touch(actor.ActorID, now)
	if err := s.repo.Update(ctx, sup, expected); err != nil {
		return Supplier{}, err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: "SUPPLIER", RefID: sup.ID, ActorID: actor.ActorID, Action: shared.ApprovalReject, Note: reason})
	}
	s.notifyOps(ctx, fmt.Sprintf("Supplier %s rejected", sup.Name),
		fmt.Sprintf("Supplier %s (%s) was rejected by %s. Reason: %s", sup.Name, sup.Code, actor.Email, reason))
	s.recordAudit(ctx, actor, "SUPPLIER_REJECT", sup.ID, map[string]any{"reason": reason})
	return sup, nil
}

// Blacklist bars a supplier from further assignments. A supplier with
// running assignments cannot be blacklisted, and the reason must carry
// enough substance to stand in an audit.
func (s *Service) Blacklist(ctx context.Context, id uuid.UUID, actor shared.Identity, reason string) (Supplier, error) {
	sup, err := s.repo.Get(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	if sup.ActiveProjectCount > 0 {
		return Supplier{}, shared.BadRequestf("supplier has %d active assignment(s) and cannot be blacklisted", sup.ActiveProjectCount)
	}
	if len(strings.TrimSpace(reason)) < minBlacklistReasonLen {
		return Supplier{}, &shared.Error{Kind: shared.KindBadRequest, Msg: fmt.Sprintf("blacklist reason must be at least %d characters", minBlacklistReasonLen), Fields: []string{"reason"}}
	}
	if err := s.requireTransition(sup, StatusBlacklisted); err != nil {
		return Supplier{}, err
	}
	now := time.Now()
	expected := sup.Revision
	sup.Status = StatusBlacklisted
	sup.BlacklistedBy = actor.ActorID
	sup.BlacklistedAt = &now
	sup.BlacklistReason = reason
	sup.Touch(actor.ActorID, now)
	if err := s.repo.Update(ctx, sup, expected); err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, actor, "SUPPLIER_BLACKLIST", sup.ID, map[string]any{"reason": reason})
	return sup, nil
}

// Reinstate lifts a blacklist. The supplier lands in INACTIVE and must be
// re-approved before it can become active again.
func (s *Service) Reinstate(ctx context.Context, id uuid.UUID, actor shared.Identity) (Supplier, error) {
	sup, err := s.repo.Get(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	if sup.Status != StatusBlacklisted {
		return Supplier{}, shared.BadRequestf("only blacklisted suppliers can be reinstated (current: %s)", sup.Status)
	}
	expected := sup.Revision
	sup.Status = StatusInactive
	sup.BlacklistReason = ""
	sup.Touch(actor.ActorID, time.Now())
	if err := s.repo.Update(ctx, sup, expected); err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, actor, "SUPPLIER_REINSTATE", sup.ID, nil)
	return sup, nil
}

// SubmitRating folds one review into the supplier's aggregate rating,
// appends an immutable history entry, and raises a low-rating alert when
// the aggregate overall drops below the threshold. Alert failures never
// roll back the rating write.
func (s *Service) SubmitRating(ctx context.Context, id uuid.UUID, dims RatingDims, feedback string, actor shared.Identity) (Supplier, error) {
	if err := validateDims(dims); err != nil {
		return Supplier{}, err
	}
	sup, err := s.repo.Get(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	overall := round1(dims.Quality*weightQuality + dims.Reliability*weightReliability +
		dims.Communication*weightCommunication + dims.PriceValue*weightPriceValue)

	now := time.Now()
	expected := sup.Revision
	count := sup.Rating.ReviewCount
	sup.Rating.Quality = incrementalMean(sup.Rating.Quality, count, dims.Quality)
	sup.Rating.Reliability = incrementalMean(sup.Rating.Reliability, count, dims.Reliability)
	sup.Rating.Communication = incrementalMean(sup.Rating.Communication, count, dims.Communication)
	sup.Rating.PriceValue = incrementalMean(sup.Rating.PriceValue, count, dims.PriceValue)
	sup.Rating.Overall = incrementalMean(sup.Rating.Overall, count, overall)
	sup.Rating.ReviewCount = count + 1
	sup.Rating.LastUpdated = now
	sup.Touch(actor.ActorID, now)
	if err := s.repo.Update(ctx, sup, expected); err != nil {
		return Supplier{}, err
	}
	entry := RatingEntry{
		ID:         uuid.New(),
		SupplierID: sup.ID,
		Dims:       dims,
		Overall:    overall,
		Feedback:   feedback,
		RatedBy:    actor.ActorID,
		RatedAt:    now,
	}
	if err := s.repo.AppendRatingEntry(ctx, entry); err != nil {
		s.logger.Error("append rating history", slog.String("supplier", sup.ID.String()), slog.Any("error", err))
	}
	if sup.Rating.Overall < lowRatingThreshold {
		s.raiseLowRatingAlert(ctx, sup)
	}
	s.recordAudit(ctx, actor, "SUPPLIER_RATE", sup.ID, map[string]any{"overall": overall, "review_count": sup.Rating.ReviewCount})
	return sup, nil
}

// IncrementActiveProjects is invoked by the assignment engine when an
// assignment is created against the supplier.
func (s *Service) IncrementActiveProjects(ctx context.Context, id uuid.UUID, actor shared.Identity) error {
	sup, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	expected := sup.Revision
	sup.ActiveProjectCount++
	sup.Touch(actor.ActorID, time.Now())
	return s.repo.Update(ctx, sup, expected)
}

// DecrementActiveProjects is invoked once per assignment when it first
// completes. The count never drops below zero.
func (s *Service) DecrementActiveProjects(ctx context.Context, id uuid.UUID, actor shared.Identity) error {
	sup, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	expected := sup.Revision
	if sup.ActiveProjectCount > 0 {
		sup.ActiveProjectCount--
	}
	sup.Touch(actor.ActorID, time.Now())
	return s.repo.Update(ctx, sup, expected)
}

// RequireActive returns the supplier if it is ACTIVE, else a BadRequest
// naming the current status. Used by the assignment engine.
func (s *Service) RequireActive(ctx context.Context, id uuid.UUID) (Supplier, error) {
	sup, err := s.repo.Get(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	if sup.Status != StatusActive {
		return Supplier{}, &shared.Error{
			Kind:    shared.KindBadRequest,
			Msg:     fmt.Sprintf("supplier %s is not active", sup.Code),
			Current: string(sup.Status),
			Allowed: []string{string(StatusActive)},
		}
	}
	return sup, nil
}

func (s *Service) requireTransition(sup Supplier, to Status) error {
	if !policy.IsTransitionAllowed(policy.DocSupplier, string(sup.Status), string(to)) {
		return &shared.Error{
			Kind:    shared.KindBadRequest,
			Msg:     fmt.Sprintf("supplier cannot move from %s to %s", sup.Status, to),
			Current: string(sup.Status),
			Allowed: policy.AllowedTargets(policy.DocSupplier, string(sup.Status)),
		}
	}
	return nil
}

func (s *Service) raiseLowRatingAlert(ctx context.Context, sup Supplier) {
	if s.alerts != nil && !s.alerts.ShouldAlert(ctx, sup.ID) {
		return
	}
	s.notifyOps(ctx, fmt.Sprintf("Low supplier rating: %s", sup.Name),
		fmt.Sprintf("Supplier %s (%s) dropped to an overall rating of %.1f after %d reviews.",
			sup.Name, sup.Code, sup.Rating.Overall, sup.Rating.ReviewCount))
	if s.metrics != nil {
		s.metrics.CountLowRatingAlert()
	}
}

func (s *Service) notifyOps(ctx context.Context, subject, body string) {
	if s.notifier == nil || s.opsMailbox == "" {
		return
	}
	if err := s.notifier.Send(ctx, notify.Message{To: s.opsMailbox, Subject: subject, TextBody: body}); err != nil {
		s.logger.Error("notify operations", slog.String("subject", subject), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Identity, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ActorID, Action: action, Entity: "supplier", EntityID: id.String(), Meta: meta})
}

func validateDims(dims RatingDims) error {
	check := func(name string, v float64) error {
		if v < 1 || v > 5 {
			return &shared.Error{Kind: shared.KindBadRequest, Msg: "rating dimensions must be between 1 and 5", Fields: []string{name}}
		}
		return nil
	}
	if err := check("quality", dims.Quality); err != nil {
		return err
	}
	if err := check("reliability", dims.Reliability); err != nil {
		return err
	}
	if err := check("communication", dims.Communication); err != nil {
		return err
	}
	return check("price_value", dims.PriceValue)
}

// incrementalMean folds a new sample into a running average without storing
// all samples, rounding to one decimal the way stored aggregates are kept.
func incrementalMean(oldAvg float64, count int, incoming float64) float64 {
	return round1((oldAvg*float64(count) + incoming) / float64(count+1))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
