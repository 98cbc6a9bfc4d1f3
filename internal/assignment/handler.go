package assignment

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-erp/internal/auth"
	"github.com/vantage-erp/vantage-erp/internal/platform/httpx"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// Handler manages assignment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	auth     auth.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authMW auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), auth: authMW}
}

// MountRoutes registers assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(shared.RoleProjectLead, shared.RoleProcurement, shared.RoleManagement))
		r.Post("/", h.assign)
		r.Get("/{id}", h.show)
		r.Patch("/{id}", h.update)
		r.Post("/{id}/rating", h.rate)
	})
}

type assignRequest struct {
	ProjectID     uuid.UUID `json:"project_id" validate:"required"`
	SupplierID    uuid.UUID `json:"supplier_id" validate:"required"`
	Description   string    `json:"description"`
	EstimatedCost float64   `json:"estimated_cost" validate:"required,gt=0"`
}

type updateRequest struct {
	Description          *string  `json:"description"`
	EstimatedCost        *float64 `json:"estimated_cost" validate:"omitempty,gt=0"`
	ActualCost           *float64 `json:"actual_cost" validate:"omitempty,gte=0"`
	CompletionPercentage *float64 `json:"completion_percentage" validate:"omitempty,gte=0,lte=100"`
	Status               *string  `json:"status"`
}

type rateRequest struct {
	Quality       float64 `json:"quality" validate:"required,gte=1,lte=5"`
	Timeliness    float64 `json:"timeliness" validate:"required,gte=1,lte=5"`
	Communication float64 `json:"communication" validate:"required,gte=1,lte=5"`
	Feedback      string  `json:"feedback"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decode[assignRequest](h, w, r)
	if !ok {
		return
	}
	a, err := h.service.Assign(r.Context(), AssignInput{
		ProjectID:     req.ProjectID,
		SupplierID:    req.SupplierID,
		Description:   req.Description,
		EstimatedCost: req.EstimatedCost,
	}, identity)
	if err != nil {
		h.fail(w, "create assignment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(a))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get assignment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(a))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decode[updateRequest](h, w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	patch := UpdateInput{
		Description:          req.Description,
		EstimatedCost:        req.EstimatedCost,
		ActualCost:           req.ActualCost,
		CompletionPercentage: req.CompletionPercentage,
	}
	if req.Status != nil {
		status := Status(*req.Status)
		patch.Status = &status
	}
	a, err := h.service.Update(r.Context(), id, patch, identity)
	if err != nil {
		h.fail(w, "update assignment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(a))
}

func (h *Handler) rate(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decode[rateRequest](h, w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Rate(r.Context(), id, RateInput{
		Quality:       req.Quality,
		Timeliness:    req.Timeliness,
		Communication: req.Communication,
		Feedback:      req.Feedback,
	}, identity)
	if err != nil {
		h.fail(w, "rate assignment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(a))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid assignment id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	if shared.KindOf(err) == "" {
		h.logger.Error(action, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func decode[T any](h *Handler, w http.ResponseWriter, r *http.Request) (shared.Identity, T, bool) {
	var req T
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return identity, req, false
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return identity, req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return identity, req, false
	}
	return identity, req, true
}

type assignmentResponse struct {
	ID                   uuid.UUID    `json:"id"`
	Revision             uuid.UUID    `json:"revision"`
	Version              int64        `json:"version"`
	ProjectID            uuid.UUID    `json:"project_id"`
	SupplierID           uuid.UUID    `json:"supplier_id"`
	Description          string       `json:"description,omitempty"`
	EstimatedCost        float64      `json:"estimated_cost"`
	ActualCost           *float64     `json:"actual_cost,omitempty"`
	Status               Status       `json:"status"`
	CompletionPercentage float64      `json:"completion_percentage"`
	BudgetStatus         BudgetStatus `json:"budget_status"`
	QualityRating        *float64     `json:"quality_rating,omitempty"`
	TimelinessRating     *float64     `json:"timeliness_rating,omitempty"`
	CommunicationRating  *float64     `json:"communication_rating,omitempty"`
	PriceRating          *float64     `json:"price_rating,omitempty"`
	RatedAt              *time.Time   `json:"rated_at,omitempty"`
}

func toResponse(a Assignment) assignmentResponse {
	return assignmentResponse{
		ID: a.ID, Revision: a.Revision, Version: a.Version,
		ProjectID: a.ProjectID, SupplierID: a.SupplierID, Description: a.Description,
		EstimatedCost: a.EstimatedCost, ActualCost: a.ActualCost,
		Status: a.Status, CompletionPercentage: a.CompletionPercentage, BudgetStatus: a.BudgetStatus,
		QualityRating: a.QualityRating, TimelinessRating: a.TimelinessRating,
		CommunicationRating: a.CommunicationRating, PriceRating: a.PriceRating, RatedAt: a.RatedAt,
	}
}
