package suppliers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-erp/internal/auth"
	"github.com/vantage-erp/vantage-erp/internal/platform/httpx"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// Handler manages supplier endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	scorecards *ScorecardReader
	validate   *validator.Validate
	auth       auth.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, scorecards *ScorecardReader, authMW auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, scorecards: scorecards, validate: validator.New(), auth: authMW}
}

// MountRoutes registers supplier routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(shared.RoleProcurement, shared.RoleManagement, shared.RoleProjectLead))
		r.Get("/{id}", h.show)
		r.Get("/{id}/scorecard", h.showScorecard)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(shared.RoleProcurement, shared.RoleManagement))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(shared.RoleProjectLead, shared.RoleProcurement))
		r.Post("/{id}/ratings", h.submitRating)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(shared.RoleManagement))
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
		r.Post("/{id}/blacklist", h.blacklist)
		r.Post("/{id}/reinstate", h.reinstate)
	})
}

type createRequest struct {
	Code  string `json:"code"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type ratingRequest struct {
	Quality       float64 `json:"quality" validate:"required,gte=1,lte=5"`
	Reliability   float64 `json:"reliability" validate:"required,gte=1,lte=5"`
	Communication float64 `json:"communication" validate:"required,gte=1,lte=5"`
	PriceValue    float64 `json:"price_value" validate:"required,gte=1,lte=5"`
	Feedback      string  `json:"feedback"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decode[createRequest](h, w, r)
	if !ok {
		return
	}
	sup, err := h.service.Create(r.Context(), CreateInput{Code: req.Code, Name: req.Name, Email: req.Email}, identity)
	if err != nil {
		h.fail(w, "create supplier", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(sup))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sup, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(sup))
}

func (h *Handler) showScorecard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	card, err := h.scorecards.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get scorecard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, card)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve supplier", func(identity shared.Identity, id uuid.UUID, r *http.Request) (Supplier, error) {
		return h.service.Approve(r.Context(), id, identity)
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decode[reasonRequest](h, w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sup, err := h.service.Reject(r.Context(), id, identity, req.Reason)
	if err != nil {
		h.fail(w, "reject supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(sup))
}

func (h *Handler) blacklist(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decode[reasonRequest](h, w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sup, err := h.service.Blacklist(r.Context(), id, identity, req.Reason)
	if err != nil {
		h.fail(w, "blacklist supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(sup))
}

func (h *Handler) reinstate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reinstate supplier", func(identity shared.Identity, id uuid.UUID, r *http.Request) (Supplier, error) {
		return h.service.Reinstate(r.Context(), id, identity)
	})
}

func (h *Handler) submitRating(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decode[ratingRequest](h, w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	dims := RatingDims{Quality: req.Quality, Reliability: req.Reliability, Communication: req.Communication, PriceValue: req.PriceValue}
	sup, err := h.service.SubmitRating(r.Context(), id, dims, req.Feedback, identity)
	if err != nil {
		h.fail(w, "submit rating", err)
		return
	}
	if h.scorecards != nil {
		h.scorecards.Invalidate(r.Context(), id)
	}
	httpx.JSON(w, http.StatusOK, toResponse(sup))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(shared.Identity, uuid.UUID, *http.Request) (Supplier, error)) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sup, err := fn(identity, id, r)
	if err != nil {
		h.fail(w, action, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(sup))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid supplier id")
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

type supplierResponse struct {
	ID                 uuid.UUID `json:"id"`
	Revision           uuid.UUID `json:"revision"`
	Version            int64     `json:"version"`
	Code               string    `json:"code"`
	Name               string    `json:"name"`
	Email              string    `json:"email,omitempty"`
	Status             Status    `json:"status"`
	ActiveProjectCount int       `json:"active_project_count"`
	Rating             Rating    `json:"rating"`
	BlacklistReason    string    `json:"blacklist_reason,omitempty"`
}

func toResponse(s Supplier) supplierResponse {
	return supplierResponse{
		ID:                 s.ID,
		Revision:           s.Revision,
		Version:            s.Version,
		Code:               s.Code,
		Name:               s.Name,
		Email:              s.Email,
		Status:             s.Status,
		ActiveProjectCount: s.ActiveProjectCount,
		Rating:             s.Rating,
		BlacklistReason:    s.BlacklistReason,
	}
}
