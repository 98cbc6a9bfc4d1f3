package rfq

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

// Handler manages RFQ endpoints.
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

// MountRoutes registers RFQ routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(shared.RoleProcurement, shared.RoleManagement))
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
		r.Post("/{id}/send", h.send)
		r.Post("/{id}/quotes", h.recordQuote)
		r.Post("/{id}/quotes/{quoteID}/award", h.awardQuote)
	})
}

type createRequest struct {
	Number             string      `json:"number"`
	Title              string      `json:"title" validate:"required"`
	Description        string      `json:"description"`
	ProjectID          uuid.UUID   `json:"project_id"`
	InvitedSupplierIDs []uuid.UUID `json:"invited_supplier_ids" validate:"required,min=1"`
	Deadline           *time.Time  `json:"deadline"`
	Notes              string      `json:"notes"`
}

type quoteRequest struct {
	SupplierID   uuid.UUID  `json:"supplier_id" validate:"required"`
	QuotedPrice  float64    `json:"quoted_price" validate:"required,gt=0"`
	DeliveryDays int        `json:"delivery_days" validate:"gte=0"`
	ValidUntil   *time.Time `json:"valid_until"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decode[createRequest](h, w, r)
	if !ok {
		return
	}
	doc, err := h.service.Create(r.Context(), CreateInput{
		Number:             req.Number,
		Title:              req.Title,
		Description:        req.Description,
		ProjectID:          req.ProjectID,
		InvitedSupplierIDs: req.InvitedSupplierIDs,
		Deadline:           req.Deadline,
		Notes:              req.Notes,
	}, identity)
	if err != nil {
		h.fail(w, "create rfq", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(doc))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get rfq", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(doc))
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	doc, outcomes, err := h.service.Send(r.Context(), id, identity)
	if err != nil {
		h.fail(w, "send rfq", err)
		return
	}
	resp := toResponse(doc)
	resp.Deliveries = outcomes
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) recordQuote(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decode[quoteRequest](h, w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	doc, err := h.service.RecordQuote(r.Context(), id, QuoteInput{
		SupplierID:   req.SupplierID,
		QuotedPrice:  req.QuotedPrice,
		DeliveryDays: req.DeliveryDays,
		ValidUntil:   req.ValidUntil,
	}, identity)
	if err != nil {
		h.fail(w, "record quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(doc))
}

func (h *Handler) awardQuote(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	quoteID, ok := h.pathID(w, r, "quoteID")
	if !ok {
		return
	}
	doc, err := h.service.AwardQuote(r.Context(), id, quoteID, identity)
	if err != nil {
		h.fail(w, "award quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(doc))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
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

type rfqResponse struct {
	ID                 uuid.UUID         `json:"id"`
	Revision           uuid.UUID         `json:"revision"`
	Version            int64             `json:"version"`
	Number             string            `json:"number"`
	Title              string            `json:"title"`
	Description        string            `json:"description,omitempty"`
	ProjectID          uuid.UUID         `json:"project_id,omitempty"`
	Status             Status            `json:"status"`
	InvitedSupplierIDs []uuid.UUID       `json:"invited_supplier_ids"`
	Quotes             []SupplierQuote   `json:"quotes"`
	Deadline           *time.Time        `json:"deadline,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	AwardedSupplierID  uuid.UUID         `json:"awarded_supplier_id,omitempty"`
	AwardedQuoteID     uuid.UUID         `json:"awarded_quote_id,omitempty"`
	Deliveries         []DeliveryOutcome `json:"deliveries,omitempty"`
}

func toResponse(doc RFQ) rfqResponse {
	return rfqResponse{
		ID: doc.ID, Revision: doc.Revision, Version: doc.Version, Number: doc.Number,
		Title: doc.Title, Description: doc.Description, ProjectID: doc.ProjectID,
		Status: doc.Status, InvitedSupplierIDs: doc.InvitedSupplierIDs, Quotes: doc.Quotes,
		Deadline: doc.Deadline, Notes: doc.Notes,
		AwardedSupplierID: doc.AwardedSupplierID, AwardedQuoteID: doc.AwardedQuoteID,
	}
}
