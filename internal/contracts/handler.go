package contracts

import (
	"context"
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

// Handler manages contract endpoints.
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

// MountContractRoutes registers customer contract routes.
func (h *Handler) MountContractRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(shared.RoleProcurement, shared.RoleManagement))
		r.Post("/", h.create)
		r.Post("/from-offer", h.createFromOffer)
		r.Get("/{id}", h.show)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/document", h.generateDocument)
		r.Post("/{id}/send", h.sendDocument)
	})
}

// MountSupplierContractRoutes registers supplier contract routes.
func (h *Handler) MountSupplierContractRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(shared.RoleProcurement, shared.RoleManagement))
		r.Post("/", h.createSupplierContract)
		r.Get("/{id}", h.showSupplierContract)
		r.Post("/{id}/approve", h.approveSupplierContract)
		r.Post("/{id}/sign", h.signSupplierContract)
		r.Post("/{id}/document", h.generateSupplierContractDocument)
		r.Post("/{id}/send", h.sendSupplierContractDocument)
	})
}

type lineItemRequest struct {
	Description string  `json:"description" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

type createContractRequest struct {
	Number          string            `json:"number"`
	CustomerID      uuid.UUID         `json:"customer_id"`
	ProjectID       uuid.UUID         `json:"project_id"`
	LineItems       []lineItemRequest `json:"line_items" validate:"required,min=1,dive"`
	DiscountPercent float64           `json:"discount_percent" validate:"gte=0,lte=100"`
	TaxRate         float64           `json:"tax_rate" validate:"gte=0,lt=1"`
	Currency        string            `json:"currency"`
	Notes           string            `json:"notes"`
}

type fromOfferRequest struct {
	OfferID uuid.UUID `json:"offer_id" validate:"required"`
}

type updateContractRequest struct {
	Number              *string           `json:"number"`
	CustomerID          *uuid.UUID        `json:"customer_id"`
	ProjectID           *uuid.UUID        `json:"project_id"`
	Status              *string           `json:"status"`
	SignedBy            *string           `json:"signed_by"`
	Notes               *string           `json:"notes"`
	RenderedDocumentURL *string           `json:"rendered_document_url"`
	LineItems           []lineItemRequest `json:"line_items" validate:"omitempty,min=1,dive"`
	DiscountPercent     *float64          `json:"discount_percent" validate:"omitempty,gte=0,lte=100"`
	TaxRate             *float64          `json:"tax_rate" validate:"omitempty,gte=0,lt=1"`
	Currency            *string           `json:"currency"`
}

type recipientRequest struct {
	Recipient string `json:"recipient" validate:"required,email"`
}

type milestoneRequest struct {
	Description string  `json:"description" validate:"required"`
	Percentage  float64 `json:"percentage" validate:"required,gt=0,lte=100"`
}

type createSupplierContractRequest struct {
	Number          string             `json:"number"`
	SupplierID      uuid.UUID          `json:"supplier_id" validate:"required"`
	ProjectID       uuid.UUID          `json:"project_id"`
	ContractValue   float64            `json:"contract_value" validate:"required,gt=0"`
	Currency        string             `json:"currency"`
	PaymentSchedule []milestoneRequest `json:"payment_schedule" validate:"omitempty,dive"`
	Notes           string             `json:"notes"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decodeBody[createContractRequest](h, w, r)
	if !ok {
		return
	}
	input := CreateInput{
		Number:          req.Number,
		CustomerID:      req.CustomerID,
		ProjectID:       req.ProjectID,
		LineItems:       toLineItemInputs(req.LineItems),
		DiscountPercent: req.DiscountPercent,
		TaxRate:         req.TaxRate,
		Currency:        req.Currency,
		Notes:           req.Notes,
	}
	c, err := h.service.Create(r.Context(), input, identity)
	if err != nil {
		h.fail(w, "create contract", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toContractResponse(c))
}

func (h *Handler) createFromOffer(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decodeBody[fromOfferRequest](h, w, r)
	if !ok {
		return
	}
	c, err := h.service.CreateFromOffer(r.Context(), req.OfferID, identity)
	if err != nil {
		h.fail(w, "create contract from offer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toContractResponse(c))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get contract", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toContractResponse(c))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decodeBody[updateContractRequest](h, w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	patch := UpdateInput{
		Number:              req.Number,
		CustomerID:          req.CustomerID,
		ProjectID:           req.ProjectID,
		SignedBy:            req.SignedBy,
		Notes:               req.Notes,
		RenderedDocumentURL: req.RenderedDocumentURL,
		DiscountPercent:     req.DiscountPercent,
		TaxRate:             req.TaxRate,
		Currency:            req.Currency,
	}
	if req.Status != nil {
		status := Status(*req.Status)
		patch.Status = &status
	}
	if req.LineItems != nil {
		patch.LineItems = toLineItemInputs(req.LineItems)
	}
	c, err := h.service.Update(r.Context(), id, patch, identity)
	if err != nil {
		h.fail(w, "update contract", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toContractResponse(c))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, identity); err != nil {
		h.fail(w, "delete contract", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) generateDocument(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	pdf, err := h.service.GenerateDocument(r.Context(), id, identity)
	if err != nil {
		h.fail(w, "generate contract document", err)
		return
	}
	servePDF(w, pdf)
}

func (h *Handler) sendDocument(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decodeBody[recipientRequest](h, w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.SendDocument(r.Context(), id, req.Recipient, identity); err != nil {
		h.fail(w, "send contract document", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) createSupplierContract(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decodeBody[createSupplierContractRequest](h, w, r)
	if !ok {
		return
	}
	schedule := make([]PaymentMilestone, len(req.PaymentSchedule))
	for i, m := range req.PaymentSchedule {
		schedule[i] = PaymentMilestone{Description: m.Description, Percentage: m.Percentage}
	}
	input := SupplierContractInput{
		Number:          req.Number,
		SupplierID:      req.SupplierID,
		ProjectID:       req.ProjectID,
		ContractValue:   req.ContractValue,
		Currency:        req.Currency,
		PaymentSchedule: schedule,
		Notes:           req.Notes,
	}
	sc, err := h.service.CreateSupplierContract(r.Context(), input, identity)
	if err != nil {
		h.fail(w, "create supplier contract", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSupplierContractResponse(sc))
}

func (h *Handler) showSupplierContract(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sc, err := h.service.GetSupplierContract(r.Context(), id)
	if err != nil {
		h.fail(w, "get supplier contract", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSupplierContractResponse(sc))
}

func (h *Handler) approveSupplierContract(w http.ResponseWriter, r *http.Request) {
	h.supplierContractTransition(w, r, "approve supplier contract", h.service.ApproveSupplierContract)
}

func (h *Handler) signSupplierContract(w http.ResponseWriter, r *http.Request) {
	h.supplierContractTransition(w, r, "sign supplier contract", h.service.SignSupplierContract)
}

func (h *Handler) generateSupplierContractDocument(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	pdf, err := h.service.GenerateSupplierContractDocument(r.Context(), id, identity)
	if err != nil {
		h.fail(w, "generate supplier contract document", err)
		return
	}
	servePDF(w, pdf)
}

func (h *Handler) sendSupplierContractDocument(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := decodeBody[recipientRequest](h, w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.SendSupplierContractDocument(r.Context(), id, req.Recipient, identity); err != nil {
		h.fail(w, "send supplier contract document", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) supplierContractTransition(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, id uuid.UUID, actor shared.Identity) (SupplierContract, error)) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sc, err := fn(r.Context(), id, identity)
	if err != nil {
		h.fail(w, action, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSupplierContractResponse(sc))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid contract id")
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

func decodeBody[T any](h *Handler, w http.ResponseWriter, r *http.Request) (shared.Identity, T, bool) {
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

func servePDF(w http.ResponseWriter, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func toLineItemInputs(items []lineItemRequest) []LineItemInput {
	out := make([]LineItemInput, len(items))
	for i, li := range items {
		out[i] = LineItemInput{Description: li.Description, Quantity: li.Quantity, UnitPrice: li.UnitPrice}
	}
	return out
}

type contractResponse struct {
	ID                  uuid.UUID  `json:"id"`
	Revision            uuid.UUID  `json:"revision"`
	Version             int64      `json:"version"`
	Number              string     `json:"number"`
	OfferID             uuid.UUID  `json:"offer_id,omitempty"`
	CustomerID          uuid.UUID  `json:"customer_id,omitempty"`
	ProjectID           uuid.UUID  `json:"project_id,omitempty"`
	Status              Status     `json:"status"`
	LineItems           []LineItem `json:"line_items"`
	Subtotal            float64    `json:"subtotal"`
	DiscountPercent     float64    `json:"discount_percent"`
	DiscountAmount      float64    `json:"discount_amount"`
	TaxRate             float64    `json:"tax_rate"`
	TaxAmount           float64    `json:"tax_amount"`
	Total               float64    `json:"total"`
	Currency            string     `json:"currency"`
	Finalized           bool       `json:"finalized"`
	SignedAt            *time.Time `json:"signed_at,omitempty"`
	SignedBy            string     `json:"signed_by,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	RenderedDocumentURL string     `json:"rendered_document_url,omitempty"`
}

func toContractResponse(c Contract) contractResponse {
	return contractResponse{
		ID: c.ID, Revision: c.Revision, Version: c.Version, Number: c.Number,
		OfferID: c.OfferID, CustomerID: c.CustomerID, ProjectID: c.ProjectID,
		Status: c.Status, LineItems: c.LineItems, Subtotal: c.Subtotal,
		DiscountPercent: c.DiscountPercent, DiscountAmount: c.DiscountAmount,
		TaxRate: c.TaxRate, TaxAmount: c.TaxAmount, Total: c.Total, Currency: c.Currency,
		Finalized: c.Finalized, SignedAt: c.SignedAt, SignedBy: c.SignedBy,
		Notes: c.Notes, RenderedDocumentURL: c.RenderedDocumentURL,
	}
}

type supplierContractResponse struct {
	ID                  uuid.UUID              `json:"id"`
	Revision            uuid.UUID              `json:"revision"`
	Version             int64                  `json:"version"`
	Number              string                 `json:"number"`
	SupplierID          uuid.UUID              `json:"supplier_id"`
	ProjectID           uuid.UUID              `json:"project_id,omitempty"`
	ContractValue       float64                `json:"contract_value"`
	Currency            string                 `json:"currency"`
	Status              SupplierContractStatus `json:"status"`
	ApprovedBy          uuid.UUID              `json:"approved_by,omitempty"`
	ApprovedAt          *time.Time             `json:"approved_at,omitempty"`
	SignedByUs          bool                   `json:"signed_by_us"`
	SignedBySupplier    bool                   `json:"signed_by_supplier"`
	SignedDate          *time.Time             `json:"signed_date,omitempty"`
	PaymentSchedule     []PaymentMilestone     `json:"payment_schedule,omitempty"`
	Notes               string                 `json:"notes,omitempty"`
	RenderedDocumentURL string                 `json:"rendered_document_url,omitempty"`
}

func toSupplierContractResponse(sc SupplierContract) supplierContractResponse {
	return supplierContractResponse{
		ID: sc.ID, Revision: sc.Revision, Version: sc.Version, Number: sc.Number,
		SupplierID: sc.SupplierID, ProjectID: sc.ProjectID, ContractValue: sc.ContractValue,
		Currency: sc.Currency, Status: sc.Status, ApprovedBy: sc.ApprovedBy,
		ApprovedAt: sc.ApprovedAt, SignedByUs: sc.SignedByUs, SignedBySupplier: sc.SignedBySupplier,
		SignedDate: sc.SignedDate, PaymentSchedule: sc.PaymentSchedule,
		Notes: sc.Notes, RenderedDocumentURL: sc.RenderedDocumentURL,
	}
}
