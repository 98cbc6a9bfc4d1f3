package report

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentStore reads rendered PDFs back out of the database. The contracts
// module writes them and records a /documents/<id> URL on the document.
type DocumentStore struct {
	pool *pgxpool.Pool
}

// NewDocumentStore constructs a DocumentStore.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// ErrDocumentNotFound indicates an unknown document id.
var ErrDocumentNotFound = errors.New("document not found")

// Get returns the PDF bytes for a stored document.
func (s *DocumentStore) Get(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var content []byte
	err := s.pool.QueryRow(ctx, `SELECT content FROM rendered_documents WHERE id=$1`, id).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return content, nil
}

// Handler serves rendered documents and the Gotenberg health probe.
type Handler struct {
	client *Client
	store  *DocumentStore
	logger *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(client *Client, store *DocumentStore, logger *slog.Logger) *Handler {
	return &Handler{client: client, store: store, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/{id}", h.document)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) document(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	pdf, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("load document", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
