package app

import (
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vantage-erp/vantage-erp/internal/assignment"
	"github.com/vantage-erp/vantage-erp/internal/auth"
	"github.com/vantage-erp/vantage-erp/internal/contracts"
	"github.com/vantage-erp/vantage-erp/internal/observability"
	"github.com/vantage-erp/vantage-erp/internal/rfq"
	"github.com/vantage-erp/vantage-erp/internal/suppliers"
	"github.com/vantage-erp/vantage-erp/jobs"
	"github.com/vantage-erp/vantage-erp/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	Auth auth.Middleware

	SuppliersHandler  *suppliers.Handler
	ContractsHandler  *contracts.Handler
	RFQHandler        *rfq.Handler
	AssignmentHandler *assignment.Handler
	ReportHandler     *report.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Vantage defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Every business route sits behind API key authentication. Role gates
	// are applied per route group by the handlers themselves.
	r.Group(func(r chi.Router) {
		r.Use(params.Auth.Authenticate)

		if params.SuppliersHandler != nil {
			r.Route("/suppliers", params.SuppliersHandler.MountRoutes)
		}
		if params.ContractsHandler != nil {
			r.Route("/contracts", params.ContractsHandler.MountContractRoutes)
			r.Route("/supplier-contracts", params.ContractsHandler.MountSupplierContractRoutes)
		}
		if params.RFQHandler != nil {
			r.Route("/rfqs", params.RFQHandler.MountRoutes)
		}
		if params.AssignmentHandler != nil {
			r.Route("/assignments", params.AssignmentHandler.MountRoutes)
		}
		if params.ReportHandler != nil {
			r.Route("/documents", params.ReportHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
