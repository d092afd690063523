package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltgrid-erp/voltgrid/internal/collection"
	"github.com/voltgrid-erp/voltgrid/internal/debts"
	"github.com/voltgrid-erp/voltgrid/internal/paymentplans"
	"github.com/voltgrid-erp/voltgrid/internal/penalties"
	"github.com/voltgrid-erp/voltgrid/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	DebtHandler       *debts.Handler
	PlanHandler       *paymentplans.Handler
	PenaltyHandler    *penalties.Handler
	CollectionHandler *collection.Handler
	JobHandler        *jobs.Handler
	Pool              *pgxpool.Pool
}

// NewRouter constructs the chi.Router with VoltGrid defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(req.Context()); err != nil {
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/collections", func(r chi.Router) {
		r.Route("/debts", func(r chi.Router) {
			params.DebtHandler.MountRoutes(r)
			params.CollectionHandler.MountDebtRoutes(r)
		})
		r.Route("/plans", params.PlanHandler.MountRoutes)
		r.Route("/installments", params.PlanHandler.MountInstallmentRoutes)
		r.Route("/penalties", params.PenaltyHandler.MountRoutes)
		r.Route("/customers", params.CollectionHandler.MountCustomerRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
