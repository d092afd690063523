package collection

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/voltgrid-erp/voltgrid/internal/money"
	"github.com/voltgrid-erp/voltgrid/internal/platform/httpx"
)

// Handler manages orchestrator endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountDebtRoutes registers the debt-scoped orchestrator routes. They share
// the debt subrouter so the path space stays /collections/debts/{id}/...
func (h *Handler) MountDebtRoutes(r chi.Router) {
	r.Post("/{id}/absorb-penalty", h.absorbPenalty)
	r.Post("/{id}/offer-plan", h.offerPlan)
}

// MountCustomerRoutes registers the customer-scoped orchestrator routes.
func (h *Handler) MountCustomerRoutes(r chi.Router) {
	r.Get("/{id}/summary", h.customerSummary)
}

type absorbPenaltyRequest struct {
	PenaltyID int64 `json:"penalty_id" validate:"required,gt=0"`
	ActorID   int64 `json:"actor_id"`
}

func (h *Handler) absorbPenalty(w http.ResponseWriter, r *http.Request) {
	debtID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid debt id")
		return
	}

	var req absorbPenaltyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	debt, err := h.service.AbsorbPenalty(r.Context(), debtID, req.PenaltyID, req.ActorID)
	if err != nil {
		h.logger.Error("absorb penalty", slog.Any("error", err), slog.Int64("debt_id", debtID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"debt_id":          debt.ID,
		"original_amount":  debt.OriginalAmount.StringFixed(2),
		"remaining_amount": debt.RemainingAmount.StringFixed(2),
	})
}

type offerPlanRequest struct {
	PlanName             string `json:"plan_name"`
	NumberOfInstallments int    `json:"number_of_installments" validate:"required,gte=1"`
	Frequency            string `json:"frequency" validate:"required"`
	StartDate            string `json:"start_date" validate:"required"`
	InterestRate         string `json:"interest_rate"`
	ActorID              int64  `json:"actor_id"`
}

func (h *Handler) offerPlan(w http.ResponseWriter, r *http.Request) {
	debtID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid debt id")
		return
	}

	var req offerPlanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start_date must be YYYY-MM-DD")
		return
	}
	interestRate := decimal.Zero
	if req.InterestRate != "" {
		interestRate, err = decimal.NewFromString(req.InterestRate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "interest_rate must be a decimal string")
			return
		}
	}

	plan, err := h.service.OfferPlan(r.Context(), OfferPlanInput{
		DebtID:               debtID,
		PlanName:             req.PlanName,
		NumberOfInstallments: req.NumberOfInstallments,
		Frequency:            money.Frequency(req.Frequency),
		StartDate:            startDate,
		InterestRate:         interestRate,
		ActorID:              req.ActorID,
	})
	if err != nil {
		h.logger.Error("offer plan", slog.Any("error", err), slog.Int64("debt_id", debtID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"plan_id":      plan.ID,
		"total_amount": plan.TotalAmount.StringFixed(2),
		"installments": plan.NumberOfInstallments,
		"status":       string(plan.Status),
	})
}

func (h *Handler) customerSummary(w http.ResponseWriter, r *http.Request) {
	customerID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	summary, err := h.service.Summary(r.Context(), customerID)
	if err != nil {
		h.logger.Error("customer summary", slog.Any("error", err), slog.Int64("customer_id", customerID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}
