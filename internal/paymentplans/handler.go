package paymentplans

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

// Handler manages payment plan endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers plan routes. Installment payment routes are mounted
// separately because installments are addressed by their own ids.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createPlan)
	r.Get("/", h.listPlans)
	r.Get("/{id}", h.getPlan)
	r.Post("/{id}/activate", h.activatePlan)
	r.Post("/{id}/cancel", h.cancelPlan)
	r.Post("/{id}/default", h.markDefaulted)
}

// MountInstallmentRoutes registers installment routes.
func (h *Handler) MountInstallmentRoutes(r chi.Router) {
	r.Post("/{id}/payments", h.recordInstallmentPayment)
}

type createPlanRequest struct {
	CustomerID           int64  `json:"customer_id" validate:"required,gt=0"`
	PlanName             string `json:"plan_name"`
	TotalAmount          string `json:"total_amount" validate:"required"`
	NumberOfInstallments int    `json:"number_of_installments" validate:"required,gte=1"`
	Frequency            string `json:"frequency" validate:"required"`
	StartDate            string `json:"start_date" validate:"required"`
	InterestRate         string `json:"interest_rate"`
	LateFeePercent       string `json:"late_fee_percent"`
}

type installmentResponse struct {
	ID                int64  `json:"id"`
	InstallmentNumber int    `json:"installment_number"`
	DueDate           string `json:"due_date"`
	Amount            string `json:"amount"`
	PrincipalAmount   string `json:"principal_amount"`
	InterestAmount    string `json:"interest_amount"`
	PaidAmount        string `json:"paid_amount"`
	Status            string `json:"status"`
}

type planResponse struct {
	ID                   int64                 `json:"id"`
	CustomerID           int64                 `json:"customer_id"`
	PlanName             string                `json:"plan_name"`
	TotalAmount          string                `json:"total_amount"`
	PaidAmount           string                `json:"paid_amount"`
	RemainingAmount      string                `json:"remaining_amount"`
	NumberOfInstallments int                   `json:"number_of_installments"`
	InstallmentAmount    string                `json:"installment_amount"`
	Frequency            string                `json:"frequency"`
	StartDate            string                `json:"start_date"`
	EndDate              string                `json:"end_date"`
	NextPaymentDate      string                `json:"next_payment_date,omitempty"`
	Status               string                `json:"status"`
	Installments         []installmentResponse `json:"installments,omitempty"`
}

func toPlanResponse(p PaymentPlan, installments []Installment) planResponse {
	resp := planResponse{
		ID:                   p.ID,
		CustomerID:           p.CustomerID,
		PlanName:             p.PlanName,
		TotalAmount:          p.TotalAmount.StringFixed(2),
		PaidAmount:           p.PaidAmount.StringFixed(2),
		RemainingAmount:      p.RemainingAmount.StringFixed(2),
		NumberOfInstallments: p.NumberOfInstallments,
		InstallmentAmount:    p.InstallmentAmount.StringFixed(2),
		Frequency:            string(p.Frequency),
		StartDate:            p.StartDate.Format("2006-01-02"),
		EndDate:              p.EndDate.Format("2006-01-02"),
		Status:               string(p.Status),
	}
	if p.NextPaymentDate != nil {
		resp.NextPaymentDate = p.NextPaymentDate.Format("2006-01-02")
	}
	for _, inst := range installments {
		resp.Installments = append(resp.Installments, installmentResponse{
			ID:                inst.ID,
			InstallmentNumber: inst.InstallmentNumber,
			DueDate:           inst.DueDate.Format("2006-01-02"),
			Amount:            inst.Amount.StringFixed(2),
			PrincipalAmount:   inst.PrincipalAmount.StringFixed(2),
			InterestAmount:    inst.InterestAmount.StringFixed(2),
			PaidAmount:        inst.PaidAmount.StringFixed(2),
			Status:            string(inst.Status),
		})
	}
	return resp
}

func parseOptionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (h *Handler) createPlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	principal, err := decimal.NewFromString(req.TotalAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "total_amount must be a decimal string")
		return
	}
	interestRate, err := parseOptionalDecimal(req.InterestRate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "interest_rate must be a decimal string")
		return
	}
	lateFee, err := parseOptionalDecimal(req.LateFeePercent)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "late_fee_percent must be a decimal string")
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start_date must be YYYY-MM-DD")
		return
	}

	plan, err := h.service.CreatePlan(r.Context(), CreatePlanInput{
		CustomerID:           req.CustomerID,
		PlanName:             req.PlanName,
		TotalPrincipal:       principal,
		NumberOfInstallments: req.NumberOfInstallments,
		Frequency:            money.Frequency(req.Frequency),
		StartDate:            startDate,
		InterestRate:         interestRate,
		LateFeePercent:       lateFee,
	})
	if err != nil {
		h.logger.Error("create payment plan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPlanResponse(plan.PaymentPlan, plan.Installments))
}

type activatePlanRequest struct {
	ApprovedBy int64 `json:"approved_by" validate:"required,gt=0"`
}

func (h *Handler) activatePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid plan id")
		return
	}

	var req activatePlanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.Activate(r.Context(), id, req.ApprovedBy); err != nil {
		h.logger.Error("activate payment plan", slog.Any("error", err), slog.Int64("plan_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancelPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid plan id")
		return
	}
	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.logger.Error("cancel payment plan", slog.Any("error", err), slog.Int64("plan_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markDefaulted(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid plan id")
		return
	}
	if err := h.service.MarkDefaulted(r.Context(), id); err != nil {
		h.logger.Error("default payment plan", slog.Any("error", err), slog.Int64("plan_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type installmentPaymentRequest struct {
	Amount    string `json:"amount" validate:"required"`
	PaymentID string `json:"payment_id"`
}

func (h *Handler) recordInstallmentPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid installment id")
		return
	}

	var req installmentPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal string")
		return
	}

	if err := h.service.RecordInstallmentPayment(r.Context(), id, amount, req.PaymentID); err != nil {
		h.logger.Error("record installment payment", slog.Any("error", err), slog.Int64("installment_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid plan id")
		return
	}
	plan, err := h.service.GetPlan(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPlanResponse(plan.PaymentPlan, plan.Installments))
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var customerID int64
	if v := q.Get("customer_id"); v != "" {
		customerID, _ = strconv.ParseInt(v, 10, 64)
	}

	plans, err := h.service.ListPlans(r.Context(), customerID, PlanStatus(q.Get("status")))
	if err != nil {
		h.logger.Error("list payment plans", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanResponse(p, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"plans": out})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}
