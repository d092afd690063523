package debts

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/voltgrid-erp/voltgrid/internal/platform/httpx"
	"github.com/voltgrid-erp/voltgrid/internal/shared"
)

// Handler manages debt ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers debt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createDebt)
	r.Get("/", h.listDebts)
	r.Get("/{id}", h.getDebt)
	r.Post("/{id}/payments", h.recordPayment)
	r.Post("/{id}/stage", h.updateStage)
	r.Post("/{id}/write-off", h.writeOff)
	r.Post("/{id}/dispute", h.markDisputed)
}

type createDebtRequest struct {
	CustomerID     int64   `json:"customer_id" validate:"required,gt=0"`
	DebtType       string  `json:"debt_type" validate:"required"`
	OriginalAmount string  `json:"original_amount" validate:"required"`
	DueDate        string  `json:"due_date" validate:"required"`
	ReferenceType  *string `json:"reference_type"`
	ReferenceID    *int64  `json:"reference_id"`
	Notes          string  `json:"notes"`
}

type debtResponse struct {
	ID              int64  `json:"id"`
	CustomerID      int64  `json:"customer_id"`
	DebtType        string `json:"debt_type"`
	OriginalAmount  string `json:"original_amount"`
	PaidAmount      string `json:"paid_amount"`
	RemainingAmount string `json:"remaining_amount"`
	DueDate         string `json:"due_date"`
	Status          string `json:"status"`
	CollectionStage string `json:"collection_stage"`
	ReminderCount   int    `json:"reminder_count"`
}

func toDebtResponse(d DebtRecord) debtResponse {
	return debtResponse{
		ID:              d.ID,
		CustomerID:      d.CustomerID,
		DebtType:        string(d.DebtType),
		OriginalAmount:  d.OriginalAmount.StringFixed(2),
		PaidAmount:      d.PaidAmount.StringFixed(2),
		RemainingAmount: d.RemainingAmount.StringFixed(2),
		DueDate:         d.DueDate.Format("2006-01-02"),
		Status:          string(d.Status),
		CollectionStage: string(d.CollectionStage),
		ReminderCount:   d.ReminderCount,
	}
}

func (h *Handler) createDebt(w http.ResponseWriter, r *http.Request) {
	var req createDebtRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.OriginalAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "original_amount must be a decimal string")
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_date must be YYYY-MM-DD")
		return
	}

	debt, err := h.service.CreateDebt(r.Context(), CreateDebtInput{
		CustomerID:     req.CustomerID,
		DebtType:       DebtType(req.DebtType),
		OriginalAmount: amount,
		DueDate:        dueDate,
		ReferenceType:  req.ReferenceType,
		ReferenceID:    req.ReferenceID,
		Notes:          req.Notes,
	})
	if err != nil {
		h.logger.Error("create debt", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDebtResponse(*debt))
}

type recordPaymentRequest struct {
	Amount      string `json:"amount" validate:"required"`
	PaymentDate string `json:"payment_date"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid debt id")
		return
	}

	var req recordPaymentRequest
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
	var paidAt time.Time
	if req.PaymentDate != "" {
		paidAt, err = time.Parse("2006-01-02", req.PaymentDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "payment_date must be YYYY-MM-DD")
			return
		}
	}

	result, err := h.service.RecordPayment(r.Context(), id, amount, paidAt)
	if err != nil {
		h.logger.Error("record debt payment", slog.Any("error", err), slog.Int64("debt_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"remaining_amount": result.RemainingAmount.StringFixed(2),
		"status":           string(result.Status),
	})
}

type updateStageRequest struct {
	CollectionStage string `json:"collection_stage" validate:"required"`
	CollectorID     *int64 `json:"collector_id"`
	Notes           string `json:"notes"`
	ActorID         int64  `json:"actor_id"`
}

func (h *Handler) updateStage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid debt id")
		return
	}

	var req updateStageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.Escalate(r.Context(), EscalateInput{
		DebtID:      id,
		Stage:       CollectionStage(req.CollectionStage),
		CollectorID: req.CollectorID,
		Notes:       req.Notes,
		ActorID:     req.ActorID,
	}); err != nil {
		h.logger.Error("escalate debt", slog.Any("error", err), slog.Int64("debt_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type writeOffRequest struct {
	Reason  string `json:"reason" validate:"required"`
	ActorID int64  `json:"actor_id"`
}

func (h *Handler) writeOff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid debt id")
		return
	}

	var req writeOffRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.WriteOff(r.Context(), id, req.Reason, req.ActorID); err != nil {
		h.logger.Error("write off debt", slog.Any("error", err), slog.Int64("debt_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markDisputed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid debt id")
		return
	}
	if err := h.service.MarkDisputed(r.Context(), id); err != nil {
		h.logger.Error("dispute debt", slog.Any("error", err), slog.Int64("debt_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getDebt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid debt id")
		return
	}
	debt, err := h.service.GetDebt(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDebtResponse(*debt))
}

func (h *Handler) listDebts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var customerID int64
	if v := q.Get("customer_id"); v != "" {
		customerID, _ = strconv.ParseInt(v, 10, 64)
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	list, total, err := h.service.ListDebts(r.Context(), ListDebtsRequest{
		CustomerID: customerID,
		Status:     DebtStatus(q.Get("status")),
		Stage:      CollectionStage(q.Get("stage")),
		Limit:      perPage,
		Offset:     (page - 1) * perPage,
	})
	if err != nil {
		h.logger.Error("list debts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	out := make([]debtResponse, 0, len(list))
	for _, d := range list {
		out = append(out, toDebtResponse(d))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"debts":      out,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}
