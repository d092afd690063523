package penalties

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/voltgrid-erp/voltgrid/internal/platform/httpx"
)

// Handler manages penalty endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers penalty routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.applyPenalty)
	r.Get("/", h.listPenalties)
	r.Get("/{id}", h.getPenalty)
	r.Post("/{id}/waive", h.waivePenalty)
	r.Post("/{id}/pay", h.markPaid)
}

type applyPenaltyRequest struct {
	CustomerID      int64  `json:"customer_id" validate:"required,gt=0"`
	DebtRecordID    *int64 `json:"debt_record_id"`
	InvoiceID       *int64 `json:"invoice_id"`
	PenaltyType     string `json:"penalty_type" validate:"required"`
	CalculationType string `json:"calculation_type" validate:"required"`
	BaseAmount      string `json:"base_amount"`
	Rate            string `json:"rate"`
	DaysOverdue     int    `json:"days_overdue" validate:"gte=0"`
	Reason          string `json:"reason"`
	ActorID         int64  `json:"actor_id"`
}

type penaltyResponse struct {
	ID               int64  `json:"id"`
	CustomerID       int64  `json:"customer_id"`
	DebtRecordID     *int64 `json:"debt_record_id,omitempty"`
	InvoiceID        *int64 `json:"invoice_id,omitempty"`
	PenaltyType      string `json:"penalty_type"`
	CalculationType  string `json:"calculation_type"`
	BaseAmount       string `json:"base_amount"`
	Rate             string `json:"rate"`
	DaysOverdue      int    `json:"days_overdue"`
	CalculatedAmount string `json:"calculated_amount"`
	Reason           string `json:"reason,omitempty"`
	Status           string `json:"status"`
	WaivedBy         *int64 `json:"waived_by,omitempty"`
	WaiverReason     string `json:"waiver_reason,omitempty"`
	AppliedDate      string `json:"applied_date"`
}

func toPenaltyResponse(p Penalty) penaltyResponse {
	resp := penaltyResponse{
		ID:               p.ID,
		CustomerID:       p.CustomerID,
		DebtRecordID:     p.DebtRecordID,
		InvoiceID:        p.InvoiceID,
		PenaltyType:      string(p.PenaltyType),
		CalculationType:  string(p.CalculationType),
		BaseAmount:       p.BaseAmount.StringFixed(2),
		Rate:             p.Rate.String(),
		DaysOverdue:      p.DaysOverdue,
		CalculatedAmount: p.CalculatedAmount.StringFixed(2),
		Reason:           p.Reason,
		Status:           string(p.Status),
		WaivedBy:         p.WaivedBy,
		AppliedDate:      p.AppliedDate.Format("2006-01-02T15:04:05Z07:00"),
	}
	if p.WaiverReason != nil {
		resp.WaiverReason = *p.WaiverReason
	}
	return resp
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (h *Handler) applyPenalty(w http.ResponseWriter, r *http.Request) {
	var req applyPenaltyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	base, err := parseAmount(req.BaseAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "base_amount must be a decimal string")
		return
	}
	rate, err := parseAmount(req.Rate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rate must be a decimal string")
		return
	}

	penalty, err := h.service.ApplyPenalty(r.Context(), ApplyPenaltyInput{
		CustomerID:      req.CustomerID,
		DebtRecordID:    req.DebtRecordID,
		InvoiceID:       req.InvoiceID,
		PenaltyType:     PenaltyType(req.PenaltyType),
		CalculationType: CalculationType(req.CalculationType),
		BaseAmount:      base,
		Rate:            rate,
		DaysOverdue:     req.DaysOverdue,
		Reason:          req.Reason,
		ActorID:         req.ActorID,
	})
	if err != nil {
		h.logger.Error("apply penalty", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPenaltyResponse(*penalty))
}

type waivePenaltyRequest struct {
	WaivedBy int64  `json:"waived_by" validate:"required,gt=0"`
	Reason   string `json:"reason" validate:"required"`
}

func (h *Handler) waivePenalty(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid penalty id")
		return
	}

	var req waivePenaltyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.Waive(r.Context(), id, req.WaivedBy, req.Reason); err != nil {
		h.logger.Error("waive penalty", slog.Any("error", err), slog.Int64("penalty_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid penalty id")
		return
	}
	if err := h.service.MarkPaid(r.Context(), id); err != nil {
		h.logger.Error("settle penalty", slog.Any("error", err), slog.Int64("penalty_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getPenalty(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid penalty id")
		return
	}
	penalty, err := h.service.GetPenalty(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPenaltyResponse(*penalty))
}

func (h *Handler) listPenalties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if v := q.Get("debt_id"); v != "" {
		debtID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid debt_id")
			return
		}
		penalties, err := h.service.ListByDebt(r.Context(), debtID)
		if err != nil {
			h.logger.Error("list penalties by debt", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		h.respondList(w, penalties)
		return
	}

	customerID, err := strconv.ParseInt(q.Get("customer_id"), 10, 64)
	if err != nil || customerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "customer_id or debt_id is required")
		return
	}
	penalties, err := h.service.ListByCustomer(r.Context(), customerID, PenaltyStatus(q.Get("status")))
	if err != nil {
		h.logger.Error("list penalties by customer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.respondList(w, penalties)
}

func (h *Handler) respondList(w http.ResponseWriter, penalties []Penalty) {
	out := make([]penaltyResponse, 0, len(penalties))
	for _, p := range penalties {
		out = append(out, toPenaltyResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"penalties": out})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}
