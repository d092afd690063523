package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/voltgrid-erp/voltgrid/internal/collection"
	"github.com/voltgrid-erp/voltgrid/internal/debts"
	"github.com/voltgrid-erp/voltgrid/internal/paymentplans"
)

// NewOverdueScanHandler builds the nightly sweep handler. The sweep flips
// past-due installments to overdue and escalates debts whose recommended stage
// moved forward; escalation itself enqueues the reminder.
func NewOverdueScanHandler(logger *slog.Logger, debtSvc *debts.Service, planSvc *paymentplans.Service) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload OverdueScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		asOf := parseAsOf(payload.AsOf)
		if asOf.IsZero() {
			asOf = time.Now()
		}

		flipped, err := planSvc.MarkOverdue(ctx, asOf)
		if err != nil {
			return err
		}

		overdue, err := debtSvc.ListOverdue(ctx, asOf)
		if err != nil {
			return err
		}

		var escalated int
		for _, debt := range overdue {
			stage, move := collection.RecommendStage(debt, asOf)
			if !move {
				continue
			}
			if err := debtSvc.Escalate(ctx, debts.EscalateInput{DebtID: debt.ID, Stage: stage}); err != nil {
				logger.Error("escalate overdue debt",
					slog.Any("error", err),
					slog.Int64("debt_id", debt.ID),
				)
				continue
			}
			escalated++
		}

		logger.Info("overdue scan complete",
			slog.Time("as_of", asOf),
			slog.Int64("installments_overdue", flipped),
			slog.Int("debts_scanned", len(overdue)),
			slog.Int("debts_escalated", escalated),
		)
		return nil
	}
}
