package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/voltgrid-erp/voltgrid/internal/debts"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSendReminder is the task type for dunning reminder notifications.
	TaskSendReminder = "collections:send_reminder"
	// TaskOverdueScan is the task type for the nightly overdue sweep.
	TaskOverdueScan = "collections:overdue_scan"
)

// SendReminderPayload carries the debt details a reminder is rendered from.
type SendReminderPayload struct {
	DebtID          int64  `json:"debt_id"`
	CustomerID      int64  `json:"customer_id"`
	Stage           string `json:"stage"`
	RemainingAmount string `json:"remaining_amount"`
	Reference       string `json:"reference,omitempty"`
}

// NewSendReminderTask constructs an Asynq task.
func NewSendReminderTask(payload SendReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendReminder, data), nil
}

// HandleSendReminderTask processes TaskSendReminder tasks. Rendering happens
// here; delivery is handed to the messaging gateway outside this module.
func HandleSendReminderTask(ctx context.Context, t *asynq.Task) error {
	var payload SendReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	printer := message.NewPrinter(language.English)
	line := printer.Sprintf("payment reminder: debt %d for customer %d is at stage %s with %s outstanding",
		payload.DebtID, payload.CustomerID, payload.Stage, payload.RemainingAmount)
	slog.Default().Info("reminder rendered",
		slog.Int64("debt_id", payload.DebtID),
		slog.String("message", line),
	)
	return nil
}

// OverdueScanPayload carries the cutoff for the nightly sweep. An empty AsOf
// means "now".
type OverdueScanPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewOverdueScanTask constructs an Asynq task.
func NewOverdueScanTask(payload OverdueScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueScan, data), nil
}

// ReminderQueue adapts the jobs client to the debt service's dispatcher port.
type ReminderQueue struct {
	client *Client
}

// NewReminderQueue builds the adapter.
func NewReminderQueue(client *Client) *ReminderQueue {
	return &ReminderQueue{client: client}
}

// EnqueueReminder submits a reminder task for the given debt.
func (q *ReminderQueue) EnqueueReminder(ctx context.Context, debt debts.DebtRecord) error {
	payload := SendReminderPayload{
		DebtID:          debt.ID,
		CustomerID:      debt.CustomerID,
		Stage:           string(debt.CollectionStage),
		RemainingAmount: debt.RemainingAmount.StringFixed(2),
	}
	if debt.ReferenceType != nil {
		payload.Reference = *debt.ReferenceType
	}
	_, err := q.client.EnqueueSendReminder(ctx, payload)
	return err
}

func parseAsOf(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	asOf, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return asOf
}
